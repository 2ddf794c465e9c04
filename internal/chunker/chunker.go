package chunker

import (
	"regexp"
	"strings"
)

const (
	// DefaultMaxTokens keeps passages short enough to fit several into one prompt context.
	DefaultMaxTokens = 120
	DefaultOverlap   = 20
)

// Options controls how text is chunked.
type Options struct {
	MaxTokens int
	Overlap   int
}

// Chunk represents a slice of the document text.
type Chunk struct {
	Index      int
	Text       string
	TokenCount int
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// ChunkText splits text into passages. Consecutive paragraphs are packed together while
// they fit in MaxTokens; a paragraph longer than that is cut with a sliding window of
// MaxTokens words overlapping by Overlap words.
// Tokens are approximated by whitespace-delimited words to avoid heavy dependencies.
func ChunkText(text string, opts Options) []Chunk {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.MaxTokens {
		opts.Overlap = 0
	}

	var chunks []Chunk
	var pending []string
	flush := func() {
		if len(pending) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Text:       strings.Join(pending, " "),
			TokenCount: len(pending),
		})
		pending = nil
	}

	for _, para := range paragraphBreak.Split(text, -1) {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		if len(words) > opts.MaxTokens {
			flush()
			for _, w := range window(words, opts.MaxTokens, opts.Overlap) {
				pending = w
				flush()
			}
			continue
		}
		if len(pending)+len(words) > opts.MaxTokens {
			flush()
		}
		pending = append(pending, words...)
	}
	flush()
	return chunks
}

func window(words []string, size, overlap int) [][]string {
	step := size - overlap
	var out [][]string
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		out = append(out, words[start:end])
		if end == len(words) {
			break
		}
	}
	return out
}
