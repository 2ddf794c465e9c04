// Package kb builds the knowledge base the chatbot answers from.
package kb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"itsmehi/internal/chunker"
	"itsmehi/internal/index"
)

// ErrUnsupportedFormat is returned for files the loader cannot read.
var ErrUnsupportedFormat = errors.New("kb: unsupported file format")

// Supported reports whether the loader can read the file at path.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf", ".json":
		return true
	}
	return false
}

// LoadPath reads a file, or every supported file under a directory, into passages.
func LoadPath(path string, opts chunker.Options) ([]index.Passage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return LoadFile(path, opts)
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && Supported(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var out []index.Passage
	for _, f := range files {
		passages, err := LoadFile(f, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, passages...)
	}
	return out, nil
}

// LoadFile reads one file into passages. Passage IDs are "<file name>#<n>" so reloading the
// same file overwrites its passages.
func LoadFile(path string, opts chunker.Options) ([]index.Passage, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	source := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return Split(source, string(content), opts), nil
	case ".pdf":
		text, err := extractPDF(content)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", path, err)
		}
		return Split(source, text, opts), nil
	case ".json":
		passages, err := decodeJSON(source, content)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return passages, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Split chunks text into passages attributed to source.
func Split(source, text string, opts chunker.Options) []index.Passage {
	chunks := chunker.ChunkText(text, opts)
	out := make([]index.Passage, len(chunks))
	for i, c := range chunks {
		out[i] = index.Passage{ID: PassageID(source, c.Index), Text: c.Text, Source: source}
	}
	return out
}

// PassageID is the stable identifier of the n-th passage of source.
func PassageID(source string, n int) string {
	return source + "#" + strconv.Itoa(n)
}

type jsonPassage struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source"`
}

// decodeJSON accepts either an array of strings or an array of {"id","text"} objects.
// Entries are stored as given, without chunking.
func decodeJSON(source string, content []byte) ([]index.Passage, error) {
	var texts []string
	if err := json.Unmarshal(content, &texts); err == nil {
		out := make([]index.Passage, 0, len(texts))
		for _, t := range texts {
			if strings.TrimSpace(t) == "" {
				continue
			}
			out = append(out, index.Passage{ID: PassageID(source, len(out)), Text: strings.TrimSpace(t), Source: source})
		}
		return out, nil
	}

	var items []jsonPassage
	if err := json.Unmarshal(content, &items); err != nil {
		return nil, err
	}
	out := make([]index.Passage, 0, len(items))
	for _, it := range items {
		text := strings.TrimSpace(it.Text)
		if text == "" {
			continue
		}
		p := index.Passage{ID: it.ID, Text: text, Source: it.Source}
		if p.ID == "" {
			p.ID = PassageID(source, len(out))
		}
		if p.Source == "" {
			p.Source = source
		}
		out = append(out, p)
	}
	return out, nil
}

func extractPDF(content []byte) (string, error) {
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return "", err
	}

	var textBuilder strings.Builder
	numPages := pdfReader.NumPage()

	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		textBuilder.WriteString(text)
		// Blank line keeps pages apart as paragraphs for the chunker.
		textBuilder.WriteString("\n\n")
	}

	return textBuilder.String(), nil
}
