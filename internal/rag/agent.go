// Package rag answers questions about the portfolio owner from the knowledge base.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"itsmehi/internal/cache"
	"itsmehi/internal/embeddings"
	"itsmehi/internal/index"
	"itsmehi/internal/journal"
	"itsmehi/internal/lang"
	"itsmehi/internal/llm"
)

// ErrEmptyQuestion is reported for blank questions. No provider is called for them.
var ErrEmptyQuestion = errors.New("rag: empty question")

const previewLength = 150

// Question is a single user turn.
type Question struct {
	Text     string
	Language string // optional ISO 639-1 code; detected when empty
	TopK     int
}

// Answer is what the chatbot replies. Text is always user-presentable, even when Err is set.
type Answer struct {
	Text     string
	Language string
	Sources  []index.Hit
	Fallback FallbackKind
	Cached   bool
	Err      error
}

// Options tune the pipeline. Zero values select defaults.
type Options struct {
	TopK             int
	MaxContextLength int
	DefaultLanguage  string
	CacheTTL         time.Duration
}

// Agent wires retrieval, prompting and generation together.
type Agent struct {
	log       *slog.Logger
	embedder  embeddings.Embedder
	index     index.Index
	generator llm.Generator
	cache     cache.Cache
	journal   journal.Journal
	opts      Options
}

// NewAgent builds an Agent. A nil cache or journal disables that feature.
func NewAgent(log *slog.Logger, embedder embeddings.Embedder, idx index.Index, generator llm.Generator, c cache.Cache, j journal.Journal, opts Options) *Agent {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	if j == nil {
		j = journal.NoOp{}
	}
	if opts.TopK <= 0 {
		opts.TopK = index.DefaultTopK
	}
	if opts.MaxContextLength <= 0 {
		opts.MaxContextLength = DefaultMaxContextLength
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = lang.Default
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &Agent{
		log:       log,
		embedder:  embedder,
		index:     idx,
		generator: generator,
		cache:     c,
		journal:   j,
		opts:      opts,
	}
}

// Ask runs the full pipeline for q. It never fails outright: errors surface as fallback answers.
func (a *Agent) Ask(ctx context.Context, q Question) Answer {
	question := strings.TrimSpace(q.Text)
	language := lang.Resolve(q.Language, question, a.opts.DefaultLanguage)
	if question == "" {
		return Answer{Text: FallbackEmpty.Message(language), Language: language, Fallback: FallbackEmpty, Err: ErrEmptyQuestion}
	}
	k := q.TopK
	if k <= 0 {
		k = a.opts.TopK
	}

	key := cache.Key(question, language, k)
	if cached, err := a.cache.GetAnswer(ctx, key); err != nil {
		a.log.Warn("cache lookup failed", "err", err)
	} else if cached != nil {
		a.log.Info("cache hit", "language", cached.Language)
		ans := fromCache(cached)
		a.record(ctx, question, ans)
		return ans
	}

	ans := a.answer(ctx, question, language, k)

	if ans.Fallback == FallbackNone {
		if err := a.cache.SetAnswer(ctx, key, toCache(ans), a.opts.CacheTTL); err != nil {
			a.log.Warn("failed to cache answer", "err", err)
		}
	}
	a.record(ctx, question, ans)
	return ans
}

func (a *Agent) answer(ctx context.Context, question, language string, k int) Answer {
	hits, err := a.retrieve(ctx, question, k)
	if err != nil {
		a.log.Error("retrieval failed", "err", err)
		return Answer{Text: FallbackService.Message(language), Language: language, Fallback: FallbackService, Err: err}
	}

	passages := AssembleContext(index.Texts(hits), a.opts.MaxContextLength)
	prompt := BuildPrompt(language, passages, question)

	out, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		a.log.Error("generation failed", "err", err)
		return Answer{Text: FallbackTimeout.Message(language), Language: language, Sources: hits, Fallback: FallbackTimeout, Err: fmt.Errorf("generate: %w", err)}
	}
	out = strings.TrimSpace(out)
	if out == "" {
		a.log.Warn("model returned an empty answer")
		return Answer{Text: FallbackEmpty.Message(language), Language: language, Sources: hits, Fallback: FallbackEmpty}
	}
	return Answer{Text: out, Language: language, Sources: hits}
}

// retrieve returns no hits, and no error, when the question cannot be embedded.
// Only index failures are reported.
func (a *Agent) retrieve(ctx context.Context, question string, k int) ([]index.Hit, error) {
	vec, err := a.embedder.Embed(ctx, question)
	if err != nil || len(vec) == 0 {
		a.log.Warn("could not embed question, answering without context", "err", err)
		return nil, nil
	}
	hits, err := a.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return hits, nil
}

func (a *Agent) record(ctx context.Context, question string, ans Answer) {
	ids := make([]string, len(ans.Sources))
	for i, h := range ans.Sources {
		ids[i] = h.Passage.ID
	}
	entry := journal.NewEntry(question, ans.Text, ans.Language, string(ans.Fallback), ids)
	if err := a.journal.Record(ctx, entry); err != nil {
		a.log.Warn("failed to record conversation", "id", entry.ID, "err", err)
	}
}

func toCache(ans Answer) *cache.Answer {
	sources := make([]cache.Source, len(ans.Sources))
	for i, h := range ans.Sources {
		sources[i] = cache.Source{ID: h.Passage.ID, Score: h.Score, Preview: Preview(h.Passage.Text, previewLength)}
	}
	return &cache.Answer{Text: ans.Text, Language: ans.Language, Sources: sources}
}

func fromCache(c *cache.Answer) Answer {
	hits := make([]index.Hit, len(c.Sources))
	for i, s := range c.Sources {
		hits[i] = index.Hit{Passage: index.Passage{ID: s.ID, Text: s.Preview}, Score: s.Score}
	}
	return Answer{Text: c.Text, Language: c.Language, Sources: hits, Cached: true}
}
