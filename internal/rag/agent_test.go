package rag

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"itsmehi/internal/cache"
	"itsmehi/internal/embeddings"
	"itsmehi/internal/index"
	"itsmehi/internal/journal"
	"itsmehi/internal/llm"
)

type fixture struct {
	embedder  *embeddings.MockEmbedder
	index     *index.MockIndex
	generator *llm.MockGenerator
	cache     *cache.MockCache
	journal   *journal.MockJournal
	agent     *Agent
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		embedder:  new(embeddings.MockEmbedder),
		index:     new(index.MockIndex),
		generator: new(llm.MockGenerator),
		cache:     new(cache.MockCache),
		journal:   new(journal.MockJournal),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.agent = NewAgent(log, f.embedder, f.index, f.generator, f.cache, f.journal, opts)
	return f
}

var sampleHits = []index.Hit{
	{Passage: index.Passage{ID: "sample#0", Text: "Trabajo como ingeniera de datos."}, Score: 0.91},
	{Passage: index.Passage{ID: "sample#1", Text: "Vivo en Madrid."}, Score: 0.72},
}

func TestAskHappyPath(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()
	vec := embeddings.Vector{0.1, 0.2}
	question := "¿Dónde vives y en qué trabajas?"

	f.cache.On("GetAnswer", ctx, mock.Anything).Return(nil, nil)
	f.embedder.On("Embed", ctx, question).Return(vec, nil)
	f.index.On("Search", ctx, vec, index.DefaultTopK).Return(sampleHits, nil)
	wantPrompt := BuildPrompt("es", "Trabajo como ingeniera de datos.\nVivo en Madrid.", question)
	f.generator.On("Generate", ctx, wantPrompt).Return("  Vivo en Madrid y trabajo con datos.\n", nil)
	f.cache.On("SetAnswer", ctx, mock.Anything, mock.AnythingOfType("*cache.Answer"), time.Hour).Return(nil)
	f.journal.On("Record", ctx, mock.MatchedBy(func(e journal.Entry) bool {
		return e.Question == question && e.Fallback == "" && len(e.Sources) == 2 && e.Sources[0] == "sample#0"
	})).Return(nil)

	ans := f.agent.Ask(ctx, Question{Text: question, Language: "es"})

	require.NoError(t, ans.Err)
	require.Equal(t, "Vivo en Madrid y trabajo con datos.", ans.Text)
	require.Equal(t, "es", ans.Language)
	require.Equal(t, FallbackNone, ans.Fallback)
	require.Len(t, ans.Sources, 2)
	require.False(t, ans.Cached)
	f.generator.AssertExpectations(t)
	f.cache.AssertExpectations(t)
	f.journal.AssertExpectations(t)
}

func TestAskUsesEnglishPromptAndCustomTopK(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()
	vec := embeddings.Vector{1}

	f.cache.On("GetAnswer", ctx, mock.Anything).Return(nil, nil)
	f.embedder.On("Embed", ctx, "What do you do?").Return(vec, nil)
	f.index.On("Search", ctx, vec, 5).Return(sampleHits[:1], nil)
	f.generator.On("Generate", ctx, mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(p, "Use the following context") && strings.HasSuffix(p, "Question: What do you do?\nAnswer:")
	})).Return("Data engineering.", nil)
	f.cache.On("SetAnswer", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.journal.On("Record", ctx, mock.Anything).Return(nil)

	ans := f.agent.Ask(ctx, Question{Text: "What do you do?", Language: "en", TopK: 5})
	require.Equal(t, "Data engineering.", ans.Text)
	require.Equal(t, "en", ans.Language)
	f.index.AssertExpectations(t)
}

func TestAskEmbeddingFailureContinuesWithoutContext(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	f.cache.On("GetAnswer", ctx, mock.Anything).Return(nil, nil)
	f.embedder.On("Embed", ctx, "hola").Return(nil, errors.New("hf unavailable"))
	f.generator.On("Generate", ctx, BuildPrompt("es", "", "hola")).Return("¡Hola!", nil)
	f.cache.On("SetAnswer", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.journal.On("Record", ctx, mock.Anything).Return(nil)

	ans := f.agent.Ask(ctx, Question{Text: "hola", Language: "es"})
	require.NoError(t, ans.Err)
	require.Equal(t, "¡Hola!", ans.Text)
	require.Empty(t, ans.Sources)
	f.index.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
}

func TestAskSearchFailureReturnsServiceFallback(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()
	vec := embeddings.Vector{1}
	searchErr := errors.New("qdrant down")

	f.cache.On("GetAnswer", ctx, mock.Anything).Return(nil, nil)
	f.embedder.On("Embed", ctx, "hola").Return(vec, nil)
	f.index.On("Search", ctx, vec, index.DefaultTopK).Return(nil, searchErr)
	f.journal.On("Record", ctx, mock.MatchedBy(func(e journal.Entry) bool {
		return e.Fallback == string(FallbackService)
	})).Return(nil)

	ans := f.agent.Ask(ctx, Question{Text: "hola", Language: "es"})
	require.ErrorIs(t, ans.Err, searchErr)
	require.Equal(t, FallbackService, ans.Fallback)
	require.Equal(t, FallbackService.Message("es"), ans.Text)
	f.generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	f.cache.AssertNotCalled(t, "SetAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.journal.AssertExpectations(t)
}

func TestAskGenerationFailureReturnsTimeoutFallback(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()
	vec := embeddings.Vector{1}

	f.cache.On("GetAnswer", ctx, mock.Anything).Return(nil, nil)
	f.embedder.On("Embed", ctx, "hello").Return(vec, nil)
	f.index.On("Search", ctx, vec, index.DefaultTopK).Return(sampleHits, nil)
	f.generator.On("Generate", ctx, mock.Anything).Return("", context.DeadlineExceeded)
	f.journal.On("Record", ctx, mock.Anything).Return(nil)

	ans := f.agent.Ask(ctx, Question{Text: "hello", Language: "en"})
	require.ErrorIs(t, ans.Err, context.DeadlineExceeded)
	require.Equal(t, FallbackTimeout, ans.Fallback)
	require.Equal(t, "⚡ The model did not respond in time. Please try again.", ans.Text)
	f.cache.AssertNotCalled(t, "SetAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAskBlankGenerationReturnsEmptyFallback(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()
	vec := embeddings.Vector{1}

	f.cache.On("GetAnswer", ctx, mock.Anything).Return(nil, nil)
	f.embedder.On("Embed", ctx, "hola").Return(vec, nil)
	f.index.On("Search", ctx, vec, index.DefaultTopK).Return(sampleHits, nil)
	f.generator.On("Generate", ctx, mock.Anything).Return(" \n\t", nil)
	f.journal.On("Record", ctx, mock.Anything).Return(nil)

	ans := f.agent.Ask(ctx, Question{Text: "hola", Language: "es"})
	require.NoError(t, ans.Err)
	require.Equal(t, FallbackEmpty, ans.Fallback)
	require.Equal(t, "⚠️ No se pudo generar una respuesta útil.", ans.Text)
}

func TestAskBlankQuestionSkipsProviders(t *testing.T) {
	f := newFixture(Options{})

	ans := f.agent.Ask(context.Background(), Question{Text: "   "})
	require.ErrorIs(t, ans.Err, ErrEmptyQuestion)
	require.Equal(t, FallbackEmpty, ans.Fallback)
	require.Equal(t, "es", ans.Language)
	f.embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	f.cache.AssertNotCalled(t, "GetAnswer", mock.Anything, mock.Anything)
	f.journal.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestAskCacheHit(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()
	key := cache.Key("hola", "es", index.DefaultTopK)

	f.cache.On("GetAnswer", ctx, key).Return(&cache.Answer{
		Text:     "Respuesta guardada",
		Language: "es",
		Sources:  []cache.Source{{ID: "sample#2", Score: 0.5, Preview: "..."}},
	}, nil)
	f.journal.On("Record", ctx, mock.Anything).Return(nil)

	ans := f.agent.Ask(ctx, Question{Text: "hola", Language: "es"})
	require.True(t, ans.Cached)
	require.Equal(t, "Respuesta guardada", ans.Text)
	require.Equal(t, "sample#2", ans.Sources[0].Passage.ID)
	f.embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	f.generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestAskSurvivesCacheAndJournalErrors(t *testing.T) {
	f := newFixture(Options{CacheTTL: time.Minute})
	ctx := context.Background()
	vec := embeddings.Vector{1}

	f.cache.On("GetAnswer", ctx, mock.Anything).Return(nil, errors.New("redis timeout"))
	f.embedder.On("Embed", ctx, "hola").Return(vec, nil)
	f.index.On("Search", ctx, vec, index.DefaultTopK).Return(sampleHits, nil)
	f.generator.On("Generate", ctx, mock.Anything).Return("Hola.", nil)
	f.cache.On("SetAnswer", ctx, mock.Anything, mock.Anything, time.Minute).Return(errors.New("redis timeout"))
	f.journal.On("Record", ctx, mock.Anything).Return(errors.New("nats down"))

	ans := f.agent.Ask(ctx, Question{Text: "hola", Language: "es"})
	require.NoError(t, ans.Err)
	require.Equal(t, "Hola.", ans.Text)
}

func TestAskRespectsContextLimit(t *testing.T) {
	f := newFixture(Options{MaxContextLength: 10})
	ctx := context.Background()
	vec := embeddings.Vector{1}

	f.cache.On("GetAnswer", ctx, mock.Anything).Return(nil, nil)
	f.embedder.On("Embed", ctx, "hola").Return(vec, nil)
	f.index.On("Search", ctx, vec, index.DefaultTopK).Return(sampleHits, nil)
	f.generator.On("Generate", ctx, BuildPrompt("es", "Trabajo co", "hola")).Return("ok", nil)
	f.cache.On("SetAnswer", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.journal.On("Record", ctx, mock.Anything).Return(nil)

	ans := f.agent.Ask(ctx, Question{Text: "hola", Language: "es"})
	require.Equal(t, "ok", ans.Text)
	f.generator.AssertExpectations(t)
}
