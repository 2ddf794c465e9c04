package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"itsmehi/internal/app"
	"itsmehi/internal/cache"
	"itsmehi/internal/embeddings"
	"itsmehi/internal/index"
	"itsmehi/internal/journal"
	"itsmehi/internal/llm"
	"itsmehi/internal/rag"
)

type mocks struct {
	embedder  *embeddings.MockEmbedder
	index     *index.MockIndex
	generator *llm.MockGenerator
}

func newTestDeps(m mocks) app.Deps {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return app.Deps{
		Log:   log,
		Agent: rag.NewAgent(log, m.embedder, m.index, m.generator, cache.NewNoOpCache(), journal.NoOp{}, rag.Options{}),
	}
}

func TestAskHandler(t *testing.T) {
	hits := []index.Hit{
		{Passage: index.Passage{ID: "sample#0", Text: "Soy analista de datos especializado en procesamiento de lenguaje natural."}, Score: 0.93},
	}

	tests := []struct {
		name           string
		requestBody    string
		setup          func(m mocks)
		wantStatusCode int
		checkResponse  func(t *testing.T, resp askResponse)
	}{
		{
			name:        "answers in spanish",
			requestBody: `{"question": "¿A qué te dedicas?", "language": "es"}`,
			setup: func(m mocks) {
				m.embedder.On("Embed", mock.Anything, "¿A qué te dedicas?").Return(embeddings.Vector{0.1, 0.2}, nil).Once()
				m.index.On("Search", mock.Anything, embeddings.Vector{0.1, 0.2}, 3).Return(hits, nil).Once()
				m.generator.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
					return strings.HasPrefix(p, "Usa el siguiente contexto")
				})).Return("Soy analista de datos.", nil).Once()
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, resp askResponse) {
				require.Equal(t, "Soy analista de datos.", resp.Answer)
				require.Equal(t, "es", resp.Language)
				require.Empty(t, resp.Fallback)
				require.Len(t, resp.Sources, 1)
				require.Equal(t, "sample#0", resp.Sources[0].ID)
				require.False(t, resp.Cached)
			},
		},
		{
			name:        "custom top_k in english",
			requestBody: `{"question": "What do you do?", "language": "en", "top_k": 2}`,
			setup: func(m mocks) {
				m.embedder.On("Embed", mock.Anything, "What do you do?").Return(embeddings.Vector{1}, nil).Once()
				m.index.On("Search", mock.Anything, embeddings.Vector{1}, 2).Return(hits, nil).Once()
				m.generator.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
					return strings.HasPrefix(p, "Use the following context")
				})).Return("I analyse data.", nil).Once()
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, resp askResponse) {
				require.Equal(t, "I analyse data.", resp.Answer)
				require.Equal(t, "en", resp.Language)
			},
		},
		{
			name:        "search failure still answers with fallback",
			requestBody: `{"question": "hola", "language": "es"}`,
			setup: func(m mocks) {
				m.embedder.On("Embed", mock.Anything, "hola").Return(embeddings.Vector{1}, nil).Once()
				m.index.On("Search", mock.Anything, embeddings.Vector{1}, 3).Return(nil, errors.New("unavailable")).Once()
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, resp askResponse) {
				require.Equal(t, "⚠️ Ha ocurrido un error al generar la respuesta. Inténtalo más tarde.", resp.Answer)
				require.Equal(t, string(rag.FallbackService), resp.Fallback)
				require.Empty(t, resp.Sources)
			},
		},
		{
			name:        "generation timeout",
			requestBody: `{"question": "hola", "language": "es"}`,
			setup: func(m mocks) {
				m.embedder.On("Embed", mock.Anything, "hola").Return(embeddings.Vector{1}, nil).Once()
				m.index.On("Search", mock.Anything, embeddings.Vector{1}, 3).Return(hits, nil).Once()
				m.generator.On("Generate", mock.Anything, mock.Anything).Return("", context.DeadlineExceeded).Once()
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, resp askResponse) {
				require.Equal(t, "⚡ El modelo no respondió a tiempo. Intenta nuevamente.", resp.Answer)
				require.Equal(t, string(rag.FallbackTimeout), resp.Fallback)
			},
		},
		{
			name:           "invalid json",
			requestBody:    `{"question": `,
			setup:          func(m mocks) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "missing question",
			requestBody:    `{"language": "es"}`,
			setup:          func(m mocks) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "unsupported language",
			requestBody:    `{"question": "bonjour", "language": "fr"}`,
			setup:          func(m mocks) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "top_k out of range",
			requestBody:    `{"question": "hola", "top_k": 50}`,
			setup:          func(m mocks) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "question too long",
			requestBody:    `{"question": "` + strings.Repeat("a", 1001) + `"}`,
			setup:          func(m mocks) {},
			wantStatusCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mocks{
				embedder:  new(embeddings.MockEmbedder),
				index:     new(index.MockIndex),
				generator: new(llm.MockGenerator),
			}
			tt.setup(m)

			req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(tt.requestBody))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			askHandler(newTestDeps(m))(rec, req)

			resp := rec.Result()
			defer resp.Body.Close()
			require.Equal(t, tt.wantStatusCode, resp.StatusCode)

			if tt.checkResponse != nil {
				var body askResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				tt.checkResponse(t, body)
			}

			m.embedder.AssertExpectations(t)
			m.index.AssertExpectations(t)
			m.generator.AssertExpectations(t)
		})
	}
}

func TestBuildSourcesTruncatesPreview(t *testing.T) {
	long := strings.Repeat("palabra ", 40)
	sources := buildSources(rag.Answer{Sources: []index.Hit{{Passage: index.Passage{ID: "cv#0", Text: long}, Score: 0.5}}})
	require.Len(t, sources, 1)
	require.True(t, strings.HasSuffix(sources[0].Preview, "..."))
	require.LessOrEqual(t, len(sources[0].Preview), 153)
}
