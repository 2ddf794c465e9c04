package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"itsmehi/internal/app"
	"itsmehi/internal/embeddings"
	"itsmehi/internal/index/memory"
	"itsmehi/internal/journal"
	"itsmehi/internal/store"
)

func newTestBuild(t *testing.T) (buildFunc, *memory.Storage, *int) {
	t.Helper()
	emb := new(embeddings.MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return(embeddings.Vector{1, 0, 0}, nil)
	emb.On("Dimensions").Return(3)

	idx := memory.NewStorage()
	persisted := 0
	build := func() (app.KBDeps, error) {
		return app.KBDeps{
			Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
			Index:    idx,
			Embedder: emb,
			Persist:  func() error { persisted++; return nil },
		}, nil
	}
	return build, idx, &persisted
}

func execute(t *testing.T, build buildFunc, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(build)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeedSample(t *testing.T) {
	build, idx, persisted := newTestBuild(t)

	out, err := execute(t, build, "seed", "--sample")
	require.NoError(t, err)
	require.Contains(t, out, "4 passages loaded")
	require.Equal(t, 4, idx.Len())
	require.Equal(t, 1, *persisted)
}

func TestSeedFiles(t *testing.T) {
	build, idx, _ := newTestBuild(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cv.txt"), []byte("Python y SQL.\n\nVivo en Madrid."), 0o644))

	_, err := execute(t, build, "seed", "--max-tokens", "3", dir)
	require.NoError(t, err)
	require.Equal(t, 2, idx.Len())

	// Re-seeding the same file overwrites its passages.
	_, err = execute(t, build, "seed", "--max-tokens", "3", dir)
	require.NoError(t, err)
	require.Equal(t, 2, idx.Len())
}

func TestSeedRequiresInput(t *testing.T) {
	build, _, _ := newTestBuild(t)
	_, err := execute(t, build, "seed")
	require.ErrorContains(t, err, "nothing to seed")
}

func TestListPrintsPassages(t *testing.T) {
	build, _, _ := newTestBuild(t)
	_, err := execute(t, build, "seed", "--sample")
	require.NoError(t, err)

	out, err := execute(t, build, "list", "--limit", "2")
	require.NoError(t, err)
	require.Contains(t, out, "2 passages found")
	require.Contains(t, out, "ID: sample#0 | Source: sample")
	require.NotContains(t, out, "sample#2")
}

func TestDropNeedsConfirmation(t *testing.T) {
	build, idx, persisted := newTestBuild(t)
	_, err := execute(t, build, "seed", "--sample")
	require.NoError(t, err)

	_, err = execute(t, build, "drop")
	require.Error(t, err)
	require.Equal(t, 4, idx.Len())

	out, err := execute(t, build, "drop", "--yes")
	require.NoError(t, err)
	require.Contains(t, out, "Collection dropped")
	require.Equal(t, 0, idx.Len())
	require.Equal(t, 2, *persisted)
}

func withConversations(build buildFunc, st store.Store) buildFunc {
	return func() (app.KBDeps, error) {
		deps, err := build()
		deps.OpenConversations = func() (store.Store, error) { return st, nil }
		return deps, err
	}
}

func TestHistoryPrintsRecentConversations(t *testing.T) {
	build, _, _ := newTestBuild(t)
	st := new(store.MockStore)
	st.On("RecentConversations", mock.Anything, 5).Return([]journal.Entry{
		{
			At:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			Question: "¿Qué sabes de NLP?",
			Answer:   "Trabajé con spaCy.",
			Language: "es",
			Sources:  []string{"sample#1"},
		},
		{
			At:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			Question: "Hola",
			Answer:   "Lo siento, no tengo información sobre eso.",
			Language: "es",
			Fallback: "empty",
		},
	}, nil)
	st.On("Close").Return(nil)

	out, err := execute(t, withConversations(build, st), "history", "--limit", "5")
	require.NoError(t, err)
	require.Contains(t, out, "2 conversations found")
	require.Contains(t, out, "2026-03-01T10:00:00Z [es] Q: ¿Qué sabes de NLP?")
	require.Contains(t, out, "sources: sample#1")
	require.Contains(t, out, "fallback: empty")
	st.AssertExpectations(t)
}

func TestHistoryEmptyLog(t *testing.T) {
	build, _, _ := newTestBuild(t)
	st := new(store.MockStore)
	st.On("RecentConversations", mock.Anything, 20).Return(nil, store.ErrConversationNotFound)
	st.On("Close").Return(nil)

	out, err := execute(t, withConversations(build, st), "history")
	require.NoError(t, err)
	require.Contains(t, out, "No conversations recorded yet.")
}

func TestHistoryRequiresDatabase(t *testing.T) {
	build, _, _ := newTestBuild(t)
	_, err := execute(t, build, "history")
	require.ErrorContains(t, err, "DB_URL is required")
}
