// Package memory is an in-process vector index using brute-force cosine similarity.
// It suits the small, static knowledge base this service answers from.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"itsmehi/internal/embeddings"
	"itsmehi/internal/index"
)

// Storage is an index.Index held in memory. It is safe for concurrent use.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	passages  []index.Passage
	vectors   []embeddings.Vector // L2-normalised
	byID      map[string]int
}

// NewStorage returns an empty index. Load restores a saved snapshot into it.
func NewStorage() *Storage {
	return &Storage{byID: make(map[string]int)}
}

func (s *Storage) EnsureCollection(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension && len(s.passages) > 0 {
		return fmt.Errorf("%w: collection has %d, requested %d", index.ErrDimensionMismatch, s.dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

// Upsert inserts passages, replacing any stored passage with the same ID in place.
func (s *Storage) Upsert(_ context.Context, passages []index.Passage, vectors []embeddings.Vector) error {
	if len(passages) != len(vectors) {
		return index.ErrLengthMismatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return index.ErrNotInitialized
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("%w: expected %d, got %d", index.ErrDimensionMismatch, s.dimension, len(v))
		}
	}
	for i, p := range passages {
		vec := embeddings.Normalize(vectors[i])
		if j, ok := s.byID[p.ID]; ok && p.ID != "" {
			s.passages[j] = p
			s.vectors[j] = vec
			continue
		}
		s.byID[p.ID] = len(s.passages)
		s.passages = append(s.passages, p)
		s.vectors = append(s.vectors, vec)
	}
	return nil
}

// Search scores every stored vector; equal scores keep insertion order.
func (s *Storage) Search(_ context.Context, vector embeddings.Vector, k int) ([]index.Hit, error) {
	if len(vector) == 0 {
		return nil, index.ErrEmptyVector
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", index.ErrDimensionMismatch, s.dimension, len(vector))
	}
	k = index.NormalizeK(k)

	query := embeddings.Normalize(vector)
	hits := make([]index.Hit, len(s.vectors))
	for i := range s.vectors {
		hits[i] = index.Hit{Passage: s.passages[i], Score: dot(s.vectors[i], query)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func (s *Storage) List(_ context.Context, limit int) ([]index.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.passages)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]index.Passage, n)
	copy(out, s.passages[:n])
	return out, nil
}

func (s *Storage) Drop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = 0
	s.passages = nil
	s.vectors = nil
	s.byID = make(map[string]int)
	return nil
}

func (s *Storage) Close() error { return nil }

// Len returns the number of stored passages.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passages)
}

type snapshot struct {
	Dimension int                 `json:"dimension"`
	Passages  []index.Passage     `json:"passages"`
	Vectors   []embeddings.Vector `json:"vectors"`
}

// Save writes the collection to path as JSON, creating directories as needed.
func (s *Storage) Save(path string) error {
	s.mu.RLock()
	data, err := json.Marshal(snapshot{Dimension: s.dimension, Passages: s.passages, Vectors: s.vectors})
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load replaces the collection with the snapshot stored at path.
// A missing file leaves the storage empty and is not an error.
func (s *Storage) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if len(snap.Passages) != len(snap.Vectors) {
		return fmt.Errorf("snapshot %s: %w", path, index.ErrLengthMismatch)
	}
	if err := s.Drop(context.Background()); err != nil {
		return err
	}
	if snap.Dimension == 0 {
		return nil
	}
	if err := s.EnsureCollection(context.Background(), snap.Dimension); err != nil {
		return err
	}
	return s.Upsert(context.Background(), snap.Passages, snap.Vectors)
}

func dot(a, b embeddings.Vector) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
