package index

import (
	"context"
	"errors"

	"itsmehi/internal/embeddings"
)

// DefaultTopK is the number of passages retrieved when a caller does not ask for a size.
const DefaultTopK = 3

var (
	ErrDimensionMismatch = errors.New("index: vector dimension mismatch")
	ErrLengthMismatch    = errors.New("index: passages and vectors length mismatch")
	ErrEmptyVector       = errors.New("index: empty query vector")
	ErrNotInitialized    = errors.New("index: collection not initialized")
)

// Passage is a unit of knowledge-base text stored next to its vector.
type Passage struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// Hit is a passage returned by a similarity search.
type Hit struct {
	Passage Passage `json:"passage"`
	Score   float32 `json:"score"`
}

// Index stores passage vectors and answers nearest-neighbour queries by cosine similarity.
type Index interface {
	// EnsureCollection creates the collection for vectors of the given size when missing.
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, passages []Passage, vectors []embeddings.Vector) error
	// Search returns at most k hits ordered by descending score.
	Search(ctx context.Context, vector embeddings.Vector, k int) ([]Hit, error)
	List(ctx context.Context, limit int) ([]Passage, error)
	Drop(ctx context.Context) error
	Close() error
}

// Texts extracts the passage text of each hit, preserving order.
func Texts(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Passage.Text
	}
	return out
}

// NormalizeK applies the default for non-positive k.
func NormalizeK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	return k
}
