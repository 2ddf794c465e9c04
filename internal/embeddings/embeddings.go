package embeddings

import (
	"context"
	"errors"
	"math"
)

// Vector is a simple float32 slice wrapper.
type Vector []float32

// ErrEmptyText is returned when asked to embed blank input.
var ErrEmptyText = errors.New("embeddings: empty text")

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dimensions() int
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Empty, mismatched or zero-norm vectors score 0.
func CosineSimilarity(a, b Vector) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Normalize returns an L2-normalised copy of v. A zero vector is returned unchanged.
func Normalize(v Vector) Vector {
	out := make(Vector, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
