package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Cache stores finished answers so repeated questions skip the vendor round trips.
type Cache interface {
	// GetAnswer retrieves a cached answer by key.
	// Returns nil if not found.
	GetAnswer(ctx context.Context, key string) (*Answer, error)

	// SetAnswer stores an answer with TTL.
	SetAnswer(ctx context.Context, key string, answer *Answer, ttl time.Duration) error

	// Close closes the cache connection
	Close() error
}

// Answer represents a cached pipeline response.
type Answer struct {
	Text     string   `json:"text"`
	Language string   `json:"language"`
	Sources  []Source `json:"sources"`
}

// Source represents a knowledge-base passage that grounded an answer.
type Source struct {
	ID      string  `json:"id"`
	Score   float32 `json:"score"`
	Preview string  `json:"preview"` // Truncated text preview
}

// Prefix namespaces cached answers in shared stores.
const Prefix = "answer:"

// Key derives the cache key for a question. Questions differing only in case or
// surrounding whitespace share a key.
func Key(question, language string, k int) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", strings.ToLower(language), normalized, k)))
	return Prefix + hex.EncodeToString(sum[:])
}
