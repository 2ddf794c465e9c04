package llm

import (
	"context"
	"errors"
)

// DefaultMaxNewTokens bounds the length of a generated answer.
const DefaultMaxNewTokens = 256

// ErrEmptyPrompt is returned when Generate is called without a prompt.
var ErrEmptyPrompt = errors.New("llm: empty prompt")

// Generator is a minimal text-generation interface to allow pluggable providers.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
