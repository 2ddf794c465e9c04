package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/go-huggingface"
)

// DefaultHuggingFaceModel produces 384-wide sentence embeddings.
const DefaultHuggingFaceModel = "sentence-transformers/all-MiniLM-L6-v2"

// HuggingFaceEmbedder calls the Hugging Face Inference API feature-extraction task.
type HuggingFaceEmbedder struct {
	model      string
	dimensions int
	timeout    time.Duration
	client     *huggingface.InferenceClient
}

// HuggingFaceOption customises the underlying inference client.
type HuggingFaceOption = func(*huggingface.InferenceClientOptions)

// WithInferenceEndpoint points the client at another inference host.
func WithInferenceEndpoint(url string) HuggingFaceOption {
	return func(o *huggingface.InferenceClientOptions) {
		if url != "" {
			o.InferenceEndpoint = strings.TrimRight(url, "/")
		}
	}
}

// NewHuggingFaceEmbedder builds an embedder for model. The token may be empty for
// public models, at the cost of stricter rate limits.
func NewHuggingFaceEmbedder(token, model string, dimensions int, opts ...HuggingFaceOption) *HuggingFaceEmbedder {
	if model == "" {
		model = DefaultHuggingFaceModel
	}
	client := huggingface.NewInferenceClient(token, opts...)
	client.SetModel(model)
	return &HuggingFaceEmbedder{
		model:      model,
		dimensions: dimensions,
		timeout:    defaultEmbeddingTimeout,
		client:     client,
	}
}

// WithTimeout overrides the per-request timeout.
func (e *HuggingFaceEmbedder) WithTimeout(d time.Duration) *HuggingFaceEmbedder {
	if d > 0 {
		e.timeout = d
	}
	return e
}

func (e *HuggingFaceEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *HuggingFaceEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.FeatureExtractionWithAutomaticReduction(ctx, &huggingface.FeatureExtractionRequest{
		Inputs: []string{text},
		Options: huggingface.Options{
			WaitForModel: huggingface.PTR(true),
			UseCache:     huggingface.PTR(true),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("huggingface feature extraction (%s): %w", e.model, err)
	}
	if len(resp) == 0 || len(resp[0]) == 0 {
		return nil, fmt.Errorf("huggingface feature extraction (%s): empty response", e.model)
	}
	vec := Vector(resp[0])
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return nil, fmt.Errorf("huggingface feature extraction (%s): expected %d dimensions, got %d", e.model, e.dimensions, len(vec))
	}
	return vec, nil
}
