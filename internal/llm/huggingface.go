package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/go-huggingface"
)

// DefaultHuggingFaceModel is a small instruction-tuned seq2seq model.
const DefaultHuggingFaceModel = "google/flan-t5-base"

// HuggingFaceGenerator runs the text2text-generation task on the Hugging Face Inference API.
type HuggingFaceGenerator struct {
	model        string
	maxNewTokens int
	timeout      time.Duration
	client       *huggingface.InferenceClient
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

func NewHuggingFaceGenerator(token, model string, maxNewTokens int, opts ...HuggingFaceOption) *HuggingFaceGenerator {
	if model == "" {
		model = DefaultHuggingFaceModel
	}
	if maxNewTokens <= 0 {
		maxNewTokens = DefaultMaxNewTokens
	}
	client := huggingface.NewInferenceClient(token, opts...)
	client.SetModel(model)
	return &HuggingFaceGenerator{
		model:        model,
		maxNewTokens: maxNewTokens,
		timeout:      defaultChatTimeout,
		client:       client,
	}
}

// WithTimeout overrides the per-request timeout.
func (g *HuggingFaceGenerator) WithTimeout(d time.Duration) *HuggingFaceGenerator {
	if d > 0 {
		g.timeout = d
	}
	return g
}

func (g *HuggingFaceGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Text2TextGeneration(reqCtx, &huggingface.Text2TextGenerationRequest{
		Inputs: prompt,
		Parameters: huggingface.Text2TextGenerationParameters{
			MaxNewTokens:   huggingface.PTR(g.maxNewTokens),
			ReturnFullText: huggingface.PTR(false),
		},
		Options: huggingface.Options{
			WaitForModel: huggingface.PTR(true),
		},
	})
	if err != nil {
		return "", fmt.Errorf("huggingface text2text generation (%s): %w", g.model, err)
	}
	if len(resp) == 0 {
		return "", fmt.Errorf("huggingface text2text generation (%s): no output returned", g.model)
	}
	return strings.TrimSpace(resp[0].GeneratedText), nil
}
