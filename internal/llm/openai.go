package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIGenerator calls the Chat Completions API. Pointing it at another base URL
// lets it drive any OpenAI-compatible backend (Gemini exposes one).
type OpenAIGenerator struct {
	model        openai.ChatModel
	maxNewTokens int
	timeout      time.Duration
	client       *openai.Client
}

const (
	defaultChatTimeout     = 60 * time.Second
	defaultChatTemperature = 0.0
)

// NewOpenAIGenerator builds a client with defaults against api.openai.com unless
// opts override the base URL.
func NewOpenAIGenerator(apiKey string, model openai.ChatModel, maxNewTokens int, opts ...option.RequestOption) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	if maxNewTokens <= 0 {
		maxNewTokens = DefaultMaxNewTokens
	}
	cli := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIGenerator{
		model:        model,
		maxNewTokens: maxNewTokens,
		timeout:      defaultChatTimeout,
		client:       &cli,
	}, nil
}

// WithTimeout overrides the per-request timeout.
func (g *OpenAIGenerator) WithTimeout(d time.Duration) *OpenAIGenerator {
	if d > 0 {
		g.timeout = d
	}
	return g
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.client == nil {
		return "", fmt.Errorf("nil openai client")
	}
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
		Model:               g.model,
		Messages:            []openai.ChatCompletionMessageParamUnion{userMessage(prompt)},
		Temperature:         openai.Float(defaultChatTemperature),
		MaxCompletionTokens: openai.Int(int64(g.maxNewTokens)),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func userMessage(content string) openai.ChatCompletionMessageParamUnion {
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(content),
			},
		},
	}
}
