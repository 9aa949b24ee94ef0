package llm

import (
	"context"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIGenerator is the OpenAI chat completion adapter.
type OpenAIGenerator struct {
	client *openai.Client
	params Params
}

// NewOpenAIGenerator creates a new OpenAI adapter. baseURL may point at any
// OpenAI-compatible endpoint.
func NewOpenAIGenerator(apiKey, baseURL string, params Params) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		params: openAIParams(params),
	}, nil
}

func openAIParams(p Params) Params {
	if p.Model == "" {
		p.Model = defaultOpenAIModel
	}
	return p
}

// WithParams returns a generator sharing this client with different sampling params.
func (g *OpenAIGenerator) WithParams(p Params) Generator {
	return &OpenAIGenerator{client: g.client, params: openAIParams(p)}
}

// Generate sends the prompt as a single user message.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (*Generation, error) {
	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.params.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:        g.params.MaxTokens,
		Temperature:      float32(g.params.Temperature),
		TopP:             float32(g.params.TopP),
		FrequencyPenalty: float32(g.params.FrequencyPenalty),
		PresencePenalty:  float32(g.params.PresencePenalty),
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	return &Generation{
		Text:       resp.Choices[0].Message.Content,
		Model:      resp.Model,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		StopReason: string(resp.Choices[0].FinishReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
