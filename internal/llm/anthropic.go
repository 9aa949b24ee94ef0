package llm

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-3-5-haiku-20241022"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicGenerator is the Anthropic messages adapter.
type AnthropicGenerator struct {
	client *anthropic.Client
	params Params
}

// NewAnthropicGenerator creates a new Anthropic adapter.
func NewAnthropicGenerator(apiKey string, params Params) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	return &AnthropicGenerator{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		params: anthropicParams(params),
	}, nil
}

func anthropicParams(p Params) Params {
	if p.Model == "" {
		p.Model = defaultAnthropicModel
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = defaultAnthropicMaxTokens
	}
	// Anthropic accepts temperature in [0, 1].
	if p.Temperature > 1 {
		p.Temperature = 1
	}
	return p
}

// WithParams returns a generator sharing this client with different sampling params.
func (g *AnthropicGenerator) WithParams(p Params) Generator {
	return &AnthropicGenerator{client: g.client, params: anthropicParams(p)}
}

// Generate sends the prompt as a single user turn.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (*Generation, error) {
	start := time.Now()

	req := anthropic.MessageNewParams{
		Model:     anthropic.F(g.params.Model),
		MaxTokens: anthropic.F(int64(g.params.MaxTokens)),
		Messages: anthropic.F([]anthropic.MessageParam{
			{
				Role: anthropic.F(anthropic.MessageParamRoleUser),
				Content: anthropic.F([]anthropic.ContentBlockParamUnion{
					anthropic.TextBlockParam{
						Type: anthropic.F(anthropic.TextBlockParamTypeText),
						Text: anthropic.F(prompt),
					},
				}),
			},
		}),
		Temperature: anthropic.F(g.params.Temperature),
	}
	if g.params.TopP > 0 && g.params.TopP < 1 {
		req.TopP = anthropic.F(g.params.TopP)
	}

	resp, err := g.client.Messages.New(ctx, req)
	if err != nil {
		return nil, err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}
	if content == "" {
		return nil, ErrEmptyResponse
	}

	return &Generation{
		Text:       content,
		Model:      resp.Model,
		TokensIn:   int(resp.Usage.InputTokens),
		TokensOut:  int(resp.Usage.OutputTokens),
		StopReason: string(resp.StopReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
