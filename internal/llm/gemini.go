package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash-latest"

// GeminiGenerator is the Google Gemini adapter.
type GeminiGenerator struct {
	client *genai.Client
	params Params
}

// NewGeminiGenerator creates a new Gemini adapter. The caller owns Close.
func NewGeminiGenerator(ctx context.Context, apiKey string, params Params) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
		params: geminiParams(params),
	}, nil
}

func geminiParams(p Params) Params {
	if p.Model == "" {
		p.Model = defaultGeminiModel
	}
	return p
}

// WithParams returns a generator sharing this client with different sampling
// params. Only the generator returned by NewGeminiGenerator should be closed.
func (g *GeminiGenerator) WithParams(p Params) Generator {
	return &GeminiGenerator{client: g.client, params: geminiParams(p)}
}

// Generate sends the prompt as a single content part.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (*Generation, error) {
	start := time.Now()

	model := g.client.GenerativeModel(g.params.Model)
	if g.params.Temperature > 0 {
		model.SetTemperature(float32(g.params.Temperature))
	}
	if g.params.TopP > 0 {
		model.SetTopP(float32(g.params.TopP))
	}
	if g.params.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.params.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrEmptyResponse
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	if text.Len() == 0 {
		return nil, ErrEmptyResponse
	}

	gen := &Generation{
		Text:       text.String(),
		Model:      g.params.Model,
		StopReason: resp.Candidates[0].FinishReason.String(),
		LatencyMs:  time.Since(start).Milliseconds(),
	}
	if resp.UsageMetadata != nil {
		gen.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		gen.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return gen, nil
}

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}
