package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaModel = "llama3.1"

// OllamaGenerator talks to a local Ollama server.
type OllamaGenerator struct {
	baseURL    string
	params     Params
	httpClient *http.Client
}

// NewOllamaGenerator creates a new Ollama adapter.
func NewOllamaGenerator(baseURL string, params Params) *OllamaGenerator {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaGenerator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		params:     ollamaParams(params),
		httpClient: &http.Client{},
	}
}

func ollamaParams(p Params) Params {
	if p.Model == "" {
		p.Model = defaultOllamaModel
	}
	return p
}

// WithParams returns a generator sharing this HTTP client with different sampling params.
func (g *OllamaGenerator) WithParams(p Params) Generator {
	return &OllamaGenerator{baseURL: g.baseURL, params: ollamaParams(p), httpClient: g.httpClient}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

// Generate calls /api/generate without streaming.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (*Generation, error) {
	start := time.Now()

	options := map[string]any{}
	if g.params.Temperature > 0 {
		options["temperature"] = g.params.Temperature
	}
	if g.params.TopP > 0 {
		options["top_p"] = g.params.TopP
	}
	if g.params.MaxTokens > 0 {
		options["num_predict"] = g.params.MaxTokens
	}
	if g.params.FrequencyPenalty != 0 {
		options["frequency_penalty"] = g.params.FrequencyPenalty
	}
	if g.params.PresencePenalty != 0 {
		options["presence_penalty"] = g.params.PresencePenalty
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   g.params.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama API error: %d - %s", resp.StatusCode, string(msg))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Response == "" {
		return nil, ErrEmptyResponse
	}

	return &Generation{
		Text:       out.Response,
		Model:      out.Model,
		TokensIn:   out.PromptEvalCount,
		TokensOut:  out.EvalCount,
		StopReason: out.DoneReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
