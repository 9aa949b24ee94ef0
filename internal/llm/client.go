// Package llm provides the text generation interface and its provider adapters.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownProvider is returned for a provider name with no adapter.
	ErrUnknownProvider = errors.New("unknown LLM provider")
	// ErrMissingAPIKey is returned when a hosted provider has no credentials.
	ErrMissingAPIKey = errors.New("LLM API key is required")
	// ErrEmptyResponse is returned when the provider answered with no text.
	ErrEmptyResponse = errors.New("LLM returned an empty response")
)

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderOllama    Provider = "ollama"
)

// ParseProvider normalizes a provider name from user configuration.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "ollama", "local":
		return ProviderOllama, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

// Params are the generation parameters taken from a user's bot configuration.
// Zero values mean "provider default".
type Params struct {
	Model            string
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// Generation is the result of one prompt.
type Generation struct {
	Text       string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Generator turns one prompt into text. Every provider adapter implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Generation, error)
}

// Credentials holds the process-level provider settings.
type Credentials struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GeminiAPIKey    string
	OllamaURL       string
}

// New creates a generator for provider bound to params.
func New(ctx context.Context, provider Provider, creds Credentials, params Params) (Generator, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIGenerator(creds.OpenAIAPIKey, creds.OpenAIBaseURL, params)
	case ProviderAnthropic:
		return NewAnthropicGenerator(creds.AnthropicAPIKey, params)
	case ProviderGemini:
		return NewGeminiGenerator(ctx, creds.GeminiAPIKey, params)
	case ProviderOllama:
		return NewOllamaGenerator(creds.OllamaURL, params), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}
