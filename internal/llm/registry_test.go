package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoGenerator struct {
	params Params
}

func (g *echoGenerator) Generate(_ context.Context, prompt string) (*Generation, error) {
	return &Generation{Text: prompt, Model: g.params.Model}, nil
}

func (g *echoGenerator) WithParams(p Params) Generator {
	return &echoGenerator{params: p}
}

func TestRegistryCachesClientPerModel(t *testing.T) {
	r := NewRegistry(Credentials{})
	builds := 0
	r.Register(ProviderOpenAI, func(_ context.Context, _ Credentials, p Params) (Generator, error) {
		builds++
		return &echoGenerator{params: p}, nil
	})

	ctx := context.Background()
	a, err := r.Get(ctx, ProviderOpenAI, Params{Model: "m1", Temperature: 0.2})
	require.NoError(t, err)
	b, err := r.Get(ctx, ProviderOpenAI, Params{Model: "m1", Temperature: 0.9, TopP: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1, builds)

	assert.Equal(t, 0.2, a.(*echoGenerator).params.Temperature)
	assert.Equal(t, 0.9, b.(*echoGenerator).params.Temperature)
	assert.Equal(t, 0.5, b.(*echoGenerator).params.TopP)

	_, err = r.Get(ctx, ProviderOpenAI, Params{Model: "m2", Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, 2, builds)
}

func TestRegistryCacheDoesNotGrowWithSamplingParams(t *testing.T) {
	r := NewRegistry(Credentials{})
	r.Register(ProviderOpenAI, func(_ context.Context, _ Credentials, p Params) (Generator, error) {
		return &echoGenerator{params: p}, nil
	})

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		_, err := r.Get(ctx, ProviderOpenAI, Params{Model: "m1", Temperature: float64(i) / 50, MaxTokens: i})
		require.NoError(t, err)
	}
	assert.Len(t, r.cache, 1)
}

func TestAdaptersRebindParamsOnSharedClient(t *testing.T) {
	oa, err := NewOpenAIGenerator("key", "", Params{Temperature: 0.1})
	require.NoError(t, err)
	rebound := oa.WithParams(Params{Temperature: 0.7}).(*OpenAIGenerator)
	assert.Same(t, oa.client, rebound.client)
	assert.Equal(t, 0.7, rebound.params.Temperature)
	assert.Equal(t, defaultOpenAIModel, rebound.params.Model)

	an, err := NewAnthropicGenerator("key", Params{})
	require.NoError(t, err)
	ra := an.WithParams(Params{Temperature: 1.5}).(*AnthropicGenerator)
	assert.Same(t, an.client, ra.client)
	assert.Equal(t, 1.0, ra.params.Temperature)
	assert.Equal(t, defaultAnthropicMaxTokens, ra.params.MaxTokens)

	ol := NewOllamaGenerator("", Params{})
	ro := ol.WithParams(Params{Model: "mistral", TopP: 0.3}).(*OllamaGenerator)
	assert.Same(t, ol.httpClient, ro.httpClient)
	assert.Equal(t, "mistral", ro.params.Model)
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry(Credentials{})
	_, err := r.Get(context.Background(), Provider("mystery"), Params{})
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestRegistryMissingKey(t *testing.T) {
	r := NewRegistry(Credentials{})
	_, err := r.Get(context.Background(), ProviderOpenAI, Params{})
	assert.True(t, errors.Is(err, ErrMissingAPIKey))

	_, err = r.Get(context.Background(), ProviderAnthropic, Params{})
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
}

func TestParseProvider(t *testing.T) {
	cases := map[string]Provider{
		"openai":    ProviderOpenAI,
		" Claude ":  ProviderAnthropic,
		"GEMINI":    ProviderGemini,
		"ollama":    ProviderOllama,
		"anthropic": ProviderAnthropic,
	}
	for in, want := range cases {
		got, err := ParseProvider(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseProvider("watson")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
