package llm

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Factory builds a generator for one provider.
type Factory func(ctx context.Context, creds Credentials, params Params) (Generator, error)

// ParamBinder is implemented by generators that can rebind sampling params
// onto the client they already hold.
type ParamBinder interface {
	WithParams(Params) Generator
}

// Clients are shared per provider and model. Sampling params vary per bot
// and are bound on every Get, so they never grow the cache.
type cacheKey struct {
	provider Provider
	model    string
}

// Registry resolves generators and caches their clients per provider and model.
// It is owned by the application context and safe for concurrent use.
type Registry struct {
	creds     Credentials
	mu        sync.Mutex
	factories map[Provider]Factory
	cache     map[cacheKey]Generator
}

// NewRegistry creates a registry with the built-in provider adapters.
func NewRegistry(creds Credentials) *Registry {
	r := &Registry{
		creds:     creds,
		factories: make(map[Provider]Factory),
		cache:     make(map[cacheKey]Generator),
	}
	for _, p := range []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama} {
		provider := p
		r.factories[provider] = func(ctx context.Context, creds Credentials, params Params) (Generator, error) {
			return New(ctx, provider, creds, params)
		}
	}
	return r
}

// Register installs or replaces the factory for a provider.
func (r *Registry) Register(provider Provider, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = f
	for k := range r.cache {
		if k.provider == provider {
			delete(r.cache, k)
		}
	}
}

// Get returns a generator for params, reusing the cached client for the
// provider and model when one exists.
func (r *Registry) Get(ctx context.Context, provider Provider, params Params) (Generator, error) {
	key := cacheKey{provider: provider, model: params.Model}

	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.cache[key]; ok {
		return bind(g, params), nil
	}

	f, ok := r.factories[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	g, err := f(ctx, r.creds, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s generator: %w", provider, err)
	}
	r.cache[key] = g
	return g, nil
}

func bind(g Generator, params Params) Generator {
	if b, ok := g.(ParamBinder); ok {
		return b.WithParams(params)
	}
	return g
}

// Close releases every cached generator holding resources.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for k, g := range r.cache {
		if c, ok := g.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		delete(r.cache, k)
	}
	return firstErr
}
