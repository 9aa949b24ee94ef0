package vectorstore

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/ragdesk/kb-chatbot/internal/model"
)

// embedAll embeds every document's content with at most workers concurrent
// calls. The result is index-aligned with docs.
func embedAll(ctx context.Context, embedder Embedder, docs []model.Document, workers int) ([][]float32, error) {
	if workers <= 0 {
		workers = 1
	}

	vectors := make([][]float32, len(docs))
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(workers)
	for i := range docs {
		i := i
		p.Go(func(ctx context.Context) error {
			v, err := embedder.Embed(ctx, docs[i].PageContent)
			if err != nil {
				return fmt.Errorf("failed to embed chunk %d: %w", i, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
