package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ragdesk/kb-chatbot/internal/model"
)

type memoryEntry struct {
	doc    model.Document
	vector []float32
}

// MemoryStore is an in-process Store partitioned by user id.
type MemoryStore struct {
	embedder Embedder

	mu      sync.RWMutex
	entries map[string][]memoryEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(embedder Embedder) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
		entries:  make(map[string][]memoryEntry),
	}
}

// Add implements Store.
func (s *MemoryStore) Add(ctx context.Context, docs []model.Document) error {
	if err := validateDocs(docs); err != nil {
		return err
	}

	vectors, err := embedAll(ctx, s.embedder, docs, 1)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		s.entries[d.Metadata.UserID] = append(s.entries[d.Metadata.UserID], memoryEntry{doc: d, vector: vectors[i]})
	}
	return nil
}

// SimilaritySearch implements Store. Ties keep insertion order.
func (s *MemoryStore) SimilaritySearch(ctx context.Context, userID, query string, k int) ([]model.Document, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if k <= 0 {
		return nil, nil
	}

	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	entries := s.entries[userID]
	scored := make([]model.Document, 0, len(entries))
	for _, e := range entries {
		sim, err := CosineSimilarity(qv, e.vector)
		if err != nil {
			continue
		}
		d := e.doc
		d.Score = float64(sim)
		scored = append(scored, d)
	}
	s.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, userID string, filter Filter) error {
	if userID == "" {
		return ErrMissingUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[userID][:0]
	for _, e := range s.entries[userID] {
		if !filter.Match(e.doc.Metadata) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(s.entries, userID)
		return nil
	}
	s.entries[userID] = kept
	return nil
}

// Count returns the number of documents indexed for userID.
func (s *MemoryStore) Count(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[userID])
}
