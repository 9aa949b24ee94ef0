// Package vectorstore is the per-user document index the retrieval pipeline
// queries. Similarity search itself is delegated to the backend.
package vectorstore

import (
	"context"
	"errors"

	"github.com/ragdesk/kb-chatbot/internal/model"
)

// ErrMissingUser is returned for documents or queries without a user id.
var ErrMissingUser = errors.New("vectorstore: user id is required")

// Filter selects documents by metadata. Empty fields match anything; the user
// id is always applied separately.
type Filter struct {
	SourceType model.SourceType
	SourceFile string
	SourceID   string
	Category   string
}

// Match reports whether a document's metadata satisfies the filter.
func (f Filter) Match(md model.DocumentMetadata) bool {
	if f.SourceType != "" && md.SourceType != f.SourceType {
		return false
	}
	if f.SourceFile != "" && md.SourceFile != f.SourceFile {
		return false
	}
	if f.SourceID != "" && md.SourceID != f.SourceID {
		return false
	}
	if f.Category != "" && md.Category != f.Category {
		return false
	}
	return true
}

// IsEmpty reports whether the filter would match every document of a user.
func (f Filter) IsEmpty() bool {
	return f == Filter{}
}

// Store is the vectorstore collaborator.
type Store interface {
	// Add indexes documents. Every document must carry Metadata.UserID.
	Add(ctx context.Context, docs []model.Document) error
	// SimilaritySearch returns up to k documents of userID ranked by relevance.
	SimilaritySearch(ctx context.Context, userID, query string, k int) ([]model.Document, error)
	// Delete removes the user's documents matching filter.
	Delete(ctx context.Context, userID string, filter Filter) error
}

func validateDocs(docs []model.Document) error {
	for _, d := range docs {
		if d.Metadata.UserID == "" {
			return ErrMissingUser
		}
	}
	return nil
}
