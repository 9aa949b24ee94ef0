package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/internal/vectorstore"
	"github.com/ragdesk/kb-chatbot/pkg/logger"
)

func doc(id string, st model.SourceType) model.Document {
	return model.Document{
		ID:          id,
		PageContent: "content " + id,
		Metadata:    model.DocumentMetadata{SourceType: st, SourceFile: id + ".src"},
	}
}

func ids(docs []model.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestPrioritizeBucketOrderKeepsRank(t *testing.T) {
	docs := []model.Document{
		doc("other1", model.SourceOther),
		doc("file1", model.SourceFileUpload),
		doc("crawl1", model.SourceCrawl),
		doc("faq1", model.SourceFAQ),
		doc("crawl2", "website"),
		doc("faq2", model.SourceFAQ),
	}

	sel := Prioritize(docs)

	assert.Equal(t, []string{"faq1", "faq2", "crawl1", "crawl2", "file1", "other1"}, ids(sel.Docs))
	assert.False(t, sel.ForcedFileUpload)
}

func TestPrioritizeEightOrFewerKeepsAll(t *testing.T) {
	var docs []model.Document
	for i := 0; i < MaxContextDocs; i++ {
		docs = append(docs, doc(fmt.Sprintf("faq%d", i), model.SourceFAQ))
	}

	sel := Prioritize(docs)

	assert.Len(t, sel.Docs, MaxContextDocs)
}

func TestPrioritizeForcesFileUploadIntoLastSlot(t *testing.T) {
	var docs []model.Document
	for i := 0; i < 20; i++ {
		docs = append(docs, doc(fmt.Sprintf("faq%d", i), model.SourceFAQ))
	}
	for i := 0; i < 3; i++ {
		docs = append(docs, doc(fmt.Sprintf("file%d", i), model.SourceFileUpload))
	}

	sel := Prioritize(docs)

	require.Len(t, sel.Docs, TruncatedDocs)
	assert.True(t, sel.ForcedFileUpload)
	assert.Equal(t, []string{"faq0", "faq1", "faq2", "faq3", "faq4", "faq5", "file0"}, ids(sel.Docs))
}

func TestPrioritizeNoForceWhenFileAlreadyPresent(t *testing.T) {
	docs := []model.Document{
		doc("faq0", model.SourceFAQ),
		doc("file0", "upload"),
	}
	for i := 0; i < 10; i++ {
		docs = append(docs, doc(fmt.Sprintf("other%d", i), model.SourceOther))
	}

	sel := Prioritize(docs)

	require.Len(t, sel.Docs, TruncatedDocs)
	assert.False(t, sel.ForcedFileUpload)
	assert.Equal(t, "file0", sel.Docs[1].ID)
	assert.Equal(t, "other4", sel.Docs[6].ID)
}

func TestPrioritizeNoFileUploadsTruncatesToSeven(t *testing.T) {
	var docs []model.Document
	for i := 0; i < 12; i++ {
		docs = append(docs, doc(fmt.Sprintf("crawl%d", i), model.SourceCrawl))
	}

	sel := Prioritize(docs)

	assert.Len(t, sel.Docs, TruncatedDocs)
	assert.False(t, sel.ForcedFileUpload)
}

func TestPrioritizeEmpty(t *testing.T) {
	sel := Prioritize(nil)
	assert.Empty(t, sel.Docs)
	assert.Equal(t, "", JoinContext(sel.Docs))
}

func TestBucketLabels(t *testing.T) {
	tests := []struct {
		in   model.SourceType
		want model.SourceType
	}{
		{"faq", model.SourceFAQ},
		{"crawl", model.SourceCrawl},
		{"web_crawl", model.SourceCrawl},
		{"URL", model.SourceCrawl},
		{"file", model.SourceFileUpload},
		{"file_upload", model.SourceFileUpload},
		{"", model.SourceOther},
		{"manual", model.SourceOther},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, Bucket(tt.in))
		})
	}
}

func TestJoinContext(t *testing.T) {
	docs := []model.Document{
		{PageContent: "first"},
		{PageContent: "  "},
		{PageContent: "second\n"},
	}
	assert.Equal(t, "first\n\nsecond", JoinContext(docs))
}

type failingStore struct{}

func (failingStore) Add(context.Context, []model.Document) error { return nil }

func (failingStore) SimilaritySearch(context.Context, string, string, int) ([]model.Document, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Delete(context.Context, string, vectorstore.Filter) error { return nil }

func TestRetrieveDegradesOnStoreError(t *testing.T) {
	r := NewRetriever(failingStore{}, logger.NewNop())

	res := r.Retrieve(context.Background(), "alice", "hours?")

	assert.True(t, res.Degraded)
	assert.Empty(t, res.Docs)
	assert.Equal(t, "", res.Context)
}

func TestRetrieveIsUserScoped(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore(vectorstore.HashEmbedder{})
	require.NoError(t, store.Add(ctx, []model.Document{
		{ID: "a1", PageContent: "alice opening hours are nine to five", Metadata: model.DocumentMetadata{UserID: "alice", SourceType: model.SourceFAQ, SourceFile: "faq"}},
		{ID: "b1", PageContent: "bob opening hours are always", Metadata: model.DocumentMetadata{UserID: "bob", SourceType: model.SourceFAQ, SourceFile: "faq"}},
	}))

	res := NewRetriever(store, logger.NewNop()).Retrieve(ctx, "alice", "opening hours")

	require.Len(t, res.Docs, 1)
	assert.Equal(t, "a1", res.Docs[0].ID)
	assert.Equal(t, "alice opening hours are nine to five", res.Context)
	assert.Equal(t, []string{"faq"}, res.Sources())
	assert.False(t, res.Degraded)
}

func TestRetrieveNilStore(t *testing.T) {
	res := NewRetriever(nil, logger.NewNop()).Retrieve(context.Background(), "alice", "q")
	assert.True(t, res.Degraded)
}
