// Package knowledge manages a user's knowledge base: FAQ entries, uploaded
// files and crawled pages, each recorded in the store and indexed in the
// vectorstore.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/internal/store"
	"github.com/ragdesk/kb-chatbot/internal/vectorstore"
	"github.com/ragdesk/kb-chatbot/pkg/logger"
	"github.com/ragdesk/kb-chatbot/pkg/metrics"
)

var (
	// ErrInvalidInput is returned for empty questions, answers or uploads.
	ErrInvalidInput = errors.New("knowledge: invalid input")
	// ErrFileTooLarge is returned for uploads over the configured limit.
	ErrFileTooLarge = errors.New("knowledge: file too large")
	// ErrNoText is returned when a file or page has no extractable text.
	ErrNoText = errors.New("knowledge: no text content")
)

// EventPublisher receives knowledge base change events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.Event) error
}

// Fetcher downloads one web page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Options tune ingestion.
type Options struct {
	ChunkSize      int
	ChunkOverlap   int
	MaxUploadBytes int64
}

// Service adds and removes knowledge.
type Service struct {
	repo     store.Repository
	vectors  vectorstore.Store
	fetcher  Fetcher
	events   EventPublisher
	splitter Splitter
	maxBytes int64
	logger   *logger.Logger
}

// NewService creates a knowledge service. events may be nil.
func NewService(repo store.Repository, vectors vectorstore.Store, fetcher Fetcher, events EventPublisher, opts Options, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		vectors:  vectors,
		fetcher:  fetcher,
		events:   events,
		splitter: Splitter{Size: opts.ChunkSize, Overlap: opts.ChunkOverlap},
		maxBytes: opts.MaxUploadBytes,
		logger:   log,
	}
}

// AddFAQ records a question/answer pair and indexes it as one document.
func (s *Service) AddFAQ(ctx context.Context, userID string, req model.CreateFAQRequest) (*model.FAQ, error) {
	question := strings.TrimSpace(req.Question)
	answer := strings.TrimSpace(req.Answer)
	if question == "" || answer == "" {
		return nil, fmt.Errorf("%w: question and answer are required", ErrInvalidInput)
	}

	faq := &model.FAQ{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Question:  question,
		Answer:    answer,
		Category:  strings.TrimSpace(req.Category),
		CreatedAt: time.Now().UTC(),
	}

	doc := model.Document{
		PageContent: fmt.Sprintf("Q: %s\nA: %s", question, answer),
		Metadata: model.DocumentMetadata{
			SourceType: model.SourceFAQ,
			SourceFile: "faq",
			SourceID:   faq.ID,
			Category:   faq.Category,
			UserID:     userID,
		},
	}
	if err := s.vectors.Add(ctx, []model.Document{doc}); err != nil {
		return nil, fmt.Errorf("failed to index faq: %w", err)
	}
	if err := s.repo.CreateFAQ(ctx, faq); err != nil {
		s.unindex(ctx, userID, faq.ID)
		return nil, err
	}

	metrics.KnowledgeIngested.WithLabelValues(string(model.SourceFAQ)).Inc()
	s.publish(ctx, userID, model.EventKnowledgeAdded, map[string]any{"source_type": model.SourceFAQ, "source_id": faq.ID})
	return faq, nil
}

// ListFAQs returns the user's FAQ entries.
func (s *Service) ListFAQs(ctx context.Context, userID string) ([]model.FAQ, error) {
	return s.repo.ListFAQs(ctx, userID)
}

// DeleteFAQ removes an FAQ record and its document.
func (s *Service) DeleteFAQ(ctx context.Context, userID, id string) error {
	return s.remove(ctx, userID, id, model.SourceFAQ, s.repo.DeleteFAQ)
}

// IngestFile extracts, chunks and indexes an uploaded file. The file itself is
// not kept.
func (s *Service) IngestFile(ctx context.Context, userID, filename string, content []byte) (*model.UploadedFile, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || len(content) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidInput)
	}
	if s.maxBytes > 0 && int64(len(content)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(content), s.maxBytes)
	}

	text, err := ExtractText(filename, content)
	if err != nil {
		return nil, err
	}

	rec := &model.UploadedFile{
		ID:          uuid.Must(uuid.NewV7()).String(),
		UserID:      userID,
		Filename:    filename,
		ContentType: contentType(filename, content),
		SizeBytes:   int64(len(content)),
		CreatedAt:   time.Now().UTC(),
	}

	n, err := s.index(ctx, userID, text, model.DocumentMetadata{
		SourceType: model.SourceFileUpload,
		SourceFile: filename,
		SourceID:   rec.ID,
		UserID:     userID,
	})
	if err != nil {
		return nil, err
	}
	rec.Chunks = n

	if err := s.repo.CreateFile(ctx, rec); err != nil {
		s.unindex(ctx, userID, rec.ID)
		return nil, err
	}

	s.logger.Info("file ingested",
		zap.String("user_id", userID),
		zap.String("filename", filename),
		zap.Int("chunks", n),
	)
	s.publish(ctx, userID, model.EventKnowledgeAdded, map[string]any{"source_type": model.SourceFileUpload, "source_id": rec.ID, "filename": filename})
	return rec, nil
}

// ListFiles returns the user's uploaded files.
func (s *Service) ListFiles(ctx context.Context, userID string) ([]model.UploadedFile, error) {
	return s.repo.ListFiles(ctx, userID)
}

// DeleteFile removes a file record and its chunks.
func (s *Service) DeleteFile(ctx context.Context, userID, id string) error {
	return s.remove(ctx, userID, id, model.SourceFileUpload, s.repo.DeleteFile)
}

// CrawlURL fetches one page and indexes its text.
func (s *Service) CrawlURL(ctx context.Context, userID, rawURL string) (*model.CrawledURL, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	page, err := s.fetcher.Fetch(ctx, u.String())
	if err != nil {
		return nil, err
	}

	rec := &model.CrawledURL{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		URL:       page.URL,
		Title:     page.Title,
		CreatedAt: time.Now().UTC(),
	}

	text := page.Text
	if page.Title != "" {
		text = page.Title + "\n" + text
	}
	n, err := s.index(ctx, userID, text, model.DocumentMetadata{
		SourceType: model.SourceCrawl,
		SourceFile: page.URL,
		SourceID:   rec.ID,
		UserID:     userID,
	})
	if err != nil {
		return nil, err
	}
	rec.Chunks = n

	if err := s.repo.CreateURL(ctx, rec); err != nil {
		s.unindex(ctx, userID, rec.ID)
		return nil, err
	}

	s.logger.Info("url crawled",
		zap.String("user_id", userID),
		zap.String("url", page.URL),
		zap.Int("chunks", n),
	)
	s.publish(ctx, userID, model.EventKnowledgeAdded, map[string]any{"source_type": model.SourceCrawl, "source_id": rec.ID, "url": page.URL})
	return rec, nil
}

// ListURLs returns the user's crawled pages.
func (s *Service) ListURLs(ctx context.Context, userID string) ([]model.CrawledURL, error) {
	return s.repo.ListURLs(ctx, userID)
}

// DeleteURL removes a crawled page record and its chunks.
func (s *Service) DeleteURL(ctx context.Context, userID, id string) error {
	return s.remove(ctx, userID, id, model.SourceCrawl, s.repo.DeleteURL)
}

func (s *Service) index(ctx context.Context, userID, text string, md model.DocumentMetadata) (int, error) {
	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return 0, ErrNoText
	}

	docs := make([]model.Document, len(chunks))
	for i, c := range chunks {
		meta := md
		meta.ChunkIndex = i
		docs[i] = model.Document{PageContent: c, Metadata: meta}
	}
	if err := s.vectors.Add(ctx, docs); err != nil {
		return 0, fmt.Errorf("failed to index %s: %w", md.SourceType, err)
	}

	metrics.KnowledgeIngested.WithLabelValues(string(md.SourceType)).Add(float64(len(docs)))
	return len(docs), nil
}

func (s *Service) remove(ctx context.Context, userID, id string, st model.SourceType, deleteRecord func(ctx context.Context, userID, id string) error) error {
	if err := deleteRecord(ctx, userID, id); err != nil {
		return err
	}
	if err := s.vectors.Delete(ctx, userID, vectorstore.Filter{SourceType: st, SourceID: id}); err != nil {
		return fmt.Errorf("failed to remove indexed %s: %w", st, err)
	}
	s.publish(ctx, userID, model.EventKnowledgeDeleted, map[string]any{"source_type": st, "source_id": id})
	return nil
}

// unindex rolls back documents written before a failed record insert.
func (s *Service) unindex(ctx context.Context, userID, sourceID string) {
	filter := vectorstore.Filter{SourceID: sourceID}
	if filter.IsEmpty() {
		// An empty filter would drop the user's whole index.
		return
	}
	if err := s.vectors.Delete(ctx, userID, filter); err != nil {
		s.logger.Warn("failed to roll back indexed documents",
			zap.String("user_id", userID),
			zap.String("source_id", sourceID),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, userID string, t model.EventType, meta map[string]any) {
	if s.events == nil {
		return
	}
	event := &model.Event{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Type:      t,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.events.PublishEvent(ctx, event); err != nil {
		metrics.EventsPublishFailed.WithLabelValues(string(t)).Inc()
		s.logger.Warn("failed to publish event", zap.String("type", string(t)), zap.Error(err))
	}
}

func contentType(filename string, content []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return http.DetectContentType(content)
}
