// Package memstore is an in-process store.Repository for development and tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/internal/store"
)

// Store keeps everything in maps guarded by one lock.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message
	faqs          map[string]model.FAQ
	files         map[string]model.UploadedFile
	urls          map[string]model.CrawledURL
}

var _ store.Repository = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		faqs:          make(map[string]model.FAQ),
		files:         make(map[string]model.UploadedFile),
		urls:          make(map[string]model.CrawledURL),
	}
}

func (s *Store) CreateConversation(_ context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *conv
	c.Metadata = copyMap(conv.Metadata)
	s.conversations[c.ID] = &c
	return nil
}

func (s *Store) GetConversation(_ context.Context, userID, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok || conv.UserID != userID {
		return nil, store.ErrNotFound
	}
	c := *conv
	c.Metadata = copyMap(conv.Metadata)
	return &c, nil
}

func (s *Store) ListConversations(_ context.Context, userID string, limit, offset int) ([]model.Conversation, int, error) {
	limit, offset = store.Page(limit, offset)

	s.mu.RLock()
	var convs []model.Conversation
	for _, conv := range s.conversations {
		if conv.UserID == userID {
			convs = append(convs, *conv)
		}
	}
	s.mu.RUnlock()

	sort.Slice(convs, func(i, j int) bool {
		if convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].ID > convs[j].ID
		}
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	total := len(convs)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return convs[start:end], total, nil
}

func (s *Store) UpdateConversationMetadata(_ context.Context, userID, id string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok || conv.UserID != userID {
		return store.ErrNotFound
	}
	conv.Metadata = copyMap(metadata)
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) EndConversation(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok || conv.UserID != userID {
		return store.ErrNotFound
	}
	conv.IsActive = false
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) AppendMessage(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[msg.ConversationID]
	if !ok || conv.UserID != msg.UserID {
		return store.ErrNotFound
	}

	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	conv.MessageCount++
	conv.UpdatedAt = msg.CreatedAt
	if conv.Title == "" && msg.Role == model.RoleUser {
		conv.Title = store.TitleFromMessage(msg.Content)
	}
	return nil
}

func (s *Store) RecentMessages(_ context.Context, conversationID string, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]model.Message(nil), msgs...), nil
}

func (s *Store) CreateFAQ(_ context.Context, faq *model.FAQ) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faqs[faq.ID] = *faq
	return nil
}

func (s *Store) ListFAQs(_ context.Context, userID string) ([]model.FAQ, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.FAQ
	for _, f := range s.faqs {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteFAQ(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.faqs[id]
	if !ok || f.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.faqs, id)
	return nil
}

func (s *Store) CreateFile(_ context.Context, f *model.UploadedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[f.ID] = *f
	return nil
}

func (s *Store) ListFiles(_ context.Context, userID string) ([]model.UploadedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.UploadedFile
	for _, f := range s.files {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteFile(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok || f.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.files, id)
	return nil
}

func (s *Store) CreateURL(_ context.Context, u *model.CrawledURL) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls[u.ID] = *u
	return nil
}

func (s *Store) ListURLs(_ context.Context, userID string) ([]model.CrawledURL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.CrawledURL
	for _, u := range s.urls {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteURL(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.urls[id]
	if !ok || u.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.urls, id)
	return nil
}

func (s *Store) Stats(_ context.Context) (model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := model.Stats{
		Conversations: int64(len(s.conversations)),
		FAQs:          int64(len(s.faqs)),
		Files:         int64(len(s.files)),
		URLs:          int64(len(s.urls)),
	}
	for _, msgs := range s.messages {
		st.Messages += int64(len(msgs))
	}
	return st, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
