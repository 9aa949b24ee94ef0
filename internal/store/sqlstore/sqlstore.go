// Package sqlstore is the gorm/SQLite store.Repository.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/internal/store"
)

// Store is a gorm-backed Repository.
type Store struct {
	db *gorm.DB
}

var _ store.Repository = (*Store)(nil)

// Open opens (creating if needed) the SQLite database at path and migrates it.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return New(db)
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&conversationRow{}, &messageRow{}, &faqRow{}, &fileRow{}, &urlRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	row := toConversationRow(conv)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, userID, id string) (*model.Conversation, error) {
	var row conversationRow
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	conv := row.toModel()
	return &conv, nil
}

func (s *Store) ListConversations(ctx context.Context, userID string, limit, offset int) ([]model.Conversation, int, error) {
	limit, offset = store.Page(limit, offset)

	var total int64
	q := s.db.WithContext(ctx).Model(&conversationRow{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	var rows []conversationRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}

	convs := make([]model.Conversation, len(rows))
	for i, r := range rows {
		convs[i] = r.toModel()
	}
	return convs, int(total), nil
}

func (s *Store) UpdateConversationMetadata(ctx context.Context, userID, id string, metadata map[string]any) error {
	res := s.db.WithContext(ctx).Model(&conversationRow{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{
			"metadata":   datatypes.JSONMap(metadata),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) EndConversation(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).Model(&conversationRow{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to end conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendMessage runs in one transaction; the count is incremented in SQL.
func (s *Store) AppendMessage(ctx context.Context, msg *model.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&conversationRow{}).
			Where("id = ? AND user_id = ?", msg.ConversationID, msg.UserID).
			Updates(map[string]any{
				"message_count": gorm.Expr("message_count + 1"),
				"updated_at":    msg.CreatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}

		row := messageRow{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			UserID:         msg.UserID,
			Role:           string(msg.Role),
			Content:        msg.Content,
			Metadata:       datatypes.JSONMap(msg.Metadata),
			CreatedAt:      msg.CreatedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to store message: %w", err)
		}

		if msg.Role == model.RoleUser {
			err := tx.Model(&conversationRow{}).
				Where("id = ? AND title = ?", msg.ConversationID, "").
				Update("title", store.TitleFromMessage(msg.Content)).Error
			if err != nil {
				return fmt.Errorf("failed to set conversation title: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	q := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []messageRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	msgs := make([]model.Message, len(rows))
	for i, r := range rows {
		msgs[len(rows)-1-i] = r.toModel()
	}
	return msgs, nil
}

func (s *Store) CreateFAQ(ctx context.Context, faq *model.FAQ) error {
	row := faqRow{ID: faq.ID, UserID: faq.UserID, Question: faq.Question, Answer: faq.Answer, Category: faq.Category, CreatedAt: faq.CreatedAt}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create faq: %w", err)
	}
	return nil
}

func (s *Store) ListFAQs(ctx context.Context, userID string) ([]model.FAQ, error) {
	var rows []faqRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list faqs: %w", err)
	}
	out := make([]model.FAQ, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) DeleteFAQ(ctx context.Context, userID, id string) error {
	return s.deleteScoped(ctx, &faqRow{}, userID, id)
}

func (s *Store) CreateFile(ctx context.Context, f *model.UploadedFile) error {
	row := fileRow{
		ID:          f.ID,
		UserID:      f.UserID,
		Filename:    f.Filename,
		ContentType: f.ContentType,
		SizeBytes:   f.SizeBytes,
		Chunks:      f.Chunks,
		CreatedAt:   f.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to record file: %w", err)
	}
	return nil
}

func (s *Store) ListFiles(ctx context.Context, userID string) ([]model.UploadedFile, error) {
	var rows []fileRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	out := make([]model.UploadedFile, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) DeleteFile(ctx context.Context, userID, id string) error {
	return s.deleteScoped(ctx, &fileRow{}, userID, id)
}

func (s *Store) CreateURL(ctx context.Context, u *model.CrawledURL) error {
	row := urlRow{ID: u.ID, UserID: u.UserID, URL: u.URL, Title: u.Title, Chunks: u.Chunks, CreatedAt: u.CreatedAt}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to record url: %w", err)
	}
	return nil
}

func (s *Store) ListURLs(ctx context.Context, userID string) ([]model.CrawledURL, error) {
	var rows []urlRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list urls: %w", err)
	}
	out := make([]model.CrawledURL, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) DeleteURL(ctx context.Context, userID, id string) error {
	return s.deleteScoped(ctx, &urlRow{}, userID, id)
}

func (s *Store) deleteScoped(ctx context.Context, row any, userID, id string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(row)
	if res.Error != nil {
		return fmt.Errorf("failed to delete record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	counts := []struct {
		table any
		dst   *int64
	}{
		{&conversationRow{}, &st.Conversations},
		{&messageRow{}, &st.Messages},
		{&faqRow{}, &st.FAQs},
		{&fileRow{}, &st.Files},
		{&urlRow{}, &st.URLs},
	}
	for _, c := range counts {
		if err := s.db.WithContext(ctx).Model(c.table).Count(c.dst).Error; err != nil {
			return st, fmt.Errorf("failed to count records: %w", err)
		}
	}
	return st, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
