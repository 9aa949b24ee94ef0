package sqlstore

import (
	"time"

	"gorm.io/datatypes"

	"github.com/ragdesk/kb-chatbot/internal/model"
)

type conversationRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	UserID       string `gorm:"index;not null"`
	SessionID    string `gorm:"index"`
	Title        string
	MessageCount int
	IsActive     bool
	Metadata     datatypes.JSONMap
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index"`
}

func (conversationRow) TableName() string { return "conversations" }

type messageRow struct {
	ID             string `gorm:"primaryKey;size:36"`
	ConversationID string `gorm:"index;not null"`
	UserID         string `gorm:"index;not null"`
	Role           string `gorm:"size:16"`
	Content        string
	Metadata       datatypes.JSONMap
	CreatedAt      time.Time `gorm:"index"`
}

func (messageRow) TableName() string { return "messages" }

type faqRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"index;not null"`
	Question  string
	Answer    string
	Category  string
	CreatedAt time.Time
}

func (faqRow) TableName() string { return "faqs" }

type fileRow struct {
	ID          string `gorm:"primaryKey;size:36"`
	UserID      string `gorm:"index;not null"`
	Filename    string
	ContentType string
	SizeBytes   int64
	Chunks      int
	CreatedAt   time.Time
}

func (fileRow) TableName() string { return "uploaded_files" }

type urlRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"index;not null"`
	URL       string
	Title     string
	Chunks    int
	CreatedAt time.Time
}

func (urlRow) TableName() string { return "crawled_urls" }

func toConversationRow(c *model.Conversation) conversationRow {
	return conversationRow{
		ID:           c.ID,
		UserID:       c.UserID,
		SessionID:    c.SessionID,
		Title:        c.Title,
		MessageCount: c.MessageCount,
		IsActive:     c.IsActive,
		Metadata:     datatypes.JSONMap(c.Metadata),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (r conversationRow) toModel() model.Conversation {
	return model.Conversation{
		ID:           r.ID,
		UserID:       r.UserID,
		SessionID:    r.SessionID,
		Title:        r.Title,
		MessageCount: r.MessageCount,
		IsActive:     r.IsActive,
		Metadata:     map[string]any(r.Metadata),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (r messageRow) toModel() model.Message {
	return model.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		UserID:         r.UserID,
		Role:           model.Role(r.Role),
		Content:        r.Content,
		Metadata:       map[string]any(r.Metadata),
		CreatedAt:      r.CreatedAt,
	}
}

func (r faqRow) toModel() model.FAQ {
	return model.FAQ{ID: r.ID, UserID: r.UserID, Question: r.Question, Answer: r.Answer, Category: r.Category, CreatedAt: r.CreatedAt}
}

func (r fileRow) toModel() model.UploadedFile {
	return model.UploadedFile{
		ID:          r.ID,
		UserID:      r.UserID,
		Filename:    r.Filename,
		ContentType: r.ContentType,
		SizeBytes:   r.SizeBytes,
		Chunks:      r.Chunks,
		CreatedAt:   r.CreatedAt,
	}
}

func (r urlRow) toModel() model.CrawledURL {
	return model.CrawledURL{ID: r.ID, UserID: r.UserID, URL: r.URL, Title: r.Title, Chunks: r.Chunks, CreatedAt: r.CreatedAt}
}
