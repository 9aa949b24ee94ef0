// Package store persists conversations, messages and knowledge records.
// Backends implement Repository and are chosen once at startup.
package store

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/ragdesk/kb-chatbot/internal/model"
)

// ErrNotFound is returned when a record does not exist or belongs to another user.
var ErrNotFound = errors.New("store: not found")

// Repository is the conversation and knowledge record store.
type Repository interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	// GetConversation returns the conversation only when it belongs to userID.
	GetConversation(ctx context.Context, userID, id string) (*model.Conversation, error)
	// ListConversations returns one page of a user's conversations, newest
	// activity first, and the total count.
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]model.Conversation, int, error)
	UpdateConversationMetadata(ctx context.Context, userID, id string, metadata map[string]any) error
	EndConversation(ctx context.Context, userID, id string) error

	// AppendMessage stores msg, increments the conversation's message count and
	// sets its title from the first user message.
	AppendMessage(ctx context.Context, msg *model.Message) error
	// RecentMessages returns at most limit of the newest messages in
	// chronological order.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)

	CreateFAQ(ctx context.Context, faq *model.FAQ) error
	ListFAQs(ctx context.Context, userID string) ([]model.FAQ, error)
	DeleteFAQ(ctx context.Context, userID, id string) error

	CreateFile(ctx context.Context, f *model.UploadedFile) error
	ListFiles(ctx context.Context, userID string) ([]model.UploadedFile, error)
	DeleteFile(ctx context.Context, userID, id string) error

	CreateURL(ctx context.Context, u *model.CrawledURL) error
	ListURLs(ctx context.Context, userID string) ([]model.CrawledURL, error)
	DeleteURL(ctx context.Context, userID, id string) error

	Stats(ctx context.Context) (model.Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// MessageReader is the part of Repository the history builder needs.
type MessageReader interface {
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
}

const titleMaxRunes = 50

// TitleFromMessage derives a conversation title from its first user message.
func TitleFromMessage(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(title) <= titleMaxRunes {
		return title
	}
	r := []rune(title)
	return strings.TrimSpace(string(r[:titleMaxRunes])) + "..."
}

// Page clamps limit and offset for list queries.
func Page(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
