// Package storetest holds the behaviour every store.Repository backend must share.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/internal/store"
)

// Run exercises a fresh repository returned by newRepo for each subtest.
func Run(t *testing.T, newRepo func(t *testing.T) store.Repository) {
	t.Run("ConversationScopedByUser", func(t *testing.T) { testConversationScoped(t, newRepo(t)) })
	t.Run("AppendMessage", func(t *testing.T) { testAppendMessage(t, newRepo(t)) })
	t.Run("RecentMessages", func(t *testing.T) { testRecentMessages(t, newRepo(t)) })
	t.Run("ListConversations", func(t *testing.T) { testListConversations(t, newRepo(t)) })
	t.Run("EndAndMetadata", func(t *testing.T) { testEndAndMetadata(t, newRepo(t)) })
	t.Run("KnowledgeRecords", func(t *testing.T) { testKnowledgeRecords(t, newRepo(t)) })
	t.Run("BuildContext", func(t *testing.T) { testBuildContext(t, newRepo(t)) })
}

// NewConversation returns an active conversation for userID.
func NewConversation(userID string) *model.Conversation {
	now := time.Now().UTC()
	return &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		SessionID: uuid.NewString(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewMessage returns a message in conv.
func NewMessage(conv *model.Conversation, role model.Role, content string) *model.Message {
	return &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

func testConversationScoped(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	conv := NewConversation("alice")
	require.NoError(t, repo.CreateConversation(ctx, conv))

	got, err := repo.GetConversation(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.True(t, got.IsActive)

	_, err = repo.GetConversation(ctx, "bob", conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = repo.GetConversation(ctx, "alice", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testAppendMessage(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	conv := NewConversation("alice")
	require.NoError(t, repo.CreateConversation(ctx, conv))

	require.NoError(t, repo.AppendMessage(ctx, NewMessage(conv, model.RoleUser, "What are your opening hours on weekends?")))
	require.NoError(t, repo.AppendMessage(ctx, NewMessage(conv, model.RoleAssistant, "We open at ten.")))
	require.NoError(t, repo.AppendMessage(ctx, NewMessage(conv, model.RoleUser, "Thanks")))

	got, err := repo.GetConversation(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MessageCount)
	assert.Equal(t, "What are your opening hours on weekends?", got.Title)

	other := NewConversation("bob")
	other.ID = conv.ID
	err = repo.AppendMessage(ctx, NewMessage(other, model.RoleUser, "hijack"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRecentMessages(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	conv := NewConversation("alice")
	require.NoError(t, repo.CreateConversation(ctx, conv))

	for i := 0; i < 6; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		require.NoError(t, repo.AppendMessage(ctx, NewMessage(conv, role, fmt.Sprintf("m%d", i))))
	}

	msgs, err := repo.RecentMessages(ctx, conv.ID, 4)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "m2", msgs[0].Content)
	assert.Equal(t, "m5", msgs[3].Content)

	all, err := repo.RecentMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	none, err := repo.RecentMessages(ctx, "missing", 4)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testListConversations(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateConversation(ctx, NewConversation("alice")))
	}
	require.NoError(t, repo.CreateConversation(ctx, NewConversation("bob")))

	page, total, err := repo.ListConversations(ctx, "alice", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 2)

	rest, _, err := repo.ListConversations(ctx, "alice", 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	for _, c := range append(page, rest...) {
		assert.Equal(t, "alice", c.UserID)
	}
}

func testEndAndMetadata(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	conv := NewConversation("alice")
	require.NoError(t, repo.CreateConversation(ctx, conv))

	meta := map[string]any{model.UserInfoKey: map[string]any{"name": "Dana", "email": "dana@example.com"}}
	require.NoError(t, repo.UpdateConversationMetadata(ctx, "alice", conv.ID, meta))
	require.NoError(t, repo.EndConversation(ctx, "alice", conv.ID))

	got, err := repo.GetConversation(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "Dana", got.DisplayName())

	assert.ErrorIs(t, repo.EndConversation(ctx, "bob", conv.ID), store.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateConversationMetadata(ctx, "bob", conv.ID, meta), store.ErrNotFound)
}

func testKnowledgeRecords(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	now := time.Now().UTC()

	faq := &model.FAQ{ID: uuid.NewString(), UserID: "alice", Question: "Hours?", Answer: "9-5", CreatedAt: now}
	require.NoError(t, repo.CreateFAQ(ctx, faq))
	file := &model.UploadedFile{ID: uuid.NewString(), UserID: "alice", Filename: "menu.pdf", Chunks: 3, CreatedAt: now}
	require.NoError(t, repo.CreateFile(ctx, file))
	u := &model.CrawledURL{ID: uuid.NewString(), UserID: "alice", URL: "https://example.com", Chunks: 2, CreatedAt: now}
	require.NoError(t, repo.CreateURL(ctx, u))

	faqs, err := repo.ListFAQs(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, faqs, 1)
	assert.Equal(t, "9-5", faqs[0].Answer)

	files, err := repo.ListFiles(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "menu.pdf", files[0].Filename)

	urls, err := repo.ListURLs(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, urls, 1)

	bobFAQs, err := repo.ListFAQs(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, bobFAQs)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FAQs)
	assert.Equal(t, int64(1), stats.Files)
	assert.Equal(t, int64(1), stats.URLs)

	assert.ErrorIs(t, repo.DeleteFAQ(ctx, "bob", faq.ID), store.ErrNotFound)
	require.NoError(t, repo.DeleteFAQ(ctx, "alice", faq.ID))
	require.NoError(t, repo.DeleteFile(ctx, "alice", file.ID))
	require.NoError(t, repo.DeleteURL(ctx, "alice", u.ID))
	assert.ErrorIs(t, repo.DeleteFAQ(ctx, "alice", faq.ID), store.ErrNotFound)

	faqs, err = repo.ListFAQs(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, faqs)
}

func testBuildContext(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	conv := NewConversation("alice")
	require.NoError(t, repo.CreateConversation(ctx, conv))

	empty, err := store.BuildContext(ctx, repo, conv.ID, store.DefaultHistoryTurns)
	require.NoError(t, err)
	assert.Equal(t, "", empty)

	require.NoError(t, repo.AppendMessage(ctx, NewMessage(conv, model.RoleUser, "Hi")))
	require.NoError(t, repo.AppendMessage(ctx, NewMessage(conv, model.RoleAssistant, "Hello<br>How can I **help**?")))

	first, err := store.BuildContext(ctx, repo, conv.ID, store.DefaultHistoryTurns)
	require.NoError(t, err)
	second, err := store.BuildContext(ctx, repo, conv.ID, store.DefaultHistoryTurns)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "Turn 1:")
	assert.Contains(t, first, "User: Hi")
	assert.Contains(t, first, "Assistant: Hello")
	assert.NotContains(t, first, "<br>")
	assert.NotContains(t, first, "**")
}
