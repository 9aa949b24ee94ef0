package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/internal/store"
)

// ConversationService handles conversation operations.
type ConversationService struct {
	deps *Deps
}

// NewConversationService creates a new conversation service.
func NewConversationService(deps *Deps) *ConversationService {
	return &ConversationService{deps: deps}
}

// List retrieves one page of the user's conversations.
func (s *ConversationService) List(ctx context.Context, userID string, limit, offset int) (*model.ListConversationsResponse, error) {
	limit, offset = store.Page(limit, offset)

	convs, total, err := s.deps.Repo.ListConversations(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []model.Conversation{}
	}

	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         total,
		HasMore:       offset+len(convs) < total,
	}, nil
}

// Get retrieves a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	return s.deps.Repo.GetConversation(ctx, userID, conversationID)
}

// Messages returns up to limit of the newest messages, oldest first.
func (s *ConversationService) Messages(ctx context.Context, userID, conversationID string, limit int) (*model.ListMessagesResponse, error) {
	if _, err := s.deps.Repo.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	msgs, err := s.deps.Repo.RecentMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return &model.ListMessagesResponse{Messages: msgs}, nil
}

// End deactivates a conversation.
func (s *ConversationService) End(ctx context.Context, userID, conversationID string) error {
	if err := s.deps.Repo.EndConversation(ctx, userID, conversationID); err != nil {
		return err
	}

	if s.deps.Events != nil {
		event := &model.Event{
			ID:             uuid.Must(uuid.NewV7()).String(),
			UserID:         userID,
			ConversationID: conversationID,
			Type:           model.EventConversationEnd,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.deps.Events.PublishEvent(ctx, event); err != nil {
			s.deps.Logger.Warn("failed to publish conversation end",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Stats returns record counts across all users.
func (s *ConversationService) Stats(ctx context.Context) (model.Stats, error) {
	return s.deps.Repo.Stats(ctx)
}
