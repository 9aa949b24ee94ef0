package model

import (
	"time"
)

// EventType represents the type of knowledge base event.
type EventType string

const (
	EventKnowledgeAdded   EventType = "knowledge_added"
	EventKnowledgeDeleted EventType = "knowledge_deleted"
	EventChatError        EventType = "chat_error"
	EventConversationEnd  EventType = "conversation_ended"
)

// Event is published to the event stream next to chat messages.
type Event struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Type           EventType      `json:"type"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
