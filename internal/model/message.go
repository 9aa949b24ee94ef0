package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is an immutable chat message.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	UserID         string         `json:"user_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ChatRequest is one incoming chat turn.
type ChatRequest struct {
	UserID         string    `json:"-"`
	ConversationID string    `json:"conversation_id,omitempty"`
	SessionID      string    `json:"session_id,omitempty"`
	Message        string    `json:"message"`
	UserName       string    `json:"user_name,omitempty"`
	UserInfo       *UserInfo `json:"user_info,omitempty"`
}

// ChatResponse is what the chat pipeline returns for one turn.
type ChatResponse struct {
	ConversationID string   `json:"conversation_id"`
	SessionID      string   `json:"session_id"`
	Response       string   `json:"response"`
	Sources        []string `json:"sources,omitempty"`
	Degraded       bool     `json:"degraded,omitempty"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}
