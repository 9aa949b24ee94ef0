// Package model defines data structures for the chatbot service.
package model

import (
	"time"
)

// Conversation is one chat session between an end user and a tenant's bot.
type Conversation struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	SessionID    string         `json:"session_id"`
	Title        string         `json:"title"`
	MessageCount int            `json:"message_count"`
	IsActive     bool           `json:"is_active"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// UserInfoKey is the metadata key holding details collected from the visitor.
const UserInfoKey = "user_info"

// UserInfo is what the widget collects about the person chatting.
type UserInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// DisplayName returns the visitor name stored in conversation metadata, if any.
func (c *Conversation) DisplayName() string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	switch info := c.Metadata[UserInfoKey].(type) {
	case map[string]any:
		if name, ok := info["name"].(string); ok {
			return name
		}
	case UserInfo:
		return info.Name
	case *UserInfo:
		if info != nil {
			return info.Name
		}
	}
	return ""
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	HasMore       bool           `json:"has_more"`
}
