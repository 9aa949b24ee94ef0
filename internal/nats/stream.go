package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/ragdesk/kb-chatbot/internal/model"
)

const (
	// StreamName is the name of the chatbot stream.
	StreamName = "CHATBOT"

	// ChatPrefix prefixes message and conversation event subjects.
	ChatPrefix = "chat"

	// KnowledgePrefix prefixes knowledge base event subjects.
	KnowledgePrefix = "kb"
)

// Publisher writes messages and events to the CHATBOT stream.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher on client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// EnsureStream creates the stream when it does not exist yet.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{ChatPrefix + ".>", KnowledgePrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Chat messages and knowledge base events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// token makes an id safe to use as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

// MessageSubject returns the subject for a chat message.
func MessageSubject(userID, conversationID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", ChatPrefix, token(userID), token(conversationID), token(string(role)))
}

// EventSubject returns the subject for an event. Events tied to a conversation
// live under the chat prefix, the rest under the knowledge prefix.
func EventSubject(userID, conversationID string, eventType model.EventType) string {
	if conversationID != "" {
		return fmt.Sprintf("%s.%s.%s.event.%s", ChatPrefix, token(userID), token(conversationID), token(string(eventType)))
	}
	return fmt.Sprintf("%s.%s.event.%s", KnowledgePrefix, token(userID), token(string(eventType)))
}

// PublishMessage publishes a stored chat message.
func (p *Publisher) PublishMessage(ctx context.Context, msg *model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := p.client.JetStream().Publish(ctx, MessageSubject(msg.UserID, msg.ConversationID, msg.Role), data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// PublishEvent publishes an event.
func (p *Publisher) PublishEvent(ctx context.Context, event *model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.client.JetStream().Publish(ctx, EventSubject(event.UserID, event.ConversationID, event.Type), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
