// Package service implements the chat pipeline and conversation operations.
package service

import (
	"context"
	"errors"

	"github.com/ragdesk/kb-chatbot/internal/botconfig"
	"github.com/ragdesk/kb-chatbot/internal/llm"
	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/internal/prompt"
	"github.com/ragdesk/kb-chatbot/internal/retrieval"
	"github.com/ragdesk/kb-chatbot/internal/store"
	"github.com/ragdesk/kb-chatbot/pkg/logger"
)

// ErrInvalidInput is returned for requests missing required fields.
var ErrInvalidInput = errors.New("service: invalid input")

// Publisher receives stored messages and events. It may be nil in Deps.
type Publisher interface {
	PublishMessage(ctx context.Context, msg *model.Message) error
	PublishEvent(ctx context.Context, event *model.Event) error
}

// Deps is the application context: every collaborator the services use,
// built once at startup.
type Deps struct {
	Repo      store.Repository
	Retriever *retrieval.Retriever
	LLMs      *llm.Registry
	Configs   *botconfig.Resolver
	Prompts   *prompt.Builder
	Events    Publisher
	Logger    *logger.Logger

	// HistoryTurns caps the prior turns carried into a prompt.
	HistoryTurns int
}

func (d *Deps) historyTurns() int {
	if d.HistoryTurns > 0 {
		return d.HistoryTurns
	}
	return store.DefaultHistoryTurns
}
