package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ragdesk/kb-chatbot/internal/llm"
	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/internal/prompt"
	"github.com/ragdesk/kb-chatbot/internal/store"
	"github.com/ragdesk/kb-chatbot/pkg/logger"
	"github.com/ragdesk/kb-chatbot/pkg/metrics"
	"github.com/ragdesk/kb-chatbot/pkg/tracing"
)

// FallbackMessage prefixes the reply sent when generation fails.
const FallbackMessage = "I'm sorry, I encountered an error while generating a response."

// ChatService answers chat messages from a user's knowledge base.
type ChatService struct {
	deps   *Deps
	tracer trace.Tracer
}

// NewChatService creates a chat service.
func NewChatService(deps *Deps) *ChatService {
	return &ChatService{
		deps:   deps,
		tracer: tracing.Tracer("kb-chatbot/service"),
	}
}

// Chat runs one turn: config, retrieval, history, prompt, generation,
// post-processing and persistence. Generation failures are answered with
// FallbackMessage and the error text rather than returned.
func (s *ChatService) Chat(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
	question := strings.TrimSpace(req.Message)
	if req.UserID == "" || question == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	ctx, span := s.tracer.Start(ctx, "service.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", req.UserID))

	conv, err := s.resolveConversation(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "conversation lookup failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("conversation.id", conv.ID))
	log := s.deps.Logger.ForConversation(req.UserID, conv.ID)

	cfg := s.deps.Configs.Load(req.UserID)

	found := s.deps.Retriever.Retrieve(ctx, req.UserID, question)

	history, err := store.BuildContext(ctx, s.deps.Repo, conv.ID, s.deps.historyTurns())
	if err != nil {
		log.Warn("history unavailable", zap.Error(err))
		history = ""
	}

	userName := strings.TrimSpace(req.UserName)
	if userName == "" {
		userName = conv.DisplayName()
	}

	p := s.deps.Prompts.Build(prompt.Input{
		Config:   cfg,
		History:  history,
		Context:  found.Context,
		Question: question,
		UserName: userName,
	})
	metrics.PromptTokens.Observe(float64(s.deps.Prompts.CountTokens(p)))

	userMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		UserID:         req.UserID,
		Role:           model.RoleUser,
		Content:        question,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.appendMessage(ctx, userMsg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store user message")
		return nil, err
	}

	reply, meta := s.generate(ctx, log, conv.ID, req.UserID, cfg, p)
	if sources := found.Sources(); len(sources) > 0 {
		meta["sources"] = sources
	}

	assistantMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		UserID:         req.UserID,
		Role:           model.RoleAssistant,
		Content:        reply,
		Metadata:       meta,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.appendMessage(ctx, assistantMsg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store assistant message")
		return nil, err
	}

	return &model.ChatResponse{
		ConversationID: conv.ID,
		SessionID:      conv.SessionID,
		Response:       reply,
		Sources:        found.Sources(),
		Degraded:       found.Degraded,
	}, nil
}

func (s *ChatService) resolveConversation(ctx context.Context, req *model.ChatRequest) (*model.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := s.deps.Repo.GetConversation(ctx, req.UserID, req.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
		if req.UserInfo != nil && !sameUserInfo(conv, req.UserInfo) {
			meta := conv.Metadata
			if meta == nil {
				meta = make(map[string]any)
			}
			meta[model.UserInfoKey] = userInfoMap(req.UserInfo)
			if err := s.deps.Repo.UpdateConversationMetadata(ctx, req.UserID, conv.ID, meta); err != nil {
				s.deps.Logger.Warn("failed to update user info", zap.String("conversation_id", conv.ID), zap.Error(err))
			} else {
				conv.Metadata = meta
			}
		}
		return conv, nil
	}

	now := time.Now().UTC()
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    req.UserID,
		SessionID: sessionID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.UserInfo != nil {
		conv.Metadata = map[string]any{model.UserInfoKey: userInfoMap(req.UserInfo)}
	}
	if err := s.deps.Repo.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	metrics.ConversationsTotal.Inc()
	return conv, nil
}

// generate calls the configured provider once. It never returns an error:
// failures become the fallback reply.
func (s *ChatService) generate(ctx context.Context, log *logger.Logger, conversationID, userID string, cfg model.BotConfig, p string) (string, map[string]any) {
	ctx, span := s.tracer.Start(ctx, "llm.Generate")
	defer span.End()

	params := llm.Params{
		Model:            cfg.LLMModel,
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		TopP:             cfg.TopP,
		FrequencyPenalty: cfg.FrequencyPenalty,
		PresencePenalty:  cfg.PresencePenalty,
	}

	start := time.Now()
	gen, provider, err := s.callLLM(ctx, cfg.LLMProvider, params, p)
	elapsed := time.Since(start)

	if err != nil {
		metrics.RecordLLM(string(provider), params.Model, "error", elapsed.Seconds(), 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		log.Error("LLM generation failed",
			zap.String("provider", cfg.LLMProvider),
			zap.Error(err),
			zap.Stack("stack"),
		)
		s.publishEvent(ctx, &model.Event{
			ID:             uuid.Must(uuid.NewV7()).String(),
			UserID:         userID,
			ConversationID: conversationID,
			Type:           model.EventChatError,
			Reason:         err.Error(),
			CreatedAt:      time.Now().UTC(),
		})
		return fmt.Sprintf("%s Error: %v", FallbackMessage, err), map[string]any{"error": true}
	}

	metrics.RecordLLM(string(provider), gen.Model, "success", elapsed.Seconds(), gen.TokensIn, gen.TokensOut)
	span.SetAttributes(
		attribute.String("llm.provider", string(provider)),
		attribute.String("llm.model", gen.Model),
		attribute.Int("llm.tokens_in", gen.TokensIn),
		attribute.Int("llm.tokens_out", gen.TokensOut),
	)

	return prompt.PostProcess(gen.Text), map[string]any{
		"provider":   string(provider),
		"model":      gen.Model,
		"tokens_in":  gen.TokensIn,
		"tokens_out": gen.TokensOut,
		"latency_ms": elapsed.Milliseconds(),
	}
}

func (s *ChatService) callLLM(ctx context.Context, name string, params llm.Params, p string) (*llm.Generation, llm.Provider, error) {
	provider, err := llm.ParseProvider(name)
	if err != nil {
		return nil, llm.Provider(name), err
	}
	g, err := s.deps.LLMs.Get(ctx, provider, params)
	if err != nil {
		return nil, provider, err
	}
	gen, err := g.Generate(ctx, p)
	if err != nil {
		return nil, provider, err
	}
	if gen == nil || strings.TrimSpace(gen.Text) == "" {
		return nil, provider, llm.ErrEmptyResponse
	}
	return gen, provider, nil
}

func (s *ChatService) appendMessage(ctx context.Context, msg *model.Message) error {
	if err := s.deps.Repo.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to store %s message: %w", msg.Role, err)
	}
	metrics.ChatMessagesTotal.WithLabelValues(string(msg.Role)).Inc()

	if s.deps.Events != nil {
		if err := s.deps.Events.PublishMessage(ctx, msg); err != nil {
			metrics.EventsPublishFailed.WithLabelValues("message").Inc()
			s.deps.Logger.Warn("failed to publish message",
				zap.String("conversation_id", msg.ConversationID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *ChatService) publishEvent(ctx context.Context, event *model.Event) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.PublishEvent(ctx, event); err != nil {
		metrics.EventsPublishFailed.WithLabelValues(string(event.Type)).Inc()
		s.deps.Logger.Warn("failed to publish event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func userInfoMap(info *model.UserInfo) map[string]any {
	m := make(map[string]any)
	if info.Name != "" {
		m["name"] = info.Name
	}
	if info.Email != "" {
		m["email"] = info.Email
	}
	if info.Phone != "" {
		m["phone"] = info.Phone
	}
	return m
}

func sameUserInfo(conv *model.Conversation, info *model.UserInfo) bool {
	current, ok := conv.Metadata[model.UserInfoKey].(map[string]any)
	if !ok {
		return false
	}
	want := userInfoMap(info)
	if len(current) != len(want) {
		return false
	}
	for k, v := range want {
		if current[k] != v {
			return false
		}
	}
	return true
}
