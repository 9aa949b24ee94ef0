package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/kb-chatbot/internal/botconfig"
	"github.com/ragdesk/kb-chatbot/internal/llm"
	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/internal/prompt"
	"github.com/ragdesk/kb-chatbot/internal/retrieval"
	"github.com/ragdesk/kb-chatbot/internal/store"
	"github.com/ragdesk/kb-chatbot/internal/store/memstore"
	"github.com/ragdesk/kb-chatbot/internal/vectorstore"
	"github.com/ragdesk/kb-chatbot/pkg/logger"
)

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, p string) (*llm.Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, p)
	if g.err != nil {
		return nil, g.err
	}
	return &llm.Generation{Text: g.reply, Model: "fake-1", TokensIn: 10, TokensOut: 5}, nil
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []model.Message
	events   []model.Event
}

func (p *recordingPublisher) PublishMessage(_ context.Context, m *model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, *m)
	return nil
}

func (p *recordingPublisher) PublishEvent(_ context.Context, e *model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *e)
	return nil
}

type fixture struct {
	chat    *ChatService
	convs   *ConversationService
	repo    *memstore.Store
	vectors *vectorstore.MemoryStore
	gen     *fakeGenerator
	events  *recordingPublisher
	configs *botconfig.Resolver
	deps    *Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewNop()
	repo := memstore.New()
	vectors := vectorstore.NewMemoryStore(vectorstore.HashEmbedder{})
	gen := &fakeGenerator{reply: "We open at nine.\n\nSee you soon!"}
	events := &recordingPublisher{}

	registry := llm.NewRegistry(llm.Credentials{})
	registry.Register(llm.ProviderOpenAI, func(context.Context, llm.Credentials, llm.Params) (llm.Generator, error) {
		return gen, nil
	})

	configs := botconfig.NewResolver(t.TempDir(), botconfig.Defaults("openai"), log)
	deps := &Deps{
		Repo:      repo,
		Retriever: retrieval.NewRetriever(vectors, log),
		LLMs:      registry,
		Configs:   configs,
		Prompts:   prompt.NewBuilder(0, prompt.CharCounter{}),
		Events:    events,
		Logger:    log,
	}
	return &fixture{
		chat:    NewChatService(deps),
		convs:   NewConversationService(deps),
		repo:    repo,
		vectors: vectors,
		gen:     gen,
		events:  events,
		configs: configs,
		deps:    deps,
	}
}

func TestChatCreatesConversationAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.chat.Chat(ctx, &model.ChatRequest{UserID: "alice", Message: "When do you open?", SessionID: "s1"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "We open at nine.<br><br>See you soon!", resp.Response)

	conv, err := f.repo.GetConversation(ctx, "alice", resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.MessageCount)
	assert.Equal(t, "When do you open?", conv.Title)

	msgs, err := f.repo.RecentMessages(ctx, resp.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "fake-1", msgs[1].Metadata["model"])

	assert.Len(t, f.events.messages, 2)
}

func TestChatWithoutKnowledgeUsesDirectQuestion(t *testing.T) {
	f := newFixture(t)

	_, err := f.chat.Chat(context.Background(), &model.ChatRequest{UserID: "alice", Message: "Do you deliver?"})
	require.NoError(t, err)

	p := f.gen.lastPrompt()
	assert.Contains(t, p, "User asks: Do you deliver?")
	assert.NotContains(t, p, prompt.ContextHeading)
}

func TestChatUsesRetrievedContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.vectors.Add(ctx, []model.Document{{
		PageContent: "Q: Do you deliver?\nA: Yes, within 5 miles.",
		Metadata:    model.DocumentMetadata{UserID: "alice", SourceType: model.SourceFAQ, SourceFile: "faq"},
	}}))
	require.NoError(t, f.vectors.Add(ctx, []model.Document{{
		PageContent: "Bob's secret pricing",
		Metadata:    model.DocumentMetadata{UserID: "bob", SourceType: model.SourceFAQ},
	}}))

	resp, err := f.chat.Chat(ctx, &model.ChatRequest{UserID: "alice", Message: "Do you deliver?"})
	require.NoError(t, err)

	p := f.gen.lastPrompt()
	assert.Contains(t, p, prompt.ContextHeading)
	assert.Contains(t, p, "Yes, within 5 miles.")
	assert.NotContains(t, p, "Bob's secret pricing")
	assert.Equal(t, []string{"faq"}, resp.Sources)
}

func TestChatHistoryExcludesCurrentMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.chat.Chat(ctx, &model.ChatRequest{UserID: "alice", Message: "Do you sell bread?"})
	require.NoError(t, err)
	assert.NotContains(t, f.gen.lastPrompt(), "Previous conversation")

	_, err = f.chat.Chat(ctx, &model.ChatRequest{UserID: "alice", ConversationID: first.ConversationID, Message: "Is it gluten free?"})
	require.NoError(t, err)

	p := f.gen.lastPrompt()
	assert.Contains(t, p, "Turn 1:\nUser: Do you sell bread?\nAssistant: We open at nine.\nSee you soon!")
	assert.NotContains(t, p, "User: Is it gluten free?")
	assert.Contains(t, p, "User asks: Is it gluten free?")
	assert.NotContains(t, p, "<br>")
}

func TestChatLLMFailureReturnsFallback(t *testing.T) {
	f := newFixture(t)
	f.gen.err = errors.New("rate limited")

	resp, err := f.chat.Chat(context.Background(), &model.ChatRequest{UserID: "alice", Message: "hello"})
	require.NoError(t, err)

	assert.Equal(t, FallbackMessage+" Error: rate limited", resp.Response)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, model.EventChatError, f.events.events[0].Type)
	assert.Equal(t, "rate limited", f.events.events[0].Reason)
}

func TestChatUnknownProviderReturnsFallback(t *testing.T) {
	f := newFixture(t)
	_, err := f.configs.Update("alice", map[string]any{"llm_provider": "mystery"})
	require.NoError(t, err)

	resp, err := f.chat.Chat(context.Background(), &model.ChatRequest{UserID: "alice", Message: "hello"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.Response, FallbackMessage))
	assert.Contains(t, resp.Response, "unknown LLM provider")
}

func TestChatEmptyGenerationReturnsFallback(t *testing.T) {
	f := newFixture(t)
	f.gen.reply = "   "

	resp, err := f.chat.Chat(context.Background(), &model.ChatRequest{UserID: "alice", Message: "hello"})
	require.NoError(t, err)

	assert.Contains(t, resp.Response, llm.ErrEmptyResponse.Error())
}

func TestChatAppliesUserConfig(t *testing.T) {
	f := newFixture(t)
	_, err := f.configs.Update("alice", map[string]any{"bot_name": "Penny", "system_instructions": "Never discuss pricing."})
	require.NoError(t, err)

	_, err = f.chat.Chat(context.Background(), &model.ChatRequest{UserID: "alice", Message: "hi"})
	require.NoError(t, err)

	p := f.gen.lastPrompt()
	assert.Contains(t, p, "You are Penny")
	assert.Contains(t, p, "Never discuss pricing.")
}

func TestChatStoresAndUsesUserInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.chat.Chat(ctx, &model.ChatRequest{
		UserID:   "alice",
		Message:  "hi",
		UserInfo: &model.UserInfo{Name: "Dana", Email: "dana@example.com"},
	})
	require.NoError(t, err)
	assert.Contains(t, f.gen.lastPrompt(), "The user's name is Dana.")

	_, err = f.chat.Chat(ctx, &model.ChatRequest{UserID: "alice", ConversationID: resp.ConversationID, Message: "again"})
	require.NoError(t, err)
	assert.Contains(t, f.gen.lastPrompt(), "The user's name is Dana.")

	_, err = f.chat.Chat(ctx, &model.ChatRequest{
		UserID:         "alice",
		ConversationID: resp.ConversationID,
		Message:        "renamed",
		UserInfo:       &model.UserInfo{Name: "Sam"},
	})
	require.NoError(t, err)
	conv, err := f.repo.GetConversation(ctx, "alice", resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "Sam", conv.DisplayName())
}

func TestChatRejectsForeignConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.chat.Chat(ctx, &model.ChatRequest{UserID: "alice", Message: "hi"})
	require.NoError(t, err)

	_, err = f.chat.Chat(ctx, &model.ChatRequest{UserID: "bob", ConversationID: resp.ConversationID, Message: "hi"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChatValidatesInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.chat.Chat(context.Background(), &model.ChatRequest{UserID: "alice", Message: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestChatCapsHistoryTurns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.chat.Chat(ctx, &model.ChatRequest{UserID: "alice", Message: "question 0"})
	require.NoError(t, err)
	for i := 1; i <= 12; i++ {
		_, err := f.chat.Chat(ctx, &model.ChatRequest{UserID: "alice", ConversationID: resp.ConversationID, Message: fmt.Sprintf("question %d", i)})
		require.NoError(t, err)
	}

	p := f.gen.lastPrompt()
	assert.Contains(t, p, "Turn 10:")
	assert.NotContains(t, p, "Turn 11:")
	assert.NotContains(t, p, "User: question 1\n")
	assert.Contains(t, p, "User: question 11\n")
}

type recordingCounter struct {
	mu    sync.Mutex
	texts []string
}

func (c *recordingCounter) Count(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return len(text)
}

func TestChatCountsPromptWithBuilderCounter(t *testing.T) {
	f := newFixture(t)
	counter := &recordingCounter{}
	f.deps.Prompts = prompt.NewBuilder(0, counter)

	_, err := f.chat.Chat(context.Background(), &model.ChatRequest{UserID: "alice", Message: "Where are you located?"})
	require.NoError(t, err)

	counter.mu.Lock()
	defer counter.mu.Unlock()
	require.NotEmpty(t, counter.texts)
	assert.Equal(t, f.gen.lastPrompt(), counter.texts[len(counter.texts)-1])
}
