package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/kb-chatbot/internal/botconfig"
	"github.com/ragdesk/kb-chatbot/internal/knowledge"
	"github.com/ragdesk/kb-chatbot/internal/llm"
	"github.com/ragdesk/kb-chatbot/internal/middleware"
	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/internal/prompt"
	"github.com/ragdesk/kb-chatbot/internal/retrieval"
	"github.com/ragdesk/kb-chatbot/internal/service"
	"github.com/ragdesk/kb-chatbot/internal/store/memstore"
	"github.com/ragdesk/kb-chatbot/internal/vectorstore"
	"github.com/ragdesk/kb-chatbot/pkg/logger"
)

const testSecret = "test-secret"

type staticGenerator struct{}

func (staticGenerator) Generate(context.Context, string) (*llm.Generation, error) {
	return &llm.Generation{Text: "Hello there.", Model: "static"}, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, url string) (*knowledge.Page, error) {
	return &knowledge.Page{URL: url, Title: "Pricing", Text: "Plans start at ten dollars a month."}, nil
}

type testServer struct {
	handler http.Handler
	repo    *memstore.Store
}

func newTestServer(t *testing.T, checks map[string]Check) *testServer {
	t.Helper()
	return newTestServerWithUploadLimit(t, checks, 64)
}

func newTestServerWithUploadLimit(t *testing.T, checks map[string]Check, maxUpload int64) *testServer {
	t.Helper()
	log := logger.NewNop()
	repo := memstore.New()
	vectors := vectorstore.NewMemoryStore(vectorstore.HashEmbedder{})

	registry := llm.NewRegistry(llm.Credentials{})
	registry.Register(llm.ProviderOpenAI, func(context.Context, llm.Credentials, llm.Params) (llm.Generator, error) {
		return staticGenerator{}, nil
	})

	configs := botconfig.NewResolver(t.TempDir(), botconfig.Defaults("openai"), log)
	deps := &service.Deps{
		Repo:      repo,
		Retriever: retrieval.NewRetriever(vectors, log),
		LLMs:      registry,
		Configs:   configs,
		Prompts:   prompt.NewBuilder(0, prompt.CharCounter{}),
		Logger:    log,
	}
	convs := service.NewConversationService(deps)
	kb := knowledge.NewService(repo, vectors, stubFetcher{}, nil, knowledge.Options{MaxUploadBytes: maxUpload}, log)

	h := Handlers{
		Health:        NewHealthHandler(checks),
		Chat:          NewChatHandler(service.NewChatService(deps), log),
		Config:        NewConfigHandler(configs, log),
		Conversations: NewConversationHandler(convs, log),
		Knowledge:     NewKnowledgeHandler(kb, maxUpload, log),
		Admin:         NewAdminHandler(convs, log),
	}
	return &testServer{
		handler: NewRouter(h, RouterConfig{JWTSecret: testSecret}, log),
		repo:    repo,
	}
}

func token(t *testing.T, userID string, scopes ...string) string {
	t.Helper()
	claims := middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: scopes,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, method, path, bearer string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return s.do(t, method, path, bearer, body, "application/json")
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, map[string]Check{
		"store": func(context.Context) error { return nil },
	})

	rec := s.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = s.do(t, http.MethodGet, "/ready", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyReportsFailedChecks(t *testing.T) {
	s := newTestServer(t, map[string]Check{
		"nats": func(context.Context) error { return errors.New("not connected") },
	})

	rec := s.do(t, http.MethodGet, "/ready", "", nil, "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not connected")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresAuth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.doJSON(t, http.MethodPost, "/api/v1/chat", "", model.ChatRequest{Message: "hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/chat", "not-a-jwt", model.ChatRequest{Message: "hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	alice := token(t, "alice")

	rec := s.doJSON(t, http.MethodPost, "/api/v1/chat", alice, model.ChatRequest{Message: "Are you open today?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp model.ChatResponse
	decode(t, rec, &resp)
	assert.Equal(t, "Hello there.", resp.Response)
	assert.NotEmpty(t, resp.ConversationID)

	// Continuing the conversation keeps the id.
	rec = s.doJSON(t, http.MethodPost, "/api/v1/chat", alice, model.ChatRequest{
		ConversationID: resp.ConversationID,
		Message:        "And tomorrow?",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	conv, err := s.repo.GetConversation(context.Background(), "alice", resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 4, conv.MessageCount)
}

func TestChatValidation(t *testing.T) {
	s := newTestServer(t, nil)
	alice := token(t, "alice")

	rec := s.doJSON(t, http.MethodPost, "/api/v1/chat", alice, model.ChatRequest{Message: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/chat", alice, model.ChatRequest{ConversationID: "nope", Message: "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/chat", alice, strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatForeignConversationIsNotFound(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.doJSON(t, http.MethodPost, "/api/v1/chat", token(t, "alice"), model.ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.ChatResponse
	decode(t, rec, &resp)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/chat", token(t, "mallory"), model.ChatRequest{
		ConversationID: resp.ConversationID,
		Message:        "let me in",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfigEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	alice := token(t, "alice")

	rec := s.do(t, http.MethodGet, "/api/v1/config", alice, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg model.BotConfig
	decode(t, rec, &cfg)
	assert.Equal(t, "Assistant", cfg.BotName)

	rec = s.doJSON(t, http.MethodPut, "/api/v1/config", alice, map[string]any{"bot_name": "Sunny"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/config", alice, nil, "")
	decode(t, rec, &cfg)
	assert.Equal(t, "Sunny", cfg.BotName)
	assert.Equal(t, 1024, cfg.MaxTokens)

	rec = s.doJSON(t, http.MethodPut, "/api/v1/config", alice, map[string]any{"max_tokens": "lots"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	alice := token(t, "alice")

	rec := s.doJSON(t, http.MethodPost, "/api/v1/chat", alice, model.ChatRequest{Message: "Do you ship abroad?"})
	require.Equal(t, http.StatusOK, rec.Code)
	var chat model.ChatResponse
	decode(t, rec, &chat)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations", alice, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list model.ListConversationsResponse
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Total)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/"+chat.ConversationID, alice, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/"+chat.ConversationID+"/messages", alice, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs model.ListMessagesResponse
	decode(t, rec, &msgs)
	require.Len(t, msgs.Messages, 2)
	assert.Equal(t, model.RoleUser, msgs.Messages[0].Role)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/"+chat.ConversationID, token(t, "bob"), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/not-a-uuid", alice, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/conversations/"+chat.ConversationID+"/end", alice, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	conv, err := s.repo.GetConversation(context.Background(), "alice", chat.ConversationID)
	require.NoError(t, err)
	assert.False(t, conv.IsActive)
}

func TestFAQEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	alice := token(t, "alice")

	rec := s.doJSON(t, http.MethodPost, "/api/v1/knowledge/faqs", alice, model.CreateFAQRequest{
		Question: "Do you deliver?",
		Answer:   "Yes, within the city.",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var faq model.FAQ
	decode(t, rec, &faq)

	rec = s.do(t, http.MethodGet, "/api/v1/knowledge/faqs", alice, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		FAQs []model.FAQ `json:"faqs"`
	}
	decode(t, rec, &list)
	assert.Len(t, list.FAQs, 1)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/knowledge/faqs", alice, model.CreateFAQRequest{Question: "?"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/knowledge/faqs/"+faq.ID, token(t, "bob"), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/knowledge/faqs/"+faq.ID, alice, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func multipartFile(t *testing.T, filename, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestFileUploadEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	alice := token(t, "alice")

	body, ct := multipartFile(t, "hours.txt", "Open nine to five.")
	rec := s.do(t, http.MethodPost, "/api/v1/knowledge/files", alice, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var file model.UploadedFile
	decode(t, rec, &file)
	assert.Equal(t, "hours.txt", file.Filename)

	body, ct = multipartFile(t, "big.txt", strings.Repeat("x", 65))
	rec = s.do(t, http.MethodPost, "/api/v1/knowledge/files", alice, body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	body, ct = multipartFile(t, "tool.exe", "MZ")
	rec = s.do(t, http.MethodPost, "/api/v1/knowledge/files", alice, body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/knowledge/files", alice, strings.NewReader("x"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/knowledge/files/"+file.ID, alice, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestFileUploadWithoutLimitKeepsWholeFile(t *testing.T) {
	s := newTestServerWithUploadLimit(t, nil, 0)
	alice := token(t, "alice")
	content := strings.Repeat("Returns are accepted within thirty days. ", 50)

	body, ct := multipartFile(t, "returns.txt", content)
	rec := s.do(t, http.MethodPost, "/api/v1/knowledge/files", alice, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var file model.UploadedFile
	decode(t, rec, &file)
	assert.Equal(t, int64(len(content)), file.SizeBytes)
}

func TestURLEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	alice := token(t, "alice")

	rec := s.doJSON(t, http.MethodPost, "/api/v1/knowledge/urls", alice, model.CrawlRequest{URL: "https://example.com/pricing"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var page model.CrawledURL
	decode(t, rec, &page)
	assert.Equal(t, "Pricing", page.Title)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/knowledge/urls", alice, model.CrawlRequest{URL: "ftp://example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/knowledge/urls", alice, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://example.com/pricing")
}

func TestAdminStatsRequiresScope(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/admin/stats", token(t, "alice"), nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/stats", token(t, "ops", middleware.ScopeAdmin), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.Stats
	decode(t, rec, &stats)
	assert.Zero(t, stats.Conversations)
}
