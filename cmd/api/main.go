// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ragdesk/kb-chatbot/internal/botconfig"
	"github.com/ragdesk/kb-chatbot/internal/config"
	"github.com/ragdesk/kb-chatbot/internal/handler"
	"github.com/ragdesk/kb-chatbot/internal/knowledge"
	"github.com/ragdesk/kb-chatbot/internal/llm"
	natsclient "github.com/ragdesk/kb-chatbot/internal/nats"
	"github.com/ragdesk/kb-chatbot/internal/prompt"
	"github.com/ragdesk/kb-chatbot/internal/retrieval"
	"github.com/ragdesk/kb-chatbot/internal/service"
	"github.com/ragdesk/kb-chatbot/internal/store"
	"github.com/ragdesk/kb-chatbot/internal/store/memstore"
	"github.com/ragdesk/kb-chatbot/internal/store/redisstore"
	"github.com/ragdesk/kb-chatbot/internal/store/sqlstore"
	"github.com/ragdesk/kb-chatbot/internal/vectorstore"
	"github.com/ragdesk/kb-chatbot/pkg/logger"
	"github.com/ragdesk/kb-chatbot/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "kb-chatbot", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background(), tp) }()
		}
	}

	// Conversation store
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatal("failed to open conversation store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer func() { _ = repo.Close() }()

	// Vectorstore
	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		log.Warn("embedding provider unavailable, falling back to hashed embeddings",
			zap.String("provider", cfg.EmbeddingProvider),
			zap.Error(err),
		)
		embedder = vectorstore.HashEmbedder{Dims: cfg.EmbeddingDims}
	}
	if c, ok := embedder.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	checks := map[string]handler.Check{"store": repo.Ping}

	var vectors vectorstore.Store
	switch strings.ToLower(cfg.VectorBackend) {
	case "pgvector":
		pg, err := vectorstore.NewPGVectorStore(ctx, cfg.PostgresURL, embedder, cfg.EmbeddingDims, cfg.IngestWorkers)
		if err != nil {
			log.Fatal("failed to open pgvector store", zap.Error(err))
		}
		defer pg.Close()
		vectors = pg
		checks["vectorstore"] = pg.Ping
	case "memory", "":
		vectors = vectorstore.NewMemoryStore(embedder)
	default:
		log.Fatal("unknown vector backend", zap.String("backend", cfg.VectorBackend))
	}

	// Connect to NATS when configured; events are optional.
	var events service.Publisher
	var kbEvents knowledge.EventPublisher
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		publisher := natsclient.NewPublisher(natsClient)
		if err := publisher.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		events = publisher
		kbEvents = publisher
		checks["nats"] = natsClient.Ping
	}

	// LLM providers
	llms := llm.NewRegistry(llm.Credentials{
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		OllamaURL:       cfg.OllamaURL,
	})
	defer func() { _ = llms.Close() }()

	// Per-user bot configuration
	defaults := botconfig.Defaults(cfg.DefaultLLM)
	if cfg.BotDefaultsFile != "" {
		defaults, err = botconfig.LoadDefaults(cfg.BotDefaultsFile, defaults)
		if err != nil {
			log.Fatal("failed to load bot defaults", zap.String("path", cfg.BotDefaultsFile), zap.Error(err))
		}
	}
	configs := botconfig.NewResolver(cfg.BotConfigDir, defaults, log)

	// Initialize services
	deps := &service.Deps{
		Repo:      repo,
		Retriever: retrieval.NewRetriever(vectors, log),
		LLMs:      llms,
		Configs:   configs,
		Prompts:   prompt.NewBuilder(cfg.MaxPromptTokens, nil),
		Events:    events,
		Logger:    log,
	}
	chatSvc := service.NewChatService(deps)
	conversationSvc := service.NewConversationService(deps)
	var crawlerOpts []knowledge.CrawlerOption
	if cfg.CrawlAllowPrivate {
		crawlerOpts = append(crawlerOpts, knowledge.AllowPrivateHosts())
	}
	knowledgeSvc := knowledge.NewService(repo, vectors, knowledge.NewCrawler(cfg.CrawlTimeout, crawlerOpts...), kbEvents, knowledge.Options{
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, log)

	// Create router
	router := handler.NewRouter(handler.Handlers{
		Health:        handler.NewHealthHandler(checks),
		Chat:          handler.NewChatHandler(chatSvc, log),
		Config:        handler.NewConfigHandler(configs, log),
		Conversations: handler.NewConversationHandler(conversationSvc, log),
		Knowledge:     handler.NewKnowledgeHandler(knowledgeSvc, cfg.MaxUploadBytes, log),
		Admin:         handler.NewAdminHandler(conversationSvc, log),
	}, handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("port", cfg.ServerPort),
			zap.String("store", cfg.StoreBackend),
			zap.String("vectors", cfg.VectorBackend),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		log.Error("server error", zap.Error(err))
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func openRepository(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	switch strings.ToLower(cfg.StoreBackend) {
	case "sqlite", "":
		return sqlstore.Open(cfg.SQLitePath)
	case "redis":
		return redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "memory":
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func newEmbedder(ctx context.Context, cfg *config.Config) (vectorstore.Embedder, error) {
	switch strings.ToLower(cfg.EmbeddingProvider) {
	case "openai":
		return vectorstore.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	case "gemini":
		return vectorstore.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	case "ollama":
		return vectorstore.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingModel), nil
	case "hash":
		return vectorstore.HashEmbedder{Dims: cfg.EmbeddingDims}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}
