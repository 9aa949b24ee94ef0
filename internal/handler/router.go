package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragdesk/kb-chatbot/internal/middleware"
	"github.com/ragdesk/kb-chatbot/pkg/logger"
)

// Handlers groups every endpoint handler mounted by NewRouter.
type Handlers struct {
	Health        *HealthHandler
	Chat          *ChatHandler
	Config        *ConfigHandler
	Conversations *ConversationHandler
	Knowledge     *KnowledgeHandler
	Admin         *AdminHandler
}

// RouterConfig carries the HTTP settings NewRouter needs.
type RouterConfig struct {
	JWTSecret         string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the API router.
func NewRouter(h Handlers, cfg RouterConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RecordUser)
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Post("/chat", h.Chat.Chat)

		r.Get("/config", h.Config.Get)
		r.Put("/config", h.Config.Update)

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.Conversations.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Conversations.Get)
				r.Get("/messages", h.Conversations.Messages)
				r.Post("/end", h.Conversations.End)
			})
		})

		// Knowledge base
		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/faqs", h.Knowledge.ListFAQs)
			r.Post("/faqs", h.Knowledge.CreateFAQ)
			r.Delete("/faqs/{id}", h.Knowledge.DeleteFAQ)

			r.Get("/files", h.Knowledge.ListFiles)
			r.Post("/files", h.Knowledge.UploadFile)
			r.Delete("/files/{id}", h.Knowledge.DeleteFile)

			r.Get("/urls", h.Knowledge.ListURLs)
			r.Post("/urls", h.Knowledge.CrawlURL)
			r.Delete("/urls/{id}", h.Knowledge.DeleteURL)
		})

		// Admin
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeAdmin))
			r.Get("/stats", h.Admin.Stats)
		})
	})

	return r
}
