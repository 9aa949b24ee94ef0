package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ragdesk/kb-chatbot/internal/botconfig"
	"github.com/ragdesk/kb-chatbot/internal/middleware"
	"github.com/ragdesk/kb-chatbot/pkg/logger"
)

// ConfigHandler serves the caller's bot configuration.
type ConfigHandler struct {
	resolver *botconfig.Resolver
	logger   *logger.Logger
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(resolver *botconfig.Resolver, log *logger.Logger) *ConfigHandler {
	return &ConfigHandler{
		resolver: resolver,
		logger:   log,
	}
}

// Get handles GET /api/v1/config
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.resolver.Load(middleware.GetUserID(r.Context())))
}

// Update handles PUT /api/v1/config. Only the keys present in the body change.
func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var patch map[string]any
	if err := decodeJSON(w, r, &patch); err != nil || patch == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := h.resolver.Update(userID, patch)
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("config update failed", zap.String("user_id", userID), zap.Error(err))
		}
		writeError(w, status, errorMessage(err, status, "failed to save config"))
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}
