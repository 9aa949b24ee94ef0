package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ragdesk/kb-chatbot/internal/service"
	"github.com/ragdesk/kb-chatbot/pkg/logger"
)

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	conversations *service.ConversationService
	logger        *logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(conversations *service.ConversationService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		conversations: conversations,
		logger:        log,
	}
}

// Stats handles GET /api/v1/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.conversations.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to load stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
