package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ragdesk/kb-chatbot/internal/middleware"
	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/internal/service"
	"github.com/ragdesk/kb-chatbot/pkg/logger"
)

// ChatHandler handles the chat endpoint.
type ChatHandler struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: svc,
		logger:  log,
	}
}

// Chat handles POST /api/v1/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ConversationID != "" {
		if err := middleware.ValidateID(req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	req.UserID = middleware.GetUserID(ctx)

	resp, err := h.service.Chat(ctx, &req)
	if err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.ForRequest(middleware.GetCorrelationID(ctx), req.UserID).Error("chat failed", zap.Error(err))
		}
		writeError(w, status, errorMessage(err, status, "failed to process message"))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
