package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ragdesk/kb-chatbot/internal/knowledge"
	"github.com/ragdesk/kb-chatbot/internal/middleware"
	"github.com/ragdesk/kb-chatbot/internal/model"
	"github.com/ragdesk/kb-chatbot/pkg/logger"
)

// KnowledgeHandler manages a user's FAQs, uploaded files and crawled URLs.
type KnowledgeHandler struct {
	service        *knowledge.Service
	maxUploadBytes int64
	logger         *logger.Logger
}

// NewKnowledgeHandler creates a new knowledge handler.
func NewKnowledgeHandler(svc *knowledge.Service, maxUploadBytes int64, log *logger.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{
		service:        svc,
		maxUploadBytes: maxUploadBytes,
		logger:         log,
	}
}

// ListFAQs handles GET /api/v1/knowledge/faqs
func (h *KnowledgeHandler) ListFAQs(w http.ResponseWriter, r *http.Request) {
	faqs, err := h.service.ListFAQs(r.Context(), middleware.GetUserID(r.Context()))
	h.respondList(w, "faqs", faqs, err)
}

// CreateFAQ handles POST /api/v1/knowledge/faqs
func (h *KnowledgeHandler) CreateFAQ(w http.ResponseWriter, r *http.Request) {
	var req model.CreateFAQRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	faq, err := h.service.AddFAQ(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		h.fail(w, err, "failed to add FAQ")
		return
	}

	writeJSON(w, http.StatusCreated, faq)
}

// DeleteFAQ handles DELETE /api/v1/knowledge/faqs/{id}
func (h *KnowledgeHandler) DeleteFAQ(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.service.DeleteFAQ)
}

// ListFiles handles GET /api/v1/knowledge/files
func (h *KnowledgeHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.service.ListFiles(r.Context(), middleware.GetUserID(r.Context()))
	h.respondList(w, "files", files, err)
}

// UploadFile handles POST /api/v1/knowledge/files as multipart form field "file".
func (h *KnowledgeHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope around the file. A limit of zero
	// means uploads are not capped, matching the knowledge service.
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	var src io.Reader = file
	if h.maxUploadBytes > 0 {
		// One byte past the limit lets the service report the file as too large.
		src = io.LimitReader(file, h.maxUploadBytes+1)
	}
	content, err := io.ReadAll(src)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	rec, err := h.service.IngestFile(r.Context(), middleware.GetUserID(r.Context()), header.Filename, content)
	if err != nil {
		h.fail(w, err, "failed to ingest file")
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// DeleteFile handles DELETE /api/v1/knowledge/files/{id}
func (h *KnowledgeHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.service.DeleteFile)
}

// ListURLs handles GET /api/v1/knowledge/urls
func (h *KnowledgeHandler) ListURLs(w http.ResponseWriter, r *http.Request) {
	urls, err := h.service.ListURLs(r.Context(), middleware.GetUserID(r.Context()))
	h.respondList(w, "urls", urls, err)
}

// CrawlURL handles POST /api/v1/knowledge/urls
func (h *KnowledgeHandler) CrawlURL(w http.ResponseWriter, r *http.Request) {
	var req model.CrawlRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.service.CrawlURL(r.Context(), middleware.GetUserID(r.Context()), req.URL)
	if err != nil {
		h.fail(w, err, "failed to crawl URL")
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// DeleteURL handles DELETE /api/v1/knowledge/urls/{id}
func (h *KnowledgeHandler) DeleteURL(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.service.DeleteURL)
}

func (h *KnowledgeHandler) delete(w http.ResponseWriter, r *http.Request, del func(ctx context.Context, userID, id string) error) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := del(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		h.fail(w, err, "failed to delete record")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *KnowledgeHandler) respondList(w http.ResponseWriter, key string, items interface{}, err error) {
	if err != nil {
		h.fail(w, err, "failed to list "+key)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{key: items})
}

func (h *KnowledgeHandler) fail(w http.ResponseWriter, err error, message string) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	writeError(w, status, errorMessage(err, status, message))
}
