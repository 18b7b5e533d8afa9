package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/advisor-platform/internal/middleware"
	"github.com/capitalize-ai/advisor-platform/internal/model"
	"github.com/capitalize-ai/advisor-platform/internal/service"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	service *service.MessageService
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(svc *service.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/conversations/{id}/messages?limit=&offset=
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := queryInt(r, "limit", 0, maxPageSize)
	offset := queryInt(r, "offset", 0, 0)

	resp, err := h.service.List(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx), limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, resp)
}

// Append handles POST /api/v1/conversations/{id}/messages
func (h *MessageHandler) Append(w http.ResponseWriter, r *http.Request) {
	var req model.AppendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	msg, err := h.service.Append(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusCreated, model.AppendMessageResponse{Message: msg})
}
