// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/advisor-platform/internal/middleware"
	"github.com/capitalize-ai/advisor-platform/internal/model"
	"github.com/capitalize-ai/advisor-platform/internal/service"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
)

// maxPageSize caps limit query parameters.
const maxPageSize = 500

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	forks   *service.ForkService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, forks *service.ForkService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		forks:   forks,
		logger:  log,
	}
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conv, err := h.service.Create(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations?organization_id=
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := r.URL.Query().Get("organization_id")

	resp, err := h.service.List(ctx, organizationID, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/{id}?limit=&offset=
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := queryInt(r, "limit", 0, maxPageSize)
	offset := queryInt(r, "offset", 0, 0)

	detail, err := h.service.Get(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx), limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, detail)
}

// Update handles PATCH /api/v1/conversations/{id}
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	conv, err := h.service.Update(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/v1/conversations/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Delete(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]bool{"deleted": true})
}

// Fork handles POST /api/v1/conversations/{id}/fork
func (h *ConversationHandler) Fork(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.forks.Fork(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusCreated, result)
}
