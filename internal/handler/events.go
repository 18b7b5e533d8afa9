package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/advisor-platform/internal/middleware"
	"github.com/capitalize-ai/advisor-platform/internal/service"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
)

const (
	defaultEventPage = 50
	maxEventPage     = 200
)

// EventHandler serves the conversation event log.
type EventHandler struct {
	service *service.EventService
	logger  *logger.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(svc *service.EventService, log *logger.Logger) *EventHandler {
	return &EventHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/conversations/{id}/events?after=&limit=
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(service.KindValidation), "after must be a sequence number")
			return
		}
		after = parsed
	}
	limit := queryInt(r, "limit", defaultEventPage, maxEventPage)
	if limit == 0 {
		limit = defaultEventPage
	}

	page, err := h.service.List(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx), after, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, page)
}
