package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/capitalize-ai/advisor-platform/internal/service"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
)

// maxBodyBytes bounds request bodies; message content alone may be 100k.
const maxBodyBytes = 1 << 20

// envelope is the JSON shape of every API response.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSuccess wraps data in a success envelope.
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// writeError writes a JSON error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Error: message, Code: code})
}

// writeServiceError maps a service error onto its HTTP status. Server-side
// failures are logged with their cause; the client only sees the message.
func writeServiceError(w http.ResponseWriter, r *http.Request, fallback *logger.Logger, err error) {
	kind := service.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), fallback).Error("request failed",
			zap.String("kind", string(kind)),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, string(kind), service.MessageOf(err))
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindSourceNotFound, service.KindConversationNotFound:
		return http.StatusNotFound
	case service.KindAlreadyOwned, service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotShared, service.KindNotAMember, service.KindAccessDenied,
		service.KindNotOwner, service.KindInsufficientRole:
		return http.StatusForbidden
	case service.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, string(service.KindValidation), "invalid request body")
		return false
	}
	return true
}

// queryInt parses a non-negative integer query parameter, returning def when
// absent or malformed and clamping to max when max > 0.
func queryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}
