package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ValidateUUIDParam rejects requests whose chi URL parameter is not a UUID.
func ValidateUUIDParam(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := uuid.Parse(chi.URLParam(r, name)); err != nil {
				writeError(w, http.StatusBadRequest, "validation", "invalid "+name+" format")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
