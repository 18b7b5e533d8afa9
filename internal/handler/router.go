package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/advisor-platform/internal/auth"
	"github.com/capitalize-ai/advisor-platform/internal/middleware"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
)

// RouterConfig carries everything the HTTP surface is built from.
type RouterConfig struct {
	Logger            *logger.Logger
	Verifier          auth.TokenVerifier
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	Health        *HealthHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Events        *EventHandler
}

// NewRouter mounts the API routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Verifier))
		r.Use(middleware.RequestLogger(cfg.Logger))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", cfg.Conversations.Create)
			r.Get("/", cfg.Conversations.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(middleware.ValidateUUIDParam("id"))

				r.Get("/", cfg.Conversations.Get)
				r.Patch("/", cfg.Conversations.Update)
				r.Delete("/", cfg.Conversations.Delete)
				r.Post("/fork", cfg.Conversations.Fork)

				r.Get("/messages", cfg.Messages.List)
				r.Post("/messages", cfg.Messages.Append)

				r.Get("/events", cfg.Events.List)
			})
		})
	})

	return r
}
