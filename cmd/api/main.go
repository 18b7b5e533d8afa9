// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/advisor-platform/internal/auth"
	"github.com/capitalize-ai/advisor-platform/internal/config"
	"github.com/capitalize-ai/advisor-platform/internal/handler"
	natsclient "github.com/capitalize-ai/advisor-platform/internal/nats"
	"github.com/capitalize-ai/advisor-platform/internal/service"
	"github.com/capitalize-ai/advisor-platform/internal/store"
	"github.com/capitalize-ai/advisor-platform/internal/store/memory"
	"github.com/capitalize-ai/advisor-platform/internal/store/postgres"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
	"github.com/capitalize-ai/advisor-platform/pkg/tracing"
)

const streamStatsInterval = 30 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.ForEnvironment(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info("starting API server",
		zap.String("env", cfg.Env),
		zap.String("store", cfg.StoreDriver),
		zap.String("fork_atomicity", cfg.ForkAtomicity),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, cfg.ServiceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() {
				if err := tracing.Shutdown(context.Background(), tp); err != nil {
					log.Warn("failed to flush traces", zap.Error(err))
				}
			}()
		}
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	// Event publishing is optional
	var (
		publisher  service.EventPublisher = service.NopPublisher{}
		reader     service.EventReader
		natsClient *natsclient.Client
	)
	if cfg.NATSEnabled() {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}
		publisher = streamManager
		reader = streamManager
		go recordStreamStats(ctx, streamManager, log)
	} else {
		log.Info("NATS_URL not set, conversation events disabled")
	}

	verifier, err := newVerifier(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer verifier.Close()

	// The fork engine falls back to a compensating delete without a transaction manager.
	var forkTx store.TransactionManager
	if cfg.ForkAtomicity == config.ForkAtomicityTransaction {
		forkTx = st
	}

	// Initialize services
	conversationSvc := service.NewConversationService(st, st, publisher, log)
	forkSvc := service.NewForkService(st, st, forkTx, publisher, log, cfg.CompensationTimeout)
	messageSvc := service.NewMessageService(st, st, st, publisher, log)
	eventSvc := service.NewEventService(st, st, reader, log)

	router := handler.NewRouter(handler.RouterConfig{
		Logger:            log,
		Verifier:          verifier,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Health:            handler.NewHealthHandler(st, natsClient),
		Conversations:     handler.NewConversationHandler(conversationSvc, forkSvc, log),
		Messages:          handler.NewMessageHandler(messageSvc, log),
		Events:            handler.NewEventHandler(eventSvc, log),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// openStore selects the storage backend from cfg.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil
	}

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pg := postgres.New(pool, postgres.NewTableNames(cfg.DBTablePrefix), log)
	if cfg.DBAutoMigrate {
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
		log.Info("database schema ensured")
	}
	return pg, nil
}

// newVerifier prefers JWKS when configured and falls back to the shared secret.
func newVerifier(ctx context.Context, cfg *config.Config, log *logger.Logger) (auth.TokenVerifier, error) {
	if cfg.JWKSURL != "" {
		v, err := auth.NewJWKSVerifier(ctx, cfg.JWKSURL, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create JWKS verifier: %w", err)
		}
		return v, nil
	}
	v, err := auth.NewHMACVerifier(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT verifier: %w", err)
	}
	return v, nil
}

func recordStreamStats(ctx context.Context, m *natsclient.StreamManager, log *logger.Logger) {
	ticker := time.NewTicker(streamStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.RecordStats(ctx); err != nil {
				log.Debug("failed to record stream stats", zap.Error(err))
			}
		}
	}
}
