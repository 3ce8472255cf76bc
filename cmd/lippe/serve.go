package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/lippe-assistant/internal/api"
	"github.com/ashureev/lippe-assistant/internal/config"
	"github.com/ashureev/lippe-assistant/internal/form"
	"github.com/ashureev/lippe-assistant/internal/identity"
	"github.com/ashureev/lippe-assistant/internal/journal"
	"github.com/ashureev/lippe-assistant/internal/middleware"
	"github.com/ashureev/lippe-assistant/internal/render"
	"github.com/ashureev/lippe-assistant/internal/session"
	"github.com/ashureev/lippe-assistant/internal/store"
	"github.com/ashureev/lippe-assistant/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web form and JSON API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

//nolint:gocognit // Startup wiring is intentionally sequential to keep dependency setup explicit.
func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	}()
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "version", Version)

	svc, err := newAnswerService(cfg, logger)
	if err != nil {
		return err
	}

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	exchangeLog, err := journal.NewLogger(journal.LogConfig{
		Enabled:   cfg.ExchangeLog.Enabled,
		Dir:       cfg.ExchangeLog.Dir,
		QueueSize: cfg.ExchangeLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize exchange log: %w", err)
	}
	defer func() {
		if closeErr := exchangeLog.Close(); closeErr != nil {
			slog.Error("Failed to close exchange log", "error", closeErr)
		}
	}()
	recorder := journal.NewRecorder(repo, exchangeLog, logger)

	policy := render.NewPolicy(cfg.SanitizeAnswers)
	if !policy.Sanitizing() {
		slog.Warn("Answer sanitizing disabled; generated markup is rendered as-is")
	}

	sessions := session.NewRegistry(func(userID, sessionID string) *form.Controller {
		return form.NewController(svc.client, svc.profile, svc.profile.Greeting,
			form.WithOverlap(svc.overlap),
			form.WithLogger(logger.With("user_id", userID, "session_id", sessionID)),
			form.WithRequestID(chiMiddleware.GetReqID),
			form.WithSettleHook(recorder.Hook(userID, sessionID)),
		)
	}, cfg.SessionTTL, logger)

	page, err := web.NewPage()
	if err != nil {
		return err
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(sessions, svc.profile, policy)
	healthHandler := api.NewHealthHandler(repo, sessions)
	pageHandler := api.NewPageHandler(baseHandler, page)
	formHandler := api.NewFormHandler(baseHandler, repo, svc.client.Model(), svc.overlap)
	streamHandler := api.NewStreamHandler(baseHandler, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	pageHandler.RegisterRoutes(r)
	formHandler.RegisterRoutes(r)
	r.Get("/ws/state", streamHandler.ServeHTTP)

	// No WriteTimeout: /ws/state and wait=true asks are long-lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session.StartSweeper(ctx, sessions, cfg.SweepInterval, repo, cfg.ExchangeRetention)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for shutdown signal.
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	sessions.Close()

	slog.Info("Server stopped successfully")
	return nil
}
