// voicedesk - embeddable voice assistant widget server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/voicedesk/internal/api"
	"github.com/ashureev/voicedesk/internal/config"
	"github.com/ashureev/voicedesk/internal/history"
	"github.com/ashureev/voicedesk/internal/identity"
	"github.com/ashureev/voicedesk/internal/middleware"
	"github.com/ashureev/voicedesk/internal/responder"
	"github.com/ashureev/voicedesk/internal/store"
	"github.com/ashureev/voicedesk/internal/widget"
	"github.com/ashureev/voicedesk/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

const responderRetryDelay = 200 * time.Millisecond

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath,
		store.WithRetry(cfg.Retry.DatabaseMaxRetries, cfg.Retry.DatabaseRetryBaseDelay))
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Responder backend (optional). Without one the canned-reply stub answers.
	var backend responder.Responder = responder.NewStub(responder.WithDelay(cfg.Responder.StubDelay))
	var backendHealth api.HealthChecker
	if cfg.Responder.Addr != "" {
		slog.Info("Connecting to responder service via gRPC", "address", cfg.Responder.Addr)
		grpcClient, err := responder.NewGrpcResponder(responder.DefaultGrpcConfig(cfg.Responder.Addr), logger)
		if err != nil {
			slog.Warn("Failed to connect to responder, falling back to canned replies", "error", err)
		} else {
			defer grpcClient.Close()
			backend = grpcClient
			backendHealth = grpcClient
		}
	} else {
		slog.Info("RESPONDER_ADDR not set, using canned replies")
	}
	backend = responder.WithRetry(
		responder.WithTimeout(backend, cfg.Responder.Timeout),
		cfg.Responder.Retries, responderRetryDelay, logger,
	)

	recorder := history.NewRecorder(repo, history.Config{QueueSize: cfg.Recorder.QueueSize}, logger)
	defer func() {
		if closeErr := recorder.Close(); closeErr != nil {
			slog.Error("Failed to drain transcript recorder", "error", closeErr)
		}
	}()

	// Initialize services.
	sm := widget.NewSessionManager()
	limiter := widget.NewVisitorLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, sm, logger)
	assistantHandler := api.NewAssistantHandler(baseHandler)
	widgetHandler := api.NewWidgetHandler(baseHandler)
	healthHandler := api.NewHealthHandler(repo, sm, backendHealth, recorder)
	wsHandler := widget.NewWebSocketHandler(repo, backend, sm, limiter, logger)
	wsHandler.SetRecorder(recorder)
	wsHandler.SetConversationIdle(cfg.Widget.SessionTTL)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Route("/api", func(r chi.Router) {
		// Public widget routes are embedded on customer sites.
		r.Group(func(r chi.Router) {
			r.Use(middleware.CORS([]string{"*"}))
			healthHandler.RegisterHealth(r)
			widgetHandler.RegisterRoutes(r)
		})

		// Dashboard routes carry the owner cookie.
		r.Group(func(r chi.Router) {
			r.Use(middleware.CORS(dashboardOrigins(cfg)))
			r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
			assistantHandler.RegisterRoutes(r)
		})
	})

	// WebSocket endpoint.
	r.Get("/ws/widget/{assistantID}", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server. Websocket sessions are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start TTL worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	widget.StartTTLWorker(ctx, repo, sm, limiter, cfg.Widget.SessionTTL, cfg.Widget.SweepInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Hijacked websocket connections are not tracked by Shutdown. Their
	// teardown must finish before the deferred recorder drain.
	if closed := sm.CloseAll("server shutdown"); closed > 0 {
		slog.Info("Closed widget sessions", "count", closed)
	}
	if err := wsHandler.Wait(shutdownCtx); err != nil {
		slog.Warn("Widget sessions did not finish before shutdown deadline", "error", err)
	}

	slog.Info("Server stopped successfully")
}

// dashboardOrigins allows credentialed requests from the configured dashboard
// origin. Development falls back to any origin without credentials.
func dashboardOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
