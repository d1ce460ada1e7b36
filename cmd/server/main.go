// TerraMind - Agricultural Reasoning Server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/himanshu-nimonkar/TerraMind/internal/api"
	"github.com/himanshu-nimonkar/TerraMind/internal/broadcast"
	"github.com/himanshu-nimonkar/TerraMind/internal/config"
	"github.com/himanshu-nimonkar/TerraMind/internal/metrics"
	"github.com/himanshu-nimonkar/TerraMind/internal/middleware"
	"github.com/himanshu-nimonkar/TerraMind/internal/orchestrator"
	"github.com/himanshu-nimonkar/TerraMind/internal/provider"
	"github.com/himanshu-nimonkar/TerraMind/internal/session"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(),
		"default_lat", cfg.DefaultCentroid.Lat, "default_lon", cfg.DefaultCentroid.Lon)

	// Initialize dependencies.
	store, err := session.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	if err := store.Ping(context.Background()); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session store connected")

	// Provider adapters are constructed once and passed by reference.
	hub := broadcast.NewHub()
	orch := orchestrator.New(cfg, orchestrator.Deps{
		Vegetation: provider.NewVegetationProvider(cfg.Vegetation),
		Weather:    provider.NewWeatherProvider(cfg.Weather),
		Retrieval:  provider.NewRetrievalProvider(cfg.Retrieval),
		Completion: provider.NewCompletionClient(cfg.Completion),
		Store:      store,
		Locker:     session.NewLocker(),
		Hub:        hub,
	})

	// Initialize handlers.
	apiHandler := api.NewHandler(orch, store)
	wsHandler := broadcast.NewWebSocketHandler(hub, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	corsOrigins := []string{"*"}
	if !cfg.IsDevelopment() {
		corsOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(corsOrigins))

	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/dashboard", wsHandler.ServeHTTP)

	// Prometheus metrics.
	r.Handle("/metrics", metrics.Handler())

	// Create server.
	// Note: SSE voice streams require long writes (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start session TTL worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session.StartTTLWorker(ctx, store, cfg.SessionTTL)

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

	slog.Info("Server stopped successfully")
}
