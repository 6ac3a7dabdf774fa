// Chat store - two-tier chat message service
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
	"github.com/joho/godotenv"
	"github.com/moviepal/chatstore/internal/api"
	"github.com/moviepal/chatstore/internal/cache"
	"github.com/moviepal/chatstore/internal/chat"
	"github.com/moviepal/chatstore/internal/config"
	"github.com/moviepal/chatstore/internal/middleware"
	"github.com/moviepal/chatstore/internal/store"
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

	slog.Info("Starting server", "port", cfg.Port, "redis", cfg.RedisAddr())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
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

	hotStore := cache.New(cache.Options{
		Addr:      cfg.RedisAddr(),
		DB:        cfg.RedisDB,
		Reconnect: cache.DefaultReconnectPolicy,
	})
	defer func() {
		if closeErr := hotStore.Close(); closeErr != nil {
			slog.Error("Failed to close hot store", "error", closeErr)
		}
	}()

	if err := hotStore.Ping(context.Background()); err != nil {
		slog.Warn("Hot store unreachable at startup, reads will fall back to the archive", "error", err)
	} else {
		slog.Info("Hot store connected")
	}

	// Initialize services.
	syncer := chat.NewSyncer(hotStore, repo)
	reader := chat.NewReader(hotStore, repo, cfg.CacheReadTimeout)
	tracker := chat.NewTracker(repo)
	reaper := chat.NewReaper(repo, hotStore, syncer, cfg.InactivityThreshold, cfg.SweepInterval)

	// Initialize handlers.
	handler := api.NewHandler(repo, hotStore, reader, syncer, tracker)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	handler.RegisterChatRoutes(r)
	handler.RegisterUserRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the inactivity reaper.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reaper.Start(ctx)

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
