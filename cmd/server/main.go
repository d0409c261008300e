// ARISE - Hunter-themed CTF API Server
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

	"github.com/arisectf/arise-server/internal/api"
	"github.com/arisectf/arise-server/internal/auth"
	"github.com/arisectf/arise-server/internal/config"
	"github.com/arisectf/arise-server/internal/game"
	"github.com/arisectf/arise-server/internal/middleware"
	"github.com/arisectf/arise-server/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

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

	// Seed the challenge set. Idempotent: existing rows are untouched.
	challenges, err := store.DefaultChallenges()
	if err != nil {
		slog.Error("Failed to load embedded challenges", "error", err)
		os.Exit(1)
	}
	if err := repo.SeedChallenges(context.Background(), challenges); err != nil {
		slog.Error("Failed to seed challenges", "error", err)
		os.Exit(1)
	}
	slog.Info("Challenge seed ensured", "challenges", len(challenges))

	// Initialize services.
	gameSvc := game.NewService(repo)
	authSvc := auth.NewService(repo, []byte(cfg.JWTSecret), cfg.BcryptCost)

	// Initialize handlers.
	hub := api.NewLiveHub(func(ctx context.Context) (any, error) {
		return gameSvc.Leaderboard(ctx, cfg.LeaderboardLimit)
	})
	handler := api.NewHandler(gameSvc, authSvc, hub, cfg.LeaderboardLimit)
	healthHandler := api.NewHealthHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(allowedOrigins))

	healthHandler.RegisterHealth(r)
	handler.RegisterRoutes(r)

	// WebSocket endpoint for live leaderboard pushes.
	r.Get("/ws/leaderboard", hub.ServeHTTP)

	// Create server. No WriteTimeout: websocket subscribers hold their
	// connection open indefinitely.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
