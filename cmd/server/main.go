// Job board chat server
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

	"github.com/ashureev/jobchat/internal/api"
	"github.com/ashureev/jobchat/internal/chat"
	"github.com/ashureev/jobchat/internal/config"
	"github.com/ashureev/jobchat/internal/identity"
	"github.com/ashureev/jobchat/internal/live"
	"github.com/ashureev/jobchat/internal/middleware"
	"github.com/ashureev/jobchat/internal/store"
	"github.com/ashureev/jobchat/internal/support"
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

	// Initialize services.
	verifier := identity.NewVerifier(cfg.JWTSecret)
	chatService := chat.NewService(repo, chat.Options{
		HistoryLimit: cfg.Chat.HistoryLimit,
		HistoryMax:   cfg.Chat.HistoryMax,
		Logger:       logger,
	})
	supportService := support.NewService(repo, support.NewResponder(), logger)
	hub := live.NewBroadcaster(logger)

	liveOpts := live.Options{
		AllowedOrigin: cfg.FrontendURL,
		IsDev:         cfg.IsDevelopment(),
		SendQueue:     cfg.Live.SendQueue,
		FrameRate:     cfg.Live.FrameRate,
		FrameBurst:    cfg.Live.FrameBurst,
		Logger:        logger,
	}

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo)
	chatHandler := api.NewChatHandler(chatService, hub)
	supportHandler := api.NewSupportHandler(supportService)
	chatWS := live.NewChatHandler(chatService, hub, liveOpts)
	supportWS := live.NewSupportHandler(supportService, hub, cfg.Support.Room, liveOpts)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	supportHandler.RegisterRoutes(r)
	r.Get("/ws/support", supportWS.ServeHTTP)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, verifier))
		chatHandler.RegisterRoutes(r)
		r.Get("/ws/jobchat/{room}", chatWS.ServeHTTP)
	})

	// Create server.
	// Websocket connections are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	srv.RegisterOnShutdown(hub.CloseAll)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start transcript retention worker.
	support.StartRetentionWorker(ctx, repo, cfg.Support.Retention)

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
