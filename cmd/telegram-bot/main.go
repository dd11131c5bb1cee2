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

	"leftover-chef/internal/app"
	"leftover-chef/internal/config"
	"leftover-chef/internal/logging"
	"leftover-chef/internal/telegram"
)

// sessionCleanupInterval is how often expired conversations are purged.
const sessionCleanupInterval = time.Hour

func main() {
	logging.Setup()

	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Initialize the application core (database, metrics, TheMealDB)
	application, err := app.Open(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	sessions := telegram.NewSessionRepository(application.DB())

	// 3. Initialize Telegram Bot
	bot, err := telegram.NewBot(cfg, application, sessions)
	if err != nil {
		slog.Error("Failed to initialize Telegram Bot", "error", err)
		application.Close()
		os.Exit(1)
	}

	mux := http.NewServeMux()
	bot.RegisterHandlers(mux)

	// 4. Keep the shopping list following the plan in the background
	go application.Run(ctx)
	go cleanupSessions(ctx, sessions)

	// 5. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Telegram Bot Server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exiting")
}

func cleanupSessions(ctx context.Context, sessions *telegram.SessionRepository) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.CleanupExpired(ctx)
			if err != nil {
				slog.Warn("Failed to clean up sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("Removed expired sessions", "count", n)
			}
		}
	}
}
