package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwhitden/muster/internal/config"
	"github.com/jwhitden/muster/internal/database"
	"github.com/jwhitden/muster/internal/logging"
	"github.com/jwhitden/muster/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(db, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sched := srv.ReminderScheduler(); sched != nil {
		sched.Start(ctx)
		defer sched.Stop()
	}
	if mgr := srv.SnapshotManager(); mgr.Enabled() {
		mgr.Start(ctx)
		defer mgr.Stop()
	}
	if tm := srv.TunnelManager(); tm.Enabled() {
		if err := tm.Start(ctx); err != nil {
			logger.Warn("tunnel start failed", "error", err)
		}
		defer tm.Stop()
	}

	go cleanupLoop(ctx, srv, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("muster listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// cleanupLoop hourly drops expired sessions, stale rate limiter entries,
// and notification log rows older than 30 days.
func cleanupLoop(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := srv.SessionStore().DeleteExpired(); err != nil {
				logger.Error("session cleanup", "error", err)
			}
			srv.RateLimiter().Cleanup()
			if err := srv.NotificationLogStore().CleanupSent(time.Now().AddDate(0, 0, -30)); err != nil {
				logger.Error("notification log cleanup", "error", err)
			}
		}
	}
}
