package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hirelane/session-gateway/internal/auth"
	"github.com/hirelane/session-gateway/internal/coderun"
	"github.com/hirelane/session-gateway/internal/config"
	"github.com/hirelane/session-gateway/internal/database"
	"github.com/hirelane/session-gateway/internal/handler"
	"github.com/hirelane/session-gateway/internal/logger"
	"github.com/hirelane/session-gateway/internal/remote"
	"github.com/hirelane/session-gateway/internal/router"
	"github.com/hirelane/session-gateway/internal/session"
	"github.com/hirelane/session-gateway/internal/validator"
	"github.com/hirelane/session-gateway/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Session Gateway")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Remote Clients ────────────────────────────────────────────────
	api := remote.NewClient(cfg, log)
	runner := remote.NewRunner(cfg, log)

	// ─── Core Components ───────────────────────────────────────────────
	manager := session.NewManager(api, rdb, log)
	bridge := coderun.NewBridge(runner, log)
	tokenValidator := auth.NewValidator(cfg.JWTSecret)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session:    handler.NewSessionHandler(manager),
		Invitation: handler.NewInvitationHandler(manager),
		CodeRun:    handler.NewCodeRunHandler(manager, bridge),
		WS:         handler.NewWSHandler(manager, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	answerWorker := worker.NewAnswerWorker(api, rdb, log)
	go answerWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(tokenValidator, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Close live sessions. Unsubmitted attempts stay resumable.
	manager.Shutdown()

	// 3. Stop the answer worker and wait for the queue to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow the worker to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
