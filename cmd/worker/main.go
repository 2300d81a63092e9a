package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/schoolyard/internal/database"
	"github.com/hugh/schoolyard/internal/tasks"
	"github.com/hugh/schoolyard/pkg/config"
	"github.com/hugh/schoolyard/pkg/queue"
	"github.com/hugh/schoolyard/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env, "worker")
	slog.SetDefault(logger)

	logger.Info("starting Schoolyard worker")

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency)

	// Create task handler
	handler := tasks.NewHandler(db, logger)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Periodic refresh-token purge
	if err := util.ValidateCronExpr(cfg.Worker.PurgeSchedule); err != nil {
		logger.Error("invalid purge schedule", "schedule", cfg.Worker.PurgeSchedule, "error", err)
		os.Exit(1)
	}
	scheduler := queue.NewScheduler(&cfg.Redis)
	purgeTask, err := tasks.NewRefreshTokenPurgeTask(tasks.RefreshTokenPurgePayload{
		Retention: cfg.Worker.PurgeRetention(),
	})
	if err != nil {
		logger.Error("failed to build purge task", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.Register(cfg.Worker.PurgeSchedule, purgeTask); err != nil {
		logger.Error("failed to register purge task", "error", err)
		os.Exit(1)
	}
	if next, err := util.NextCronTime(cfg.Worker.PurgeSchedule, time.Now()); err == nil {
		logger.Info("refresh-token purge scheduled",
			"schedule", cfg.Worker.PurgeSchedule, "next_run", next)
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	// Start the server
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
