package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hugh/schoolyard/internal/api"
	"github.com/hugh/schoolyard/internal/auth"
	"github.com/hugh/schoolyard/internal/authz"
	"github.com/hugh/schoolyard/internal/ctxcache"
	"github.com/hugh/schoolyard/internal/database"
	"github.com/hugh/schoolyard/internal/identity"
	"github.com/hugh/schoolyard/internal/tenant"
	"github.com/hugh/schoolyard/pkg/config"
	"github.com/hugh/schoolyard/pkg/crypto"
	"github.com/hugh/schoolyard/pkg/queue"
	"github.com/hugh/schoolyard/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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
	logger := util.NewLogger(cfg.Server.Env, "api")
	slog.SetDefault(logger)

	logger.Info("starting Schoolyard server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
		"platform_host", cfg.Tenant.PlatformHost,
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to Redis. The service stays up without it: the context cache
	// degrades to local-only and audit events are logged but not persisted.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis, running degraded", "error", err)
		redisClient = nil
	}

	// Asynq client for audit events and maintenance jobs
	asynqClient := queue.NewClient(&cfg.Redis)

	// Encryptor for membership details at rest
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - membership details will be unreadable after restart")
	}

	// Identity store and the context cache in front of it
	identityStore := identity.NewStore(db, encryptor, logger)
	contextCache := ctxcache.New(ctxcache.Options{
		Redis:     redisClient,
		Loader:    identityStore,
		LocalTTL:  cfg.Cache.LocalTTL(),
		LocalSize: cfg.Cache.LocalSize,
		SharedTTL: cfg.Cache.SharedTTL(),
		Logger:    logger,
	})
	identityStore.SetInvalidator(contextCache)

	// Tenant resolution, authorization, tokens
	resolver := tenant.NewResolver(db, cfg.Tenant.PlatformHost, cfg.Tenant.ResolverTTL(), cfg.Tenant.ResolverCacheSize, logger)
	auditor := authz.NewAuditor(asynqClient, logger)
	evaluator := authz.NewEvaluator(contextCache, auditor)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessTTL())
	refreshStore := auth.NewRefreshStore(db, cfg.JWT.RefreshTTL())
	authService := auth.NewService(identityStore, jwtService, refreshStore)

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:            db,
		Redis:         redisClient,
		Logger:        logger,
		JWTService:    jwtService,
		AuthService:   authService,
		IdentityStore: identityStore,
		Resolver:      resolver,
		Evaluator:     evaluator,
		PlatformHost:  cfg.Tenant.PlatformHost,
		RateLimitReqs: cfg.RateLimit.Requests,
		RateLimitSecs: cfg.RateLimit.WindowSeconds,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	contextCache.Close()

	if asynqClient != nil {
		asynqClient.Close()
	}

	if redisClient != nil {
		redisClient.Close()
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
