// Package main initializes and runs the skuld evaluation worker.
//
// It acts as the composition root for the job pipeline, wiring up the
// PostgreSQL store, the Redis queue, the evaluator and the heartbeat
// scheduler, and handling the process lifecycle.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rafaeljc/skuld/internal/cache"
	"github.com/rafaeljc/skuld/internal/config"
	"github.com/rafaeljc/skuld/internal/database"
	"github.com/rafaeljc/skuld/internal/evaluator"
	"github.com/rafaeljc/skuld/internal/logger"
	"github.com/rafaeljc/skuld/internal/observability"
	"github.com/rafaeljc/skuld/internal/queue"
	"github.com/rafaeljc/skuld/internal/scheduler"
	"github.com/rafaeljc/skuld/internal/store"
	"github.com/rafaeljc/skuld/internal/worker"
)

// queueKeyPrefix namespaces every Redis key the worker touches.
const queueKeyPrefix = "skuld"

// Compiled-rule cache sizing. Rules are small ASTs; the TTL is a safety net
// on top of version-keyed invalidation.
const (
	ruleCacheCapacity = 10_000
	ruleCacheTTL      = time.Hour
)

// main is the application entrypoint.
func main() {
	if err := run(); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

// run executes the worker lifecycle.
func run() error {
	// -------------------------------------------------------------------------
	// 1. Configuration
	// -------------------------------------------------------------------------

	// Load .env in development; in production the environment is injected.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.New(&cfg.App)
	slog.SetDefault(appLogger)
	cfg.LogConfig(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// -------------------------------------------------------------------------
	// 2. Infrastructure Setup
	// -------------------------------------------------------------------------

	dbPool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer dbPool.Close()

	redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	ruleCache, err := cache.NewRuleCache(ruleCacheCapacity, ruleCacheTTL)
	if err != nil {
		return fmt.Errorf("failed to build rule cache: %w", err)
	}
	defer ruleCache.Close()

	// -------------------------------------------------------------------------
	// 3. Wiring (Dependency Injection)
	// -------------------------------------------------------------------------

	gateway := store.NewPostgresStore(dbPool)
	jobQueue := queue.New(redisClient, queueKeyPrefix, appLogger)
	deduper := cache.NewRedisDeduper(redisClient, queueKeyPrefix)

	evalService := evaluator.New(appLogger, gateway, ruleCache, deduper, cfg.Worker.DedupeTTL)

	// Leave the registry nil (not a typed-nil pointer) when heartbeats are
	// disabled so the pool's nil check holds.
	var heartbeats worker.HeartbeatRegistry
	if cfg.Heartbeat.Enabled {
		scheduled := scheduler.NewHeartbeats(appLogger, jobQueue, cfg.Heartbeat.Interval, cfg.Heartbeat.MaxSessions)
		defer scheduled.Stop()
		heartbeats = scheduled
	}

	workerPool := worker.New(appLogger, jobQueue, evalService, heartbeats, &cfg.Worker)

	// -------------------------------------------------------------------------
	// 4. Observability Server
	// -------------------------------------------------------------------------

	obsServer := observability.NewServer(appLogger, &cfg.Observability,
		database.NewHealthChecker(dbPool),
		cache.NewHealthChecker(redisClient),
	)
	obsServer.Start()

	// -------------------------------------------------------------------------
	// 5. Run until shutdown signal
	// -------------------------------------------------------------------------

	appLogger.Info("worker started",
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.Bool("heartbeats_enabled", cfg.Heartbeat.Enabled),
	)

	// Blocks until the signal context is cancelled; in-flight jobs drain
	// before Run returns.
	workerPool.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("failed to shut down observability server", slog.String("error", err.Error()))
	}

	appLogger.Info("worker exited successfully")
	return nil
}
