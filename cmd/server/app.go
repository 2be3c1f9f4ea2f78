package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/voxlate/voxlate-api/internal/config"
	"github.com/voxlate/voxlate-api/internal/dispatch"
	"github.com/voxlate/voxlate-api/internal/generation"
	"github.com/voxlate/voxlate-api/internal/pipeline"
	"github.com/voxlate/voxlate-api/internal/platform/gemini"
	"github.com/voxlate/voxlate-api/internal/platform/postgres"
	redisplatform "github.com/voxlate/voxlate-api/internal/platform/redis"
	"github.com/voxlate/voxlate-api/internal/provider"
	"github.com/voxlate/voxlate-api/internal/service"
	"github.com/voxlate/voxlate-api/internal/storage"
	"github.com/voxlate/voxlate-api/internal/store"
	"github.com/voxlate/voxlate-api/internal/watchdog"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger *slog.Logger
	db     *sql.DB

	// Redis and queue clients
	redisClient *goredis.Client
	asynqClient *asynq.Client
	asynqServer *asynq.Server

	// Stores (using interfaces for proper abstraction)
	taskStore   store.TaskStore
	ledgerStore store.LedgerStore
	resultCache store.ResultCache

	// External collaborators
	fetcher    *provider.FallbackOrchestrator
	translator generation.Translator
	mediaStore storage.MediaStore

	// Task execution
	executor   *pipeline.Executor
	watchdog   *watchdog.Watchdog
	dispatcher *dispatch.Dispatcher

	// Service layer
	submitService *service.SubmitService
	statusService *service.StatusService
	creditService *service.CreditService
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger, and
// database connection that must be established before application
// initialization.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	app.redisClient = goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := app.redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// Stores
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)
	app.ledgerStore = postgres.NewPostgresLedgerStore(db, logger)
	app.resultCache = redisplatform.NewResultCache(app.redisClient, logger)

	// Extraction providers with fallback
	primary := provider.NewHTTPClient(cfg.Providers.Primary)
	backup := provider.NewHTTPClient(cfg.Providers.Backup)
	app.fetcher = provider.NewFallbackOrchestrator(
		primary, backup,
		time.Duration(cfg.Providers.Primary.TimeoutSeconds)*time.Second,
		time.Duration(cfg.Providers.Backup.TimeoutSeconds)*time.Second,
		logger,
	)
	logger.Info("extraction providers initialized",
		slog.String("primary", primary.Name()),
		slog.String("backup", backup.Name()))

	// Translation
	translator, err := gemini.NewGeminiTranslator(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize translator: %w", err)
	}
	app.translator = translator

	// Optional media re-hosting. A nil store means the pipeline keeps
	// provider URLs with a short expiry.
	if mediaStore := storage.NewHTTPMediaStore(cfg.Storage); mediaStore != nil {
		app.mediaStore = mediaStore
		logger.Info("media storage initialized", slog.String("base_url", cfg.Storage.BaseURL))
	} else {
		logger.Warn("media storage not configured, provider URLs will be served directly")
	}

	// Pipeline and watchdog
	refunder := store.NewTxRefunder(db, app.ledgerStore)
	app.executor = pipeline.NewExecutor(
		app.taskStore, refunder, app.resultCache,
		app.fetcher, app.translator, app.mediaStore, logger,
	)
	app.watchdog = watchdog.New(
		app.taskStore, refunder,
		time.Duration(cfg.Watchdog.StaleAfterSeconds)*time.Second, logger,
	)

	// Dispatch strategy chain, in priority order. A long-lived server has
	// no post-response continuation mechanism, so the first tier is
	// registered without a hook and the chain falls through to the queue.
	if cfg.Dispatch.QueueEnabled {
		app.asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	app.dispatcher = dispatch.NewDispatcher(logger,
		dispatch.NewContinuationStrategy(nil),
		dispatch.NewQueueStrategy(app.asynqClient, cfg.Dispatch.QueueMaxRetry, logger),
		dispatch.NewWebhookStrategy(cfg.Dispatch.TriggerURL, cfg.Dispatch.TriggerSecret),
		dispatch.NewTimerStrategy(app.executor, 100*time.Millisecond, logger),
	)

	// Service layer
	planPolicy := service.NewStaticPlanPolicy(cfg.Plan)
	app.submitService = service.NewSubmitService(
		store.NewSQLTxManager(db), app.taskStore, app.ledgerStore, planPolicy,
		app.dispatcher, app.watchdog, logger,
	)
	app.statusService = service.NewStatusService(app.taskStore, app.watchdog, logger)
	app.creditService = service.NewCreditService(app.ledgerStore, logger)

	logger.Info("application initialized")
	return app, nil
}

// cleanup releases resources held by the application. Called after the
// HTTP server has drained.
func (app *application) cleanup() {
	if app.asynqServer != nil {
		app.asynqServer.Shutdown()
	}
	if app.asynqClient != nil {
		if err := app.asynqClient.Close(); err != nil {
			app.logger.Error("failed to close queue client", slog.String("error", err.Error()))
		}
	}
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("failed to close redis client", slog.String("error", err.Error()))
		}
	}
}
