package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/nexio-platform/nexio/internal/app"
	"github.com/nexio-platform/nexio/internal/archive"
	"github.com/nexio-platform/nexio/internal/directory"
	"github.com/nexio-platform/nexio/internal/download"
	"github.com/nexio-platform/nexio/internal/observability"
	"github.com/nexio-platform/nexio/internal/permissions"
	"github.com/nexio-platform/nexio/internal/platform/cache"
	"github.com/nexio-platform/nexio/internal/platform/db"
	"github.com/nexio-platform/nexio/internal/shared"
	"github.com/nexio-platform/nexio/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	directoryRepo := directory.NewRepository(pool)
	directoryService := directory.NewService(directoryRepo)

	permissionRepo := permissions.NewRepository(pool)
	permissionCache := permissions.NewCache(redisClient, cfg.PermissionCacheTTL)
	evaluator := permissions.NewEvaluator(permissionRepo, permissionCache)

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	archiveRepo := archive.NewRepository(pool)
	archiveService := archive.NewService(archiveRepo, directoryService, evaluator, queueClient, auditLogger, logger)
	archiveBuilder := archive.NewBuilder(cfg.ArchiveStorageDir, logger)
	tokenStore := download.NewStore(pool, cfg.DownloadTokenTTL)

	buildJob := archive.NewBuildJob(archive.JobConfig{
		Service: archiveService,
		Builder: archiveBuilder,
		Tokens:  tokenStore,
		Metrics: metrics,
		Logger:  logger,
	})
	maintenance := archive.NewMaintenance(archive.MaintenanceConfig{
		Repository: archiveRepo,
		Builder:    archiveBuilder,
		Tokens:     tokenStore,
		Logger:     logger,
		Retention:  cfg.ArchiveRetention,
		Timeout:    cfg.ArchiveBuildTimeout,
	})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskArchiveBuild, Handler: buildJob.Handle},
			{Type: jobs.TaskArchiveSweep, Handler: maintenance.HandleSweep},
			{Type: jobs.TaskArchiveStale, Handler: maintenance.HandleStale},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: jobs.NewArchiveSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/10 * * * *", Task: jobs.NewArchiveStaleTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
