package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nexio-platform/nexio/internal/app"
	"github.com/nexio-platform/nexio/internal/archive"
	archivehttp "github.com/nexio-platform/nexio/internal/archive/http"
	"github.com/nexio-platform/nexio/internal/auth"
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
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	sessionManager := shared.NewSessionManager(redisClient, "nexio_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	directoryRepo := directory.NewRepository(pool)
	directoryService := directory.NewService(directoryRepo)
	directoryHandler := directory.NewHandler(logger, directoryService)

	permissionRepo := permissions.NewRepository(pool)
	permissionCache := permissions.NewCache(redisClient, cfg.PermissionCacheTTL)
	evaluator := permissions.NewEvaluator(permissionRepo, permissionCache)
	permissionService := permissions.NewService(permissionRepo, evaluator, permissionCache, auditLogger, logger)
	permissionHandler := permissions.NewHandler(logger, permissionService, evaluator)
	authMiddleware := permissions.Middleware{Logger: logger}

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
	tokenStore := download.NewStore(pool, cfg.DownloadTokenTTL)
	archiveHandler := archivehttp.NewHandler(logger, archiveService, tokenStore)
	downloadHandler := download.NewHandler(logger, tokenStore, archiveService, auditLogger, metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		AuthHandler:        authHandler,
		DirectoryHandler:   directoryHandler,
		PermissionsHandler: permissionHandler,
		ArchiveHandler:     archiveHandler,
		DownloadHandler:    downloadHandler,
		JobHandler:         jobHandler,
		AuthMiddleware:     authMiddleware,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
