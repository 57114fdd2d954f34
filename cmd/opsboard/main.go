package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/opsboard/opsboard/internal/app"
	"github.com/opsboard/opsboard/internal/observability"
	"github.com/opsboard/opsboard/internal/permissions"
	"github.com/opsboard/opsboard/internal/platform/cache"
	"github.com/opsboard/opsboard/internal/platform/db"
	"github.com/opsboard/opsboard/internal/shared"
	"github.com/opsboard/opsboard/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	permMetrics := permissions.NewMetrics(metrics.Registerer())

	store := permissions.NewPGStore(dbpool)
	directory := permissions.NewDirectory()
	notifier := permissions.NewNotifier(redisClient, cfg.PermissionsChannel, logger)
	manager := permissions.NewManager(store, directory, permissions.ManagerConfig{
		Audit:     shared.NewAuditLogger(dbpool),
		Publisher: notifier,
		Metrics:   permMetrics,
		Logger:    logger,
	})

	if err := manager.Refresh(ctx); err != nil {
		logger.Warn("initial permissions load", slog.Any("error", err))
	}
	err = notifier.Listen(ctx, func(ctx context.Context, userID *uuid.UUID) {
		if err := manager.Refresh(ctx); err != nil {
			logger.Warn("permissions invalidation refresh", slog.Any("error", err))
		}
	})
	if err != nil {
		logger.Warn("permissions invalidation subscribe", slog.Any("error", err))
	}

	gate := permissions.Middleware{Manager: manager, Metrics: permMetrics, Logger: logger}
	permissionsHandler := permissions.NewHandler(logger, manager, gate)

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
		PermissionsHandler: permissionsHandler,
		Gate:               gate,
		Directory:          directory,
		JobHandler:         jobHandler,
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
