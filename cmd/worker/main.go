package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/civicdata/datastore/internal/config"
	"github.com/civicdata/datastore/internal/datastore"
	"github.com/civicdata/datastore/internal/importer"
	"github.com/civicdata/datastore/internal/jobstore"
	"github.com/civicdata/datastore/internal/localizer"
	"github.com/civicdata/datastore/internal/logging"
	"github.com/civicdata/datastore/internal/observability"
	"github.com/civicdata/datastore/internal/queue"
	"github.com/civicdata/datastore/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"queue_name", cfg.Queue.Name,
		"poll_interval", cfg.Queue.PollInterval,
		"cache_dir", cfg.Localizer.CacheDir,
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	jobs := jobstore.New(pool)
	if err := jobs.EnsureSchema(ctx); err != nil {
		slog.Error("failed to create job table", "error", err)
		os.Exit(1)
	}
	importQueue := queue.New(pool, cfg.Queue.Name)
	if err := importQueue.EnsureSchema(ctx); err != nil {
		slog.Error("failed to create queue table", "error", err)
		os.Exit(1)
	}
	if err := storage.EnsureMetaSchema(ctx, pool); err != nil {
		slog.Error("failed to create column metadata table", "error", err)
		os.Exit(1)
	}

	metrics, _, err := observability.NewMetrics(ctx)
	if err != nil {
		slog.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	files := localizer.New(cfg.Localizer.CacheDir, jobs, cfg.Localizer.HTTPTimeout, cfg.Localizer.RetryMax)
	factory := importer.NewFactory(pool, jobs, cfg.Import.BatchSize)
	service := datastore.NewService(files, factory, importQueue, jobs, metrics)

	worker := queue.NewWorker(importQueue, service, cfg.Queue.PollInterval)

	// Stop the worker on SIGINT/SIGTERM.
	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := worker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
