package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/civicdata/datastore/internal/config"
	"github.com/civicdata/datastore/internal/datastore"
	"github.com/civicdata/datastore/internal/importer"
	"github.com/civicdata/datastore/internal/jobstore"
	"github.com/civicdata/datastore/internal/localizer"
	"github.com/civicdata/datastore/internal/logging"
	"github.com/civicdata/datastore/internal/observability"
	"github.com/civicdata/datastore/internal/queue"
	"github.com/civicdata/datastore/internal/storage"
	"github.com/civicdata/datastore/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"queue_name", cfg.Queue.Name,
		"cache_dir", cfg.Localizer.CacheDir,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	// Create tables the services depend on
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

	// Metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		slog.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	// Wire the service
	files := localizer.New(cfg.Localizer.CacheDir, jobs, cfg.Localizer.HTTPTimeout, cfg.Localizer.RetryMax)
	factory := importer.NewFactory(pool, jobs, cfg.Import.BatchSize)
	service := datastore.NewService(files, factory, importQueue, jobs, metrics)

	// Create server with config
	server := web.NewServer(service, files, metricsHandler, cfg.Server)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	// Report queue depth periodically
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				depth, err := importQueue.Depth(jobCtx)
				if err != nil {
					slog.Debug("queue depth check failed", "error", err)
					continue
				}
				metrics.RecordQueueDepth(jobCtx, depth)
			}
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
