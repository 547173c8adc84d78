package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"docshelf/internal/config"
	"docshelf/internal/database"
	"docshelf/internal/database/migration"
	"docshelf/internal/logger"
	"docshelf/internal/otel"
	"docshelf/internal/repository"
	"docshelf/internal/repository/postgres"
	"docshelf/internal/repository/sqlite"
	"docshelf/internal/service"
	"docshelf/internal/storage"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), configPath)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log, cfg.Location())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		log.Error("tracing_init_failed", "error", err)
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing_shutdown_failed", "error", err)
		}
	}()

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Error("database_connect_failed", "driver", cfg.Database.Driver, "error", err)
		return err
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, cfg.Database.Driver, log); err != nil {
		return err
	}

	store, err := storage.New(cfg.Storage, "http://"+cfg.AppHost, log)
	if err != nil {
		log.Error("storage_init_failed", "backend", cfg.Storage.Backend, "error", err)
		return err
	}

	repo, err := newRepository(cfg.Database.Driver, db)
	if err != nil {
		return err
	}

	docSvc := service.NewDocumentService(store, repo, service.Options{
		MaxUploadBytes:    cfg.Upload.MaxUploadBytes(),
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		Timeout:           cfg.OperationTimeoutDuration(),
		Logger:            log,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, cfg.Database.Driver),
	)

	var blobs storage.Storage
	if cfg.Storage.Backend == config.BackendFilesystem {
		blobs = store
	}

	app, err := newApp(cfg, db, docSvc, blobs, log, reg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("server_starting", "addr", addr, "storage_backend", cfg.Storage.Backend, "db_driver", cfg.Database.Driver)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server_failed", "error", err)
		}
		return err
	case <-ctx.Done():
	}

	log.Info("server_stopping")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Error("server_shutdown_failed", "error", err)
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newRepository(driver string, db *sql.DB) (repository.DocumentRepository, error) {
	switch driver {
	case config.DriverPostgres:
		return postgres.NewDocumentPostgres(db), nil
	case config.DriverSQLite:
		return sqlite.NewDocumentSQLite(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
