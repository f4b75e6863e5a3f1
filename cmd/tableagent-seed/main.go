package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/duckmesh/tableagent/internal/config"
	"github.com/duckmesh/tableagent/internal/dataset"
	"github.com/duckmesh/tableagent/internal/demo"
	"github.com/duckmesh/tableagent/internal/observability"
	s3store "github.com/duckmesh/tableagent/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("tableagent-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	seedCfg, err := demo.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		logger.Error("failed to load demo config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var targets demo.Targets
	if seedCfg.Upload {
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		targets.Store = store
	}
	if seedCfg.PostgresTable != "" {
		db, err := dataset.OpenPostgres(ctx, dataset.PostgresConfig{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		targets.DB = db
	}

	seeder, err := demo.NewSeeder(seedCfg, logger, targets)
	if err != nil {
		logger.Error("failed to initialize seeder", slog.Any("error", err))
		os.Exit(1)
	}
	summary, err := seeder.Run(ctx)
	if err != nil {
		logger.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo dataset ready",
		slog.Int("rows", summary.Rows),
		slog.Int64("bytes", summary.Bytes),
		slog.String("path", summary.Path),
		slog.String("key", summary.Key),
		slog.String("postgres_table", summary.PostgresTable),
	)
}
