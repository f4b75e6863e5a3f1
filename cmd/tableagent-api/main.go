package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duckmesh/tableagent/internal/agent"
	"github.com/duckmesh/tableagent/internal/api"
	"github.com/duckmesh/tableagent/internal/auth"
	"github.com/duckmesh/tableagent/internal/config"
	"github.com/duckmesh/tableagent/internal/dataset"
	"github.com/duckmesh/tableagent/internal/observability"
	"github.com/duckmesh/tableagent/internal/query"
	s3store "github.com/duckmesh/tableagent/internal/storage/s3"
	"github.com/duckmesh/tableagent/internal/table"
	"github.com/duckmesh/tableagent/internal/tools"
)

func main() {
	cfg, err := config.LoadFromEnv("tableagent-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	tbl, source, err := loadDataset(cfg, logger)
	if err != nil {
		logger.Error("failed to load dataset", slog.Any("error", err))
		os.Exit(1)
	}
	defer source.close()
	observability.SetDatasetShape(tbl.NumRows(), tbl.NumColumns())

	engine, err := query.NewEngine(tbl)
	if err != nil {
		logger.Error("failed to initialize query engine", slog.Any("error", err))
		os.Exit(1)
	}
	toolbox, err := tools.DataTools(tbl, engine)
	if err != nil {
		logger.Error("failed to register data tools", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:           logger,
		Toolbox:          toolbox,
		Readiness:        api.CombineReadinessChecks(api.CheckDatasetLoaded(toolbox), source.check),
		ReadinessTimeout: cfg.HTTP.ReadinessTimeout,
	}
	if cfg.Agent.Enabled {
		runner, err := buildAgent(cfg, toolbox, logger)
		if err != nil {
			logger.Error("failed to initialize agent", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Agent = runner
		deps.AskTimeout = cfg.Agent.RequestTimeout
		deps.AskLimiter = api.NewRateLimiter(cfg.Agent.RateLimit, cfg.Agent.RateBurst)
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	writeTimeout := cfg.HTTP.WriteTimeout
	if cfg.Agent.Enabled && writeTimeout > 0 && writeTimeout <= cfg.Agent.RequestTimeout {
		// /v1/ask must be able to answer with its own timeout error.
		writeTimeout = cfg.Agent.RequestTimeout + 5*time.Second
	}
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.Bool("agent_enabled", cfg.Agent.Enabled),
			slog.Bool("auth_required", cfg.Auth.Required),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// datasetSource is what stays behind after the load: a readiness check for
// the origin of the data and a cleanup hook.
type datasetSource struct {
	check api.ReadinessCheck
	close func()
}

func loadDataset(cfg config.Config, logger *slog.Logger) (*table.Table, datasetSource, error) {
	source := datasetSource{close: func() {}}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Dataset.LoadTimeout)
	defer cancel()

	opts := dataset.Options{
		Source:         dataset.Source(cfg.Dataset.Source),
		Location:       cfg.Dataset.Location,
		Format:         dataset.Format(cfg.Dataset.Format),
		MaxRows:        cfg.Dataset.MaxRows,
		MaxObjectBytes: cfg.Dataset.MaxObjectBytes,
	}
	switch opts.Source {
	case dataset.SourceS3:
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
			return nil, source, fmt.Errorf("initialize object store: %w", err)
		}
		logger.Info("loading dataset from object store", slog.String("uri", store.URI(cfg.Dataset.Location)))
		opts.Store = store
		source.check = api.CheckObject(store, cfg.Dataset.Location)
	case dataset.SourcePostgres:
		db, err := dataset.OpenPostgres(ctx, dataset.PostgresConfig{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, source, err
		}
		opts.DB = db
		source.check = api.CheckDatabase(db)
		source.close = func() { _ = db.Close() }
	}
	tbl, err := dataset.Load(ctx, opts, logger)
	if err != nil {
		source.close()
		return nil, datasetSource{}, err
	}
	return tbl, source, nil
}

func buildAgent(cfg config.Config, toolbox *tools.Toolbox, logger *slog.Logger) (*agent.Runner, error) {
	model, err := agent.NewOpenAIModel(agent.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("agent enabled",
		slog.String("model", model.Name()),
		slog.Bool("delegate", cfg.Agent.Delegate),
		slog.Int("max_calls", cfg.Agent.MaxCalls),
	)
	return agent.Build(model, toolbox, agent.Options{
		Delegate:           cfg.Agent.Delegate,
		GuardedTool:        cfg.Agent.GuardedTool,
		MaxCalls:           cfg.Agent.MaxCalls,
		MaxTurns:           cfg.Agent.MaxTurns,
		MaxConcurrentTools: cfg.Agent.MaxConcurrentTools,
	}, logger)
}
