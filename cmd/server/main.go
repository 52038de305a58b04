// Package main is the entry point for the admin HTTP server process.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paperpulse/analysis-service/internal/analysis"
	"github.com/paperpulse/analysis-service/internal/budget"
	"github.com/paperpulse/analysis-service/internal/config"
	"github.com/paperpulse/analysis-service/internal/configstore"
	"github.com/paperpulse/analysis-service/internal/database"
	"github.com/paperpulse/analysis-service/internal/events"
	"github.com/paperpulse/analysis-service/internal/llm"
	"github.com/paperpulse/analysis-service/internal/observability"
	"github.com/paperpulse/analysis-service/internal/repository"
	httpserver "github.com/paperpulse/analysis-service/internal/server/http"
	"github.com/paperpulse/analysis-service/internal/temporal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("analysis-service server starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	paperRepo := repository.NewPgPaperRepository(db)
	batchRepo := repository.NewPgBatchRepository(db)
	ingestRepo := repository.NewPgIngestionRepository(db)
	analysisRepo := repository.NewPgAnalysisRepository(db)
	budgetRepo := repository.NewPgBudgetRepository(db)

	metrics := observability.NewMetrics("paperpulse")

	store := configstore.NewStore(db, configstore.Defaults{
		AIEnabled:          cfg.Runtime.AIEnabledDefault,
		V3AutoEnabled:      cfg.Runtime.V3AutoEnabledDefault,
		DailyBudgetCents:   cfg.Runtime.DailyBudgetCents,
		MonthlyBudgetCents: cfg.Runtime.MonthlyBudgetCents,
	}, cfg.Runtime.CacheTTL, nil, logger)

	budgetCtl := budget.NewController(store, budgetRepo, nil, metrics, logger)

	var emitter events.Emitter = events.NopEmitter{}
	if cfg.Kafka.Enabled {
		kafkaEmitter := events.NewKafkaEmitter(events.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, logger)
		defer func() {
			if err := kafkaEmitter.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close event emitter")
			}
		}()
		emitter = kafkaEmitter
	}

	// The test-analysis endpoint runs v1 inline, so the server process
	// carries its own LLM client.
	llmClient, err := llm.NewClient(llm.FactoryConfig{
		Provider:  cfg.LLM.Provider,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			Model:   cfg.LLM.OpenAI.Model,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  cfg.LLM.Anthropic.APIKey,
			Model:   cfg.LLM.Anthropic.Model,
			BaseURL: cfg.LLM.Anthropic.BaseURL,
		},
	})
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	analyzer := analysis.NewAnalyzer(paperRepo, analysisRepo, llmClient, cfg.Analysis.V1SchemaVersion, metrics, logger)

	temporalClient, err := temporal.NewClient(cfg.Temporal, logger)
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	defer temporalClient.Close()
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	enqueuer := temporal.NewEnqueuer(temporalClient, metrics, logger)

	srv := httpserver.NewServer(httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, httpserver.Deps{
		Papers:    paperRepo,
		Batches:   batchRepo,
		Runs:      ingestRepo,
		Store:     store,
		Budget:    budgetCtl,
		Analyzer:  analyzer,
		Jobs:      enqueuer,
		Locks:     configstore.NewLockManager(db),
		DB:        db,
		Emitter:   emitter,
		Metrics:   metrics,
		Ingestion: cfg.Ingestion,
		Analysis:  cfg.Analysis,
		Gaps:      cfg.Gaps,
	}, logger)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
			Handler: metricsMux,
		}
	}

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	if metricsServer != nil {
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		logger.Info().Str("address", metricsServer.Addr).Msg("metrics server started")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}
	logger.Info().Msg("server stopped")
	return nil
}
