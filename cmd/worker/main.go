// Package main is the entry point for the analysis worker process. It runs
// the supervisor, which owns one Temporal worker per job family plus the
// recurring ingest and gap-sweep schedules.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paperpulse/analysis-service/internal/analysis"
	"github.com/paperpulse/analysis-service/internal/analysisv3"
	"github.com/paperpulse/analysis-service/internal/budget"
	"github.com/paperpulse/analysis-service/internal/config"
	"github.com/paperpulse/analysis-service/internal/configstore"
	"github.com/paperpulse/analysis-service/internal/database"
	"github.com/paperpulse/analysis-service/internal/events"
	"github.com/paperpulse/analysis-service/internal/gaps"
	"github.com/paperpulse/analysis-service/internal/llm"
	"github.com/paperpulse/analysis-service/internal/mentions"
	"github.com/paperpulse/analysis-service/internal/observability"
	"github.com/paperpulse/analysis-service/internal/papersources/arxiv"
	"github.com/paperpulse/analysis-service/internal/repository"
	"github.com/paperpulse/analysis-service/internal/supervisor"
	"github.com/paperpulse/analysis-service/internal/temporal"
	"github.com/paperpulse/analysis-service/internal/temporal/activities"
	"github.com/paperpulse/analysis-service/internal/temporal/workflows"
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
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("analysis-service worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	paperRepo := repository.NewPgPaperRepository(db)
	ingestRepo := repository.NewPgIngestionRepository(db)
	batchRepo := repository.NewPgBatchRepository(db)
	analysisRepo := repository.NewPgAnalysisRepository(db)
	v3Repo := repository.NewPgV3AnalysisRepository(db)
	budgetRepo := repository.NewPgBudgetRepository(db)

	metrics := observability.NewMetrics("paperpulse")

	store := configstore.NewStore(db, configstore.Defaults{
		AIEnabled:          cfg.Runtime.AIEnabledDefault,
		V3AutoEnabled:      cfg.Runtime.V3AutoEnabledDefault,
		DailyBudgetCents:   cfg.Runtime.DailyBudgetCents,
		MonthlyBudgetCents: cfg.Runtime.MonthlyBudgetCents,
	}, cfg.Runtime.CacheTTL, nil, logger)
	listener := configstore.NewListener(db.Pool(), logger)

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
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka emitter enabled")
	}

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
	logger.Info().Str("provider", llmClient.Provider()).Str("model", llmClient.Model()).Msg("LLM client created")

	arxivClient := arxiv.New(arxiv.Config{
		BaseURL:    cfg.ArXiv.BaseURL,
		Timeout:    cfg.ArXiv.Timeout,
		RateLimit:  cfg.ArXiv.RateLimit,
		MaxResults: cfg.ArXiv.MaxResults,
	})

	detector := gaps.NewDetector(paperRepo, gaps.Config{
		WindowDays: cfg.Gaps.WindowDays,
		Threshold:  cfg.Gaps.MinPapersPerDay,
	}, nil, logger)

	budgetCtl := budget.NewController(store, budgetRepo, nil, metrics, logger)

	v1Analyzer := analysis.NewAnalyzer(paperRepo, analysisRepo, llmClient, cfg.Analysis.V1SchemaVersion, metrics, logger)
	summarizer := analysis.NewSummarizer(paperRepo, llmClient, metrics, logger)
	v3Analyzer := analysisv3.NewAnalyzer(paperRepo, v3Repo, llmClient, cfg.Analysis.V3SchemaVersion, metrics, logger)

	socialAgg := mentions.NewAggregator([]mentions.Searcher{
		mentions.NewSocialClient(mentions.SocialConfig{
			BaseURL: cfg.Mentions.SocialBaseURL,
			APIKey:  cfg.Mentions.SocialAPIKey,
			Timeout: cfg.Mentions.Timeout,
		}),
	}, metrics, logger)
	newsAgg := mentions.NewAggregator([]mentions.Searcher{
		mentions.NewNewsClient(mentions.NewsConfig{
			BaseURL: cfg.Mentions.NewsBaseURL,
			APIKey:  cfg.Mentions.NewsAPIKey,
			Timeout: cfg.Mentions.Timeout,
		}),
	}, metrics, logger)

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

	ingestionActs := activities.NewIngestionActivities(arxivClient, paperRepo, ingestRepo, emitter, metrics)
	enqueueActs := activities.NewEnqueueActivities(enqueuer, emitter, metrics, cfg.Mentions.EnqueueStagger)
	gapActs := activities.NewGapActivities(detector)
	analysisActs := activities.NewAnalysisActivities(v1Analyzer, summarizer, emitter)
	v3Acts := activities.NewV3Activities(v3Analyzer, batchRepo, budgetCtl, cfg.Analysis.EstimatedCostCentsPerPaper, emitter, metrics)
	mentionActs := activities.NewMentionActivities(socialAgg, newsAgg)

	registrations := []temporal.Registration{
		{
			Queue:      temporal.QueueFetch,
			Workflows:  []interface{}{workflows.IngestRecentWorkflow, workflows.GapSweepWorkflow},
			Activities: []interface{}{ingestionActs, gapActs, enqueueActs},
		},
		{
			Queue:      temporal.QueueBackfill,
			Workflows:  []interface{}{workflows.IngestDateWorkflow},
			Activities: []interface{}{ingestionActs, enqueueActs},
		},
		{
			Queue:      temporal.QueueSummarize,
			Workflows:  []interface{}{workflows.SummaryWorkflow},
			Activities: []interface{}{analysisActs},
		},
		{
			Queue:      temporal.QueueAnalyzeV1,
			Workflows:  []interface{}{workflows.AnalyzeV1Workflow},
			Activities: []interface{}{analysisActs},
		},
		{
			Queue:      temporal.QueueAnalyzeV3,
			Workflows:  []interface{}{workflows.V3BatchWorkflow},
			Activities: []interface{}{v3Acts},
		},
		{
			Queue:      temporal.QueueSocialMonitor,
			Workflows:  []interface{}{workflows.SocialMonitorWorkflow},
			Activities: []interface{}{mentionActs},
		},
		{
			Queue:      temporal.QueueNewsFetch,
			Workflows:  []interface{}{workflows.NewsFetchWorkflow},
			Activities: []interface{}{mentionActs},
		},
	}

	sup, err := supervisor.New(cfg, store, listener, temporalClient, enqueuer, registrations, logger)
	if err != nil {
		return fmt.Errorf("create supervisor: %w", err)
	}

	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
			Handler: metricsMux,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer metricsServer.Close()
		logger.Info().Str("address", metricsServer.Addr).Msg("metrics server started")
	}

	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	logger.Info().Msg("worker stopped")
	return nil
}
