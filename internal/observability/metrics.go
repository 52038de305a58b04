package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the analysis service.
// Metrics are organized by subsystem: ingestion, gaps, analyses, batches,
// budget, mentions, and LLM operations. All counters and histograms are
// registered via promauto against the default Prometheus registry.
type Metrics struct {
	// PapersIngested counts papers inserted during ingestion, labeled by category.
	PapersIngested *prometheus.CounterVec

	// PapersDuplicate counts papers skipped because the external ID already exists.
	PapersDuplicate prometheus.Counter

	// IngestionRunsStarted counts ingestion runs started, labeled by kind (recent, backfill).
	IngestionRunsStarted *prometheus.CounterVec

	// IngestionRunsFailed counts ingestion runs that ended in failure, labeled by kind.
	IngestionRunsFailed *prometheus.CounterVec

	// IngestionFetchErrors counts per-category fetch failures inside a run.
	IngestionFetchErrors *prometheus.CounterVec

	// IngestionRunDuration observes end-to-end ingestion run duration in seconds, labeled by kind.
	IngestionRunDuration *prometheus.HistogramVec

	// GapDaysFlagged counts weekdays flagged as below the coverage threshold.
	GapDaysFlagged prometheus.Counter

	// GapBackfillsEnqueued counts backfill jobs enqueued by the gap sweep.
	GapBackfillsEnqueued prometheus.Counter

	// AnalysesCompleted counts finished analyses, labeled by version and status.
	AnalysesCompleted *prometheus.CounterVec

	// AnalysesFailed counts analyses that failed permanently, labeled by version.
	AnalysesFailed *prometheus.CounterVec

	// AnalysesSkipped counts analyses skipped because a result already existed, labeled by version.
	AnalysesSkipped *prometheus.CounterVec

	// AnalysisRetries counts validation retries with error feedback, labeled by version.
	AnalysisRetries *prometheus.CounterVec

	// AnalysisDuration observes single-paper analysis duration in seconds, labeled by version.
	AnalysisDuration *prometheus.HistogramVec

	// BatchesStarted counts analysis batches started, labeled by version.
	BatchesStarted *prometheus.CounterVec

	// BatchesCompleted counts analysis batches that reached completion, labeled by version.
	BatchesCompleted *prometheus.CounterVec

	// BudgetRejections counts batch starts rejected by a budget ceiling, labeled by window.
	BudgetRejections *prometheus.CounterVec

	// BudgetSpendCents counts LLM spend recorded against the budget, in cents.
	BudgetSpendCents prometheus.Counter

	// MentionSearches counts mention searches, labeled by platform and result (ok, failed).
	MentionSearches *prometheus.CounterVec

	// MentionsFound counts mentions discovered, labeled by platform.
	MentionsFound *prometheus.CounterVec

	// LLMRequestsTotal counts LLM API requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by operation, model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds, labeled by operation and model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed by LLM operations, labeled by operation, model, and token type.
	LLMTokensUsed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Ingestion
		PapersIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_ingested_total",
			Help:      "Total number of papers inserted during ingestion by category",
		}, []string{"category"}),
		PapersDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_duplicate_total",
			Help:      "Total number of papers skipped as already-known duplicates",
		}),
		IngestionRunsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_runs_started_total",
			Help:      "Total number of ingestion runs started by kind",
		}, []string{"kind"}),
		IngestionRunsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_runs_failed_total",
			Help:      "Total number of ingestion runs that failed by kind",
		}, []string{"kind"}),
		IngestionFetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_fetch_errors_total",
			Help:      "Total number of per-category fetch failures during ingestion",
		}, []string{"category"}),
		IngestionRunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_run_duration_seconds",
			Help:      "Duration of ingestion runs in seconds by kind",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}, []string{"kind"}),

		// Gaps
		GapDaysFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gap_days_flagged_total",
			Help:      "Total number of weekdays flagged below the coverage threshold",
		}),
		GapBackfillsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gap_backfills_enqueued_total",
			Help:      "Total number of backfill jobs enqueued by gap sweeps",
		}),

		// Analyses
		AnalysesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_completed_total",
			Help:      "Total number of analyses completed by version and status",
		}, []string{"version", "status"}),
		AnalysesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_failed_total",
			Help:      "Total number of analyses that failed permanently by version",
		}, []string{"version"}),
		AnalysesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_skipped_total",
			Help:      "Total number of analyses skipped because a result already existed",
		}, []string{"version"}),
		AnalysisRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_retries_total",
			Help:      "Total number of validation retries with error feedback",
		}, []string{"version"}),
		AnalysisDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of single-paper analyses in seconds by version",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"version"}),

		// Batches
		BatchesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_started_total",
			Help:      "Total number of analysis batches started by version",
		}, []string{"version"}),
		BatchesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_completed_total",
			Help:      "Total number of analysis batches completed by version",
		}, []string{"version"}),

		// Budget
		BudgetRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_rejections_total",
			Help:      "Total number of batch starts rejected by a budget ceiling",
		}, []string{"window"}),
		BudgetSpendCents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_spend_cents_total",
			Help:      "Total LLM spend recorded against the budget in cents",
		}),

		// Mentions
		MentionSearches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mention_searches_total",
			Help:      "Total number of mention searches by platform and result",
		}, []string{"platform", "result"}),
		MentionsFound: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mentions_found_total",
			Help:      "Total number of mentions discovered by platform",
		}, []string{"platform"}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests by operation",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM requests by operation",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation", "model"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used by LLM operations",
		}, []string{"operation", "model", "token_type"}),
	}
}

// RecordPapersIngested records papers inserted for a category.
func (m *Metrics) RecordPapersIngested(category string, count int) {
	m.PapersIngested.WithLabelValues(category).Add(float64(count))
}

// RecordPaperDuplicates records papers skipped as duplicates.
func (m *Metrics) RecordPaperDuplicates(count int) {
	m.PapersDuplicate.Add(float64(count))
}

// RecordIngestionRunStarted records that an ingestion run has started.
func (m *Metrics) RecordIngestionRunStarted(kind string) {
	m.IngestionRunsStarted.WithLabelValues(kind).Inc()
}

// RecordIngestionRunCompleted records a finished ingestion run.
func (m *Metrics) RecordIngestionRunCompleted(kind string, durationSeconds float64) {
	m.IngestionRunDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordIngestionRunFailed records a failed ingestion run.
func (m *Metrics) RecordIngestionRunFailed(kind string, durationSeconds float64) {
	m.IngestionRunsFailed.WithLabelValues(kind).Inc()
	m.IngestionRunDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordIngestionFetchError records a per-category fetch failure.
func (m *Metrics) RecordIngestionFetchError(category string) {
	m.IngestionFetchErrors.WithLabelValues(category).Inc()
}

// RecordGapSweep records the outcome of a gap sweep.
func (m *Metrics) RecordGapSweep(daysFlagged, backfillsEnqueued int) {
	m.GapDaysFlagged.Add(float64(daysFlagged))
	m.GapBackfillsEnqueued.Add(float64(backfillsEnqueued))
}

// RecordAnalysisCompleted records a finished analysis with its terminal status.
func (m *Metrics) RecordAnalysisCompleted(version, status string, durationSeconds float64) {
	m.AnalysesCompleted.WithLabelValues(version, status).Inc()
	m.AnalysisDuration.WithLabelValues(version).Observe(durationSeconds)
}

// RecordAnalysisFailed records an analysis that failed permanently.
func (m *Metrics) RecordAnalysisFailed(version string) {
	m.AnalysesFailed.WithLabelValues(version).Inc()
}

// RecordAnalysisSkipped records an analysis skipped on the idempotency check.
func (m *Metrics) RecordAnalysisSkipped(version string) {
	m.AnalysesSkipped.WithLabelValues(version).Inc()
}

// RecordAnalysisRetry records a validation retry with error feedback.
func (m *Metrics) RecordAnalysisRetry(version string) {
	m.AnalysisRetries.WithLabelValues(version).Inc()
}

// RecordBatchStarted records that an analysis batch has started.
func (m *Metrics) RecordBatchStarted(version string) {
	m.BatchesStarted.WithLabelValues(version).Inc()
}

// RecordBatchCompleted records that an analysis batch has completed.
func (m *Metrics) RecordBatchCompleted(version string) {
	m.BatchesCompleted.WithLabelValues(version).Inc()
}

// RecordBudgetRejection records a batch start rejected by a budget ceiling.
func (m *Metrics) RecordBudgetRejection(window string) {
	m.BudgetRejections.WithLabelValues(window).Inc()
}

// RecordBudgetSpend records LLM spend against the budget.
func (m *Metrics) RecordBudgetSpend(cents int64) {
	m.BudgetSpendCents.Add(float64(cents))
}

// RecordMentionSearch records a mention search outcome for a platform.
func (m *Metrics) RecordMentionSearch(platform string, found int, failed bool) {
	result := "ok"
	if failed {
		result = "failed"
	}
	m.MentionSearches.WithLabelValues(platform, result).Inc()
	if found > 0 {
		m.MentionsFound.WithLabelValues(platform).Add(float64(found))
	}
}

// RecordLLMRequest records an LLM request.
func (m *Metrics) RecordLLMRequest(operation, model string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
	m.LLMTokensUsed.WithLabelValues(operation, model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(operation, model, "output").Add(float64(outputTokens))
}

// RecordLLMRequestFailed records a failed LLM request.
func (m *Metrics) RecordLLMRequestFailed(operation, model, errorType string) {
	m.LLMRequestsFailed.WithLabelValues(operation, model, errorType).Inc()
}
