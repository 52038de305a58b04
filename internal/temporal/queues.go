package temporal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
)

// Task queues, one per job family. Each family has its own worker, retry
// policy, and rate limits, so pausing or throttling one never affects the
// others.
const (
	QueueFetch         = "fetch"
	QueueBackfill      = "backfill"
	QueueSummarize     = "summarize"
	QueueAnalyzeV1     = "analyze-v1"
	QueueAnalyzeV3     = "analyze-v3"
	QueueSocialMonitor = "social-monitor"
	QueueNewsFetch     = "news-fetch"
)

// AllQueues lists every task queue the supervisor runs a worker for.
func AllQueues() []string {
	return []string{
		QueueFetch,
		QueueBackfill,
		QueueSummarize,
		QueueAnalyzeV1,
		QueueAnalyzeV3,
		QueueSocialMonitor,
		QueueNewsFetch,
	}
}

// AIGatedQueues lists the families paused and resumed by the global AI
// toggle. analyze-v3 is deliberately absent: it is gated by its own
// auto-enable flag and the budget controller.
func AIGatedQueues() []string {
	return []string{QueueSummarize, QueueAnalyzeV1}
}

// Stable IDs for the supervisor's recurring cron registrations. A restarted
// supervisor re-registering these IDs is absorbed as a duplicate.
const (
	CronDailyIngestID = "cron-daily-ingest"
	CronGapSweepID    = "cron-gap-sweep"
)

// Deterministic workflow IDs double as idempotency keys: while one instance
// of an ID is pending or running, a second enqueue of the same ID is a
// silent no-op. Dates use the ISO day so repeated sweeps converge on the
// same IDs.

// IngestDateWorkflowID keys a backfill ingest of one published date.
func IngestDateWorkflowID(date time.Time) string {
	return "ingest-date-" + date.UTC().Format("2006-01-02")
}

// DailyIngestWorkflowID keys the scheduled daily recent fetch.
func DailyIngestWorkflowID(date time.Time) string {
	return "daily-ingest-" + date.UTC().Format("2006-01-02")
}

// GapSweepWorkflowID keys one day's gap-detection sweep.
func GapSweepWorkflowID(date time.Time) string {
	return "gap-sweep-" + date.UTC().Format("2006-01-02")
}

// SocialMonitorWorkflowID keys the social sweep for one paper.
func SocialMonitorWorkflowID(externalID string) string {
	return "social-" + externalID
}

// NewsFetchWorkflowID keys the news sweep for one paper.
func NewsFetchWorkflowID(externalID string) string {
	return "news-" + externalID
}

// SummaryWorkflowID keys the short-summary job for one paper.
func SummaryWorkflowID(paperID uuid.UUID) string {
	return "summary-" + paperID.String()
}

// AnalysisV1WorkflowID keys the v1 analysis job for one paper.
func AnalysisV1WorkflowID(paperID uuid.UUID) string {
	return "analysis-v1-" + paperID.String()
}

// V3BatchWorkflowID keys one v3 batch run.
func V3BatchWorkflowID(batchID uuid.UUID) string {
	return "v3-batch-" + batchID.String()
}

// QueuePolicy bundles one family's retry policy and throughput limits.
type QueuePolicy struct {
	// Retry applies to the family's activities.
	Retry *temporal.RetryPolicy

	// ActivitiesPerSecond is the worker-wide task queue rate limit. Zero
	// means unlimited.
	ActivitiesPerSecond float64

	// MaxConcurrentActivities bounds in-flight activities per worker.
	MaxConcurrentActivities int
}

// perMinute converts a jobs-per-minute quota to Temporal's per-second form.
func perMinute(n float64) float64 { return n / 60 }

// PolicyFor returns the policy for a task queue. Unknown queues get the
// fetch policy, the most conservative of the set.
func PolicyFor(queue string) QueuePolicy {
	switch queue {
	case QueueFetch, QueueBackfill:
		// The arXiv client rate-limits itself; keep one fetch in flight so
		// ledger cursors advance linearly.
		return QueuePolicy{
			Retry: &temporal.RetryPolicy{
				InitialInterval:    30 * time.Second,
				BackoffCoefficient: 2.0,
				MaximumInterval:    10 * time.Minute,
				MaximumAttempts:    4,
			},
			MaxConcurrentActivities: 1,
		}
	case QueueSummarize:
		return QueuePolicy{
			Retry: &temporal.RetryPolicy{
				InitialInterval:    10 * time.Second,
				BackoffCoefficient: 2.0,
				MaximumInterval:    5 * time.Minute,
				MaximumAttempts:    3,
			},
			ActivitiesPerSecond:     perMinute(20),
			MaxConcurrentActivities: 1,
		}
	case QueueAnalyzeV1, QueueAnalyzeV3:
		// The LLM is the bottleneck and the cost center: one job at a time
		// per worker, global per-minute cap across the queue.
		return QueuePolicy{
			Retry: &temporal.RetryPolicy{
				InitialInterval:    15 * time.Second,
				BackoffCoefficient: 2.0,
				MaximumInterval:    5 * time.Minute,
				MaximumAttempts:    3,
				NonRetryableErrorTypes: []string{
					"BudgetExceededError",
				},
			},
			ActivitiesPerSecond:     perMinute(10),
			MaxConcurrentActivities: 1,
		}
	case QueueSocialMonitor, QueueNewsFetch:
		return QueuePolicy{
			Retry: &temporal.RetryPolicy{
				InitialInterval:    time.Minute,
				BackoffCoefficient: 2.0,
				MaximumInterval:    15 * time.Minute,
				MaximumAttempts:    3,
			},
			ActivitiesPerSecond:     perMinute(12),
			MaxConcurrentActivities: 2,
		}
	default:
		return PolicyFor(QueueFetch)
	}
}

// ValidateQueue rejects queue names outside the known set early, before a
// workflow start hits the server.
func ValidateQueue(queue string) error {
	for _, q := range AllQueues() {
		if q == queue {
			return nil
		}
	}
	return fmt.Errorf("unknown task queue: %q", queue)
}
