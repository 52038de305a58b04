package temporal

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowIDs(t *testing.T) {
	date := time.Date(2025, 3, 18, 14, 30, 0, 0, time.UTC)

	assert.Equal(t, "ingest-date-2025-03-18", IngestDateWorkflowID(date))
	assert.Equal(t, "daily-ingest-2025-03-18", DailyIngestWorkflowID(date))
	assert.Equal(t, "gap-sweep-2025-03-18", GapSweepWorkflowID(date))
	assert.Equal(t, "social-2401.99999", SocialMonitorWorkflowID("2401.99999"))
	assert.Equal(t, "news-2401.99999", NewsFetchWorkflowID("2401.99999"))

	paperID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	assert.Equal(t, "analysis-v1-11111111-2222-3333-4444-555555555555", AnalysisV1WorkflowID(paperID))
	assert.Equal(t, "summary-11111111-2222-3333-4444-555555555555", SummaryWorkflowID(paperID))
	assert.Equal(t, "v3-batch-11111111-2222-3333-4444-555555555555", V3BatchWorkflowID(paperID))

	// Same date in another zone yields the same ID.
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, IngestDateWorkflowID(date), IngestDateWorkflowID(date.In(est)))
}

func TestPolicyFor(t *testing.T) {
	for _, queue := range AllQueues() {
		policy := PolicyFor(queue)
		require.NotNil(t, policy.Retry, queue)
		assert.Positive(t, policy.Retry.MaximumAttempts, queue)
		assert.Positive(t, policy.MaxConcurrentActivities, queue)
	}

	// Analysis queues serialize LLM calls and cap their rate.
	v1 := PolicyFor(QueueAnalyzeV1)
	assert.Equal(t, 1, v1.MaxConcurrentActivities)
	assert.InDelta(t, 10.0/60, v1.ActivitiesPerSecond, 1e-9)

	// Unknown queues fall back to the conservative fetch policy.
	assert.Equal(t, PolicyFor(QueueFetch), PolicyFor("mystery"))
}

func TestValidateQueue(t *testing.T) {
	require.NoError(t, ValidateQueue(QueueAnalyzeV3))
	require.Error(t, ValidateQueue("not-a-queue"))
}

func TestAIGatedQueues(t *testing.T) {
	gated := AIGatedQueues()
	assert.ElementsMatch(t, []string{QueueSummarize, QueueAnalyzeV1}, gated)
	assert.NotContains(t, gated, QueueAnalyzeV3, "v3 is gated by its own flag and budget")
}
