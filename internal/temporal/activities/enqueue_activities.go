package activities

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/events"
	"github.com/paperpulse/analysis-service/internal/gaps"
	"github.com/paperpulse/analysis-service/internal/observability"
	"github.com/paperpulse/analysis-service/internal/temporal"
)

// defaultSocialStagger spaces the social-monitor jobs spawned after an
// ingest run so they do not hit the platform APIs in one burst.
const defaultSocialStagger = 5 * time.Second

// Workflow names used when enqueuing across queue families. Workflows are
// referenced by registered name because the workflows package depends on
// this one.
const (
	WorkflowNameIngestDate    = "IngestDateWorkflow"
	WorkflowNameSocialMonitor = "SocialMonitorWorkflow"
	WorkflowNameNewsFetch     = "NewsFetchWorkflow"
)

// EnqueueActivities is the one place pipeline workflows start other jobs
// from. Every enqueue goes through the deterministic-ID dedup in the
// Enqueuer, so re-running a workflow never double-schedules.
type EnqueueActivities struct {
	enqueuer      *temporal.Enqueuer
	emitter       events.Emitter
	metrics       *observability.Metrics
	socialStagger time.Duration
}

// NewEnqueueActivities creates the enqueue activity set. socialStagger
// spaces the social-monitor fan-out; zero means the default.
func NewEnqueueActivities(enqueuer *temporal.Enqueuer, emitter events.Emitter, metrics *observability.Metrics, socialStagger time.Duration) *EnqueueActivities {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if socialStagger <= 0 {
		socialStagger = defaultSocialStagger
	}
	return &EnqueueActivities{enqueuer: enqueuer, emitter: emitter, metrics: metrics, socialStagger: socialStagger}
}

// EnqueueSocialMonitors schedules one social-monitor job per new paper,
// staggered so the fan-out after a large ingest does not burst. Papers whose
// monitor already exists are counted as deduplicated, not errors.
func (a *EnqueueActivities) EnqueueSocialMonitors(ctx context.Context, papers []NewPaperRef) (int, error) {
	logger := activity.GetLogger(ctx)

	enqueued := 0
	for i, paper := range papers {
		handle, err := a.enqueuer.Enqueue(ctx, temporal.EnqueueRequest{
			Queue:      temporal.QueueSocialMonitor,
			WorkflowID: temporal.SocialMonitorWorkflowID(paper.ExternalID),
			Workflow:   WorkflowNameSocialMonitor,
			Args:       []interface{}{MentionInput{ExternalID: paper.ExternalID, Title: paper.Title}},
			Delay:      time.Duration(i) * a.socialStagger,
		})
		if err != nil {
			return enqueued, err
		}
		if !handle.Deduplicated {
			enqueued++
		}
	}

	logger.Info("social monitors scheduled", "papers", len(papers), "enqueued", enqueued)
	return enqueued, nil
}

// EnqueueNewsFetches schedules one news sweep per new paper, staggered the
// same way as the social fan-out. The per-paper workflow ID absorbs papers
// whose sweep is already queued.
func (a *EnqueueActivities) EnqueueNewsFetches(ctx context.Context, papers []NewPaperRef) (int, error) {
	logger := activity.GetLogger(ctx)

	enqueued := 0
	for i, paper := range papers {
		handle, err := a.enqueuer.Enqueue(ctx, temporal.EnqueueRequest{
			Queue:      temporal.QueueNewsFetch,
			WorkflowID: temporal.NewsFetchWorkflowID(paper.ExternalID),
			Workflow:   WorkflowNameNewsFetch,
			Args:       []interface{}{MentionInput{ExternalID: paper.ExternalID, Title: paper.Title}},
			Delay:      time.Duration(i) * a.socialStagger,
		})
		if err != nil {
			return enqueued, err
		}
		if !handle.Deduplicated {
			enqueued++
		}
	}

	logger.Info("news fetches scheduled", "papers", len(papers), "enqueued", enqueued)
	return enqueued, nil
}

// EnqueueBackfillsInput lists the dates to backfill and the ingest settings
// each per-date job runs with.
type EnqueueBackfillsInput struct {
	Dates          []time.Time `json:"dates"`
	Categories     []string    `json:"categories"`
	MaxPerCategory int         `json:"max_per_category"`
}

// EnqueueBackfills schedules one backfill ingest per flagged date, one
// minute apart. The deterministic per-date workflow ID means a date already
// queued or running from an earlier sweep is silently absorbed.
func (a *EnqueueActivities) EnqueueBackfills(ctx context.Context, input EnqueueBackfillsInput) (int, error) {
	logger := activity.GetLogger(ctx)

	enqueued := 0
	for i, date := range input.Dates {
		handle, err := a.enqueuer.Enqueue(ctx, temporal.EnqueueRequest{
			Queue:      temporal.QueueBackfill,
			WorkflowID: temporal.IngestDateWorkflowID(date),
			Workflow:   WorkflowNameIngestDate,
			Args: []interface{}{IngestInput{
				Categories:     input.Categories,
				RunDate:        date,
				Backfill:       true,
				From:           date,
				To:             date,
				MaxPerCategory: input.MaxPerCategory,
			}},
			Delay: time.Duration(i) * gaps.StaggerInterval,
		})
		if err != nil {
			return enqueued, err
		}
		if handle.Deduplicated {
			continue
		}
		enqueued++
		a.emitter.TryEmit(ctx, domain.Event{
			EventType:   domain.EventTypeBackfillEnqueued,
			AggregateID: date.Format("2006-01-02"),
			Payload:     map[string]string{"date": date.Format("2006-01-02")},
		})
	}

	if a.metrics != nil {
		a.metrics.RecordGapSweep(len(input.Dates), enqueued)
	}
	logger.Info("backfills scheduled", "flagged", len(input.Dates), "enqueued", enqueued)
	return enqueued, nil
}
