// Package workflows implements the orchestration for every job family. A
// workflow sequences activities and never touches the database or the
// network itself, so each one stays deterministic and replayable.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/paperpulse/analysis-service/internal/temporal/activities"
)

// IngestRecentInput configures one scheduled recent-papers sweep.
type IngestRecentInput struct {
	Categories     []string `json:"categories"`
	MaxPerCategory int      `json:"max_per_category"`

	// OverlapDays re-fetches the trailing N days by date range to catch
	// papers the feed published late. Dedup makes the overlap cheap.
	OverlapDays int `json:"overlap_days"`
}

// fetchOptions bounds the external-API activities. The heartbeat lets a
// paging backfill report progress between pages.
func fetchOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Minute,
			MaximumAttempts:    4,
		},
	})
}

// enqueueOptions bounds the fan-out activities, which only talk to the
// queue itself.
func enqueueOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	})
}

// IngestRecentWorkflow runs the scheduled sweep: fetch the newest papers for
// every configured category, then schedule one social monitor and one news
// sweep per new paper. Analysis is never triggered from here; batches are
// started explicitly.
func IngestRecentWorkflow(ctx workflow.Context, input IngestRecentInput) (*activities.IngestResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("starting recent ingest", "categories", len(input.Categories))

	var ingestAct *activities.IngestionActivities
	var enqueueAct *activities.EnqueueActivities

	runDate := workflow.Now(ctx).UTC().Truncate(24 * time.Hour)
	ingestInput := activities.IngestInput{
		Categories:     input.Categories,
		RunDate:        runDate,
		MaxPerCategory: input.MaxPerCategory,
	}

	var result activities.IngestResult
	if err := workflow.ExecuteActivity(fetchOptions(ctx), ingestAct.IngestCategories, ingestInput).Get(ctx, &result); err != nil {
		return nil, err
	}

	if input.OverlapDays > 0 {
		overlapInput := activities.IngestInput{
			Categories:     input.Categories,
			RunDate:        runDate,
			Backfill:       true,
			From:           runDate.AddDate(0, 0, -input.OverlapDays),
			To:             runDate.AddDate(0, 0, -1),
			MaxPerCategory: input.MaxPerCategory,
		}
		var overlap activities.IngestResult
		if err := workflow.ExecuteActivity(fetchOptions(ctx), ingestAct.IngestCategories, overlapInput).Get(ctx, &overlap); err != nil {
			// The recent fetch already landed; a failed overlap pass only
			// costs late-arriving papers until the next sweep.
			logger.Warn("overlap re-fetch failed", "error", err)
		} else {
			result.Inserted += overlap.Inserted
			result.Duplicates += overlap.Duplicates
			result.NewPapers = append(result.NewPapers, overlap.NewPapers...)
			result.PerCategory = append(result.PerCategory, overlap.PerCategory...)
		}
	}

	if len(result.NewPapers) > 0 {
		var enqueued int
		if err := workflow.ExecuteActivity(enqueueOptions(ctx), enqueueAct.EnqueueSocialMonitors, result.NewPapers).Get(ctx, &enqueued); err != nil {
			// The papers are persisted; losing the fan-out is not worth
			// failing the whole sweep over.
			logger.Warn("social monitor fan-out failed", "error", err)
		}
		if err := workflow.ExecuteActivity(enqueueOptions(ctx), enqueueAct.EnqueueNewsFetches, result.NewPapers).Get(ctx, &enqueued); err != nil {
			logger.Warn("news fetch fan-out failed", "error", err)
		}
	}

	logger.Info("recent ingest finished",
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
		"failed_categories", result.Failed,
	)
	return &result, nil
}

// IngestDateWorkflow backfills one calendar date. It is enqueued by the gap
// sweep and by manual backfill requests under the same deterministic per-date
// ID, so overlapping requests collapse into one run.
func IngestDateWorkflow(ctx workflow.Context, input activities.IngestInput) (*activities.IngestResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("starting date backfill", "date", input.RunDate.Format("2006-01-02"))

	var ingestAct *activities.IngestionActivities
	var enqueueAct *activities.EnqueueActivities

	var result activities.IngestResult
	if err := workflow.ExecuteActivity(fetchOptions(ctx), ingestAct.IngestCategories, input).Get(ctx, &result); err != nil {
		return nil, err
	}

	if len(result.NewPapers) > 0 {
		var enqueued int
		if err := workflow.ExecuteActivity(enqueueOptions(ctx), enqueueAct.EnqueueSocialMonitors, result.NewPapers).Get(ctx, &enqueued); err != nil {
			logger.Warn("social monitor fan-out failed", "error", err)
		}
		if err := workflow.ExecuteActivity(enqueueOptions(ctx), enqueueAct.EnqueueNewsFetches, result.NewPapers).Get(ctx, &enqueued); err != nil {
			logger.Warn("news fetch fan-out failed", "error", err)
		}
	}

	logger.Info("date backfill finished",
		"date", input.RunDate.Format("2006-01-02"),
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
	)
	return &result, nil
}
