package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/paperpulse/analysis-service/internal/temporal/activities"
)

// GapSweepInput configures the recurring coverage sweep.
type GapSweepInput struct {
	Categories     []string `json:"categories"`
	MaxPerCategory int      `json:"max_per_category"`
}

// GapSweepResult reports one sweep.
type GapSweepResult struct {
	Flagged  int `json:"flagged"`
	Enqueued int `json:"enqueued"`
}

// GapSweepWorkflow scans the trailing window for under-covered weekdays and
// schedules one backfill per flagged date. Dates still queued from a prior
// sweep dedup against their deterministic IDs, so the sweep is safe to run
// as often as wanted.
func GapSweepWorkflow(ctx workflow.Context, input GapSweepInput) (*GapSweepResult, error) {
	logger := workflow.GetLogger(ctx)

	var gapAct *activities.GapActivities
	var enqueueAct *activities.EnqueueActivities

	detectCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	var dates []time.Time
	if err := workflow.ExecuteActivity(detectCtx, gapAct.DetectGaps).Get(ctx, &dates); err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		logger.Info("no coverage gaps found")
		return &GapSweepResult{}, nil
	}

	var enqueued int
	err := workflow.ExecuteActivity(enqueueOptions(ctx), enqueueAct.EnqueueBackfills, activities.EnqueueBackfillsInput{
		Dates:          dates,
		Categories:     input.Categories,
		MaxPerCategory: input.MaxPerCategory,
	}).Get(ctx, &enqueued)
	if err != nil {
		return nil, err
	}

	logger.Info("gap sweep finished", "flagged", len(dates), "enqueued", enqueued)
	return &GapSweepResult{Flagged: len(dates), Enqueued: enqueued}, nil
}
