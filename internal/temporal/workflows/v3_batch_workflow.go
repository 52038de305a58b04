package workflows

import (
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/temporal/activities"
)

// batchPausePollInterval is how often a paused batch re-checks its status.
const batchPausePollInterval = 30 * time.Second

// V3BatchInput identifies the batch to drive. The batch row and its jobs are
// created by the admin surface before the workflow starts.
type V3BatchInput struct {
	BatchID uuid.UUID `json:"batch_id"`
}

// V3BatchResult summarizes the batch when the workflow exits.
type V3BatchResult struct {
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	BatchSize int  `json:"batch_size"`
	Cancelled bool `json:"cancelled"`
}

// V3BatchWorkflow drives one v3 analysis batch job by job. Between jobs it
// re-reads the batch status, so an operator pause takes effect at the next
// job boundary and a cancel stops the batch without touching jobs already
// terminal. A job whose activity retries are exhausted is recorded as failed
// and the batch moves on; the batch itself completes when the last job's
// rollup crosses the threshold.
func V3BatchWorkflow(ctx workflow.Context, input V3BatchInput) (*V3BatchResult, error) {
	logger := workflow.GetLogger(ctx)

	var act *activities.V3Activities

	stateCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	})

	if err := workflow.ExecuteActivity(stateCtx, act.MarkBatchRunning, input.BatchID).Get(ctx, nil); err != nil {
		return nil, err
	}

	var jobs []activities.BatchJobInput
	if err := workflow.ExecuteActivity(stateCtx, act.ListPendingJobs, input.BatchID).Get(ctx, &jobs); err != nil {
		return nil, err
	}
	logger.Info("batch started", "batch_id", input.BatchID, "pending_jobs", len(jobs))

	result := &V3BatchResult{}
	for _, job := range jobs {
		proceed, err := awaitRunnable(ctx, stateCtx, act, input.BatchID)
		if err != nil {
			return nil, err
		}
		if !proceed {
			result.Cancelled = true
			logger.Info("batch cancelled, stopping", "batch_id", input.BatchID)
			return result, nil
		}

		var output activities.BatchJobOutput
		jobErr := workflow.ExecuteActivity(llmOptions(ctx), act.AnalyzeV3Job, job).Get(ctx, &output)
		if jobErr != nil {
			// Retries are exhausted; the failure still has to reach the
			// batch counters or the batch would never complete.
			if err := workflow.ExecuteActivity(stateCtx, act.RecordJobFailure, job, jobErr.Error()).Get(ctx, &output); err != nil {
				return nil, err
			}
			logger.Warn("batch job failed", "job_id", job.JobID, "error", jobErr)
		}

		result.Completed = output.CompletedCount
		result.Failed = output.FailedCount
		result.BatchSize = output.BatchSize
	}

	logger.Info("batch drained",
		"batch_id", input.BatchID,
		"completed", result.Completed,
		"failed", result.Failed,
	)
	return result, nil
}

// awaitRunnable blocks while the batch is paused and reports false when it
// has been cancelled.
func awaitRunnable(ctx, stateCtx workflow.Context, act *activities.V3Activities, batchID uuid.UUID) (bool, error) {
	for {
		var state activities.BatchState
		if err := workflow.ExecuteActivity(stateCtx, act.GetBatchState, batchID).Get(ctx, &state); err != nil {
			return false, err
		}

		switch domain.BatchStatus(state.Status) {
		case domain.BatchStatusCancelled:
			return false, nil
		case domain.BatchStatusPaused:
			if err := workflow.Sleep(ctx, batchPausePollInterval); err != nil {
				return false, err
			}
		default:
			return true, nil
		}
	}
}
