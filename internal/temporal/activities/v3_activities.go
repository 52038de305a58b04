package activities

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/paperpulse/analysis-service/internal/analysisv3"
	"github.com/paperpulse/analysis-service/internal/budget"
	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/events"
	"github.com/paperpulse/analysis-service/internal/observability"
	"github.com/paperpulse/analysis-service/internal/repository"
)

// V3Activities runs the per-paper jobs of a v3 batch. Unlike v1, a
// validation failure never reaches this layer as an error: the analyzer
// degrades it to a partial record, so a job fails only on infrastructure
// errors.
type V3Activities struct {
	analyzer     *analysisv3.Analyzer
	batches      repository.BatchRepository
	budget       *budget.Controller
	costPerPaper int64
	emitter      events.Emitter
	metrics      *observability.Metrics
}

// NewV3Activities creates the v3 batch activity set. costPerPaperCents is
// the spend recorded per analyzed paper.
func NewV3Activities(
	analyzer *analysisv3.Analyzer,
	batches repository.BatchRepository,
	budgetCtl *budget.Controller,
	costPerPaperCents int64,
	emitter events.Emitter,
	metrics *observability.Metrics,
) *V3Activities {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &V3Activities{
		analyzer:     analyzer,
		batches:      batches,
		budget:       budgetCtl,
		costPerPaper: costPerPaperCents,
		emitter:      emitter,
		metrics:      metrics,
	}
}

// AnalyzeV3Job runs one batch job end to end: mark running, analyze, record
// spend, then roll the terminal state up into the batch counters. Returning
// an error leaves the job running and lets the queue retry; the workflow
// records the failure once retries are exhausted. The activity is delivered
// at least once, so a job whose terminal state was already committed by a
// prior attempt is treated as done rather than re-run.
func (a *V3Activities) AnalyzeV3Job(ctx context.Context, input BatchJobInput) (*BatchJobOutput, error) {
	logger := activity.GetLogger(ctx)

	// Tolerates the job already being in running state from a prior attempt.
	if err := a.batches.MarkJobRunning(ctx, input.JobID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// A prior attempt may have committed the terminal state before
			// its result reached the workflow.
			if output, ok := a.redeliveredTerminal(ctx, input.JobID); ok {
				logger.Info("batch job already terminal, redelivery is a no-op", "job_id", input.JobID)
				return output, nil
			}
		}
		return nil, err
	}

	result, err := a.analyzer.Analyze(ctx, analysisv3.AnalyzeRequest{PaperID: input.PaperID})
	if err != nil {
		return nil, err
	}

	output := &BatchJobOutput{Succeeded: true}
	if result.Skipped {
		logger.Info("v3 analysis already exists, completing job without a call", "paper_id", input.PaperID)
	} else {
		output.Status = string(result.Analysis.Status)
		output.TokensUsed = result.Analysis.TokensUsed
		output.SpentCents = a.costPerPaper
		if err := a.budget.RecordSpend(ctx, a.costPerPaper); err != nil {
			// Spend tracking must not lose the analysis that already ran.
			logger.Warn("failed to record spend", "error", err)
			output.SpentCents = 0
		}
	}

	rollup, err := a.batches.RecordJobResult(ctx, input.BatchID, input.JobID, true, output.TokensUsed, output.SpentCents, nil)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// A concurrent or prior attempt already rolled this job up.
			return a.settledOutput(ctx, input.BatchID, output)
		}
		return nil, err
	}
	a.applyRollup(ctx, input.BatchID, rollup, output)
	return output, nil
}

// RecordJobFailure marks a job failed after its retries are exhausted and
// rolls the failure up into the batch counters. A job already rolled up by
// a prior attempt is a no-op, so the workflow can always move on.
func (a *V3Activities) RecordJobFailure(ctx context.Context, input BatchJobInput, detail string) (*BatchJobOutput, error) {
	var errDetail *string
	if detail != "" {
		errDetail = &detail
	}

	rollup, err := a.batches.RecordJobResult(ctx, input.BatchID, input.JobID, false, 0, 0, errDetail)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return a.settledOutput(ctx, input.BatchID, &BatchJobOutput{ErrorDetail: detail})
		}
		return nil, err
	}

	output := &BatchJobOutput{ErrorDetail: detail}
	a.applyRollup(ctx, input.BatchID, rollup, output)
	return output, nil
}

// redeliveredTerminal reports whether the job already reached a terminal
// state on a prior attempt, and if so builds the corresponding output.
func (a *V3Activities) redeliveredTerminal(ctx context.Context, jobID uuid.UUID) (*BatchJobOutput, bool) {
	job, err := a.batches.GetJob(ctx, jobID)
	if err != nil || !job.Status.IsTerminal() {
		return nil, false
	}

	output := &BatchJobOutput{
		Succeeded:  job.Status == domain.BatchJobStatusCompleted,
		Status:     string(job.Status),
		TokensUsed: job.TokensUsed,
	}
	if job.ErrorDetail != nil {
		output.ErrorDetail = *job.ErrorDetail
	}
	settled, err := a.settledOutput(ctx, job.BatchID, output)
	if err != nil {
		return nil, false
	}
	return settled, true
}

// settledOutput fills the output's counters from the batch row when the
// rollup itself happened on another attempt. That attempt observed any
// completion transition, so BatchCompleted stays false here.
func (a *V3Activities) settledOutput(ctx context.Context, batchID uuid.UUID, output *BatchJobOutput) (*BatchJobOutput, error) {
	batch, err := a.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	output.CompletedCount = batch.CompletedCount
	output.FailedCount = batch.FailedCount
	output.BatchSize = batch.BatchSize
	return output, nil
}

// MarkBatchRunning moves the batch out of pending when its workflow picks
// it up.
func (a *V3Activities) MarkBatchRunning(ctx context.Context, batchID uuid.UUID) error {
	return a.batches.SetBatchStatus(ctx, batchID, domain.BatchStatusRunning, nil)
}

// ListPendingJobs returns the batch's pending jobs, oldest first. Resumed
// and retried batches re-enter through this list, so jobs already terminal
// are never re-run.
func (a *V3Activities) ListPendingJobs(ctx context.Context, batchID uuid.UUID) ([]BatchJobInput, error) {
	pending := domain.BatchJobStatusPending
	jobs, err := a.batches.ListJobs(ctx, batchID, &pending)
	if err != nil {
		return nil, err
	}

	inputs := make([]BatchJobInput, 0, len(jobs))
	for _, job := range jobs {
		inputs = append(inputs, BatchJobInput{BatchID: batchID, JobID: job.ID, PaperID: job.PaperID})
	}
	return inputs, nil
}

// BatchState reports a batch's status between jobs so the workflow can honor
// pause and cancel requests mid-batch.
type BatchState struct {
	Status      string `json:"status"`
	PauseReason string `json:"pause_reason,omitempty"`
}

// GetBatchState fetches the batch's current status.
func (a *V3Activities) GetBatchState(ctx context.Context, batchID uuid.UUID) (*BatchState, error) {
	batch, err := a.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	state := &BatchState{Status: string(batch.Status)}
	if batch.PauseReason != nil {
		state.PauseReason = *batch.PauseReason
	}
	return state, nil
}

func (a *V3Activities) applyRollup(ctx context.Context, batchID uuid.UUID, rollup *repository.BatchRollup, output *BatchJobOutput) {
	output.CompletedCount = rollup.CompletedCount
	output.FailedCount = rollup.FailedCount
	output.BatchSize = rollup.BatchSize
	output.BatchCompleted = rollup.Transitioned

	if !rollup.Transitioned {
		return
	}
	if a.metrics != nil {
		a.metrics.RecordBatchCompleted(domain.AnalysisVersionV3)
	}
	a.emitter.TryEmit(ctx, domain.Event{
		EventType:   domain.EventTypeBatchCompleted,
		AggregateID: batchID.String(),
		Payload: domain.BatchCompletedPayload{
			BatchID:         batchID.String(),
			AnalysisVersion: domain.AnalysisVersionV3,
			Completed:       rollup.CompletedCount,
			Failed:          rollup.FailedCount,
		},
	})
	activity.GetLogger(ctx).Info("batch completed",
		"batch_id", batchID,
		"completed", rollup.CompletedCount,
		"failed", rollup.FailedCount,
	)
}
