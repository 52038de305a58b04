package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// BatchRollup is the result of recording one terminal job event against a
// batch. Transitioned is true only for the single event that moved the batch
// to completed.
type BatchRollup struct {
	CompletedCount int
	FailedCount    int
	BatchSize      int
	Status         domain.BatchStatus
	Transitioned   bool
}

// BatchRepository manages analysis batches and their per-paper jobs.
type BatchRepository interface {
	// CreateBatch stores a new batch in pending state.
	CreateBatch(ctx context.Context, batch *domain.AnalysisBatch) (*domain.AnalysisBatch, error)

	// CreateJobs stores one pending job per paper for the batch.
	CreateJobs(ctx context.Context, batchID uuid.UUID, paperIDs []uuid.UUID) error

	// GetBatch retrieves a batch by ID, or domain.ErrNotFound.
	GetBatch(ctx context.Context, id uuid.UUID) (*domain.AnalysisBatch, error)

	// GetCurrentBatch returns the most recent non-terminal batch for a
	// version, or domain.ErrNotFound when none is in flight.
	GetCurrentBatch(ctx context.Context, version string) (*domain.AnalysisBatch, error)

	// SetBatchStatus updates a batch's status. pauseReason is stored for
	// paused batches and cleared otherwise.
	SetBatchStatus(ctx context.Context, id uuid.UUID, status domain.BatchStatus, pauseReason *string) error

	// ListJobs returns jobs for a batch, optionally filtered by status.
	ListJobs(ctx context.Context, batchID uuid.UUID, status *domain.BatchJobStatus) ([]*domain.BatchJob, error)

	// GetJob retrieves one batch job by ID, or domain.ErrNotFound.
	GetJob(ctx context.Context, jobID uuid.UUID) (*domain.BatchJob, error)

	// MarkJobRunning moves a pending job to running.
	MarkJobRunning(ctx context.Context, jobID uuid.UUID) error

	// ResetJob moves a failed job back to pending for retry.
	ResetJob(ctx context.Context, jobID uuid.UUID) error

	// ResetFailedJobs moves every failed job in a batch back to pending and
	// atomically subtracts them from the batch's failed counter, reopening
	// the batch so the completion transition can fire again. Returns the
	// number of jobs reset.
	ResetFailedJobs(ctx context.Context, batchID uuid.UUID) (int, error)

	// RecordJobResult marks a job terminal and atomically rolls the result
	// up into the batch counters, transitioning the batch to completed
	// exactly once when completed+failed reaches the batch size. The
	// increment and the threshold check happen in a single statement so
	// concurrent completions cannot double-count or double-transition.
	RecordJobResult(ctx context.Context, batchID, jobID uuid.UUID, succeeded bool, tokens int64, spentCents int64, errDetail *string) (*BatchRollup, error)
}
