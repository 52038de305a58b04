package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// Compile-time interface verification.
var _ BatchRepository = (*PgBatchRepository)(nil)

const batchColumns = `id, analysis_version, status, batch_size, completed_count,
	failed_count, total_tokens, estimated_cost_cents, spent_cents, pause_reason,
	started_at, completed_at, created_at, updated_at`

// PgBatchRepository is a PostgreSQL implementation of BatchRepository.
type PgBatchRepository struct {
	db DBTX
}

// NewPgBatchRepository creates a new PostgreSQL batch repository.
func NewPgBatchRepository(db DBTX) *PgBatchRepository {
	return &PgBatchRepository{db: db}
}

// CreateBatch stores a new batch in pending state.
func (r *PgBatchRepository) CreateBatch(ctx context.Context, batch *domain.AnalysisBatch) (*domain.AnalysisBatch, error) {
	if batch == nil {
		return nil, domain.NewValidationError("batch", "batch cannot be nil")
	}
	if batch.BatchSize <= 0 {
		return nil, domain.NewValidationError("batch_size", "batch size must be positive")
	}
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}

	query := `
		INSERT INTO analysis_batches (
			id, analysis_version, status, batch_size, estimated_cost_cents,
			started_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at`

	batch.Status = domain.BatchStatusPending
	now := time.Now().UTC()
	batch.StartedAt = &now

	err := r.db.QueryRow(ctx, query,
		batch.ID,
		batch.AnalysisVersion,
		batch.Status,
		batch.BatchSize,
		batch.EstimatedCostCents,
		now,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	return batch, nil
}

// CreateJobs stores one pending job per paper for the batch.
func (r *PgBatchRepository) CreateJobs(ctx context.Context, batchID uuid.UUID, paperIDs []uuid.UUID) error {
	if len(paperIDs) == 0 {
		return domain.NewValidationError("paper_ids", "at least one paper is required")
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO batch_jobs (id, batch_id, paper_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', now(), now())
		ON CONFLICT (batch_id, paper_id) DO NOTHING`
	for _, paperID := range paperIDs {
		batch.Queue(query, uuid.New(), batchID, paperID)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for range paperIDs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to create batch jobs: %w", err)
		}
	}
	return nil
}

// GetBatch retrieves a batch by ID.
func (r *PgBatchRepository) GetBatch(ctx context.Context, id uuid.UUID) (*domain.AnalysisBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM analysis_batches WHERE id = $1`

	b, err := scanBatch(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("batch", id.String())
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return b, nil
}

// GetCurrentBatch returns the most recent non-terminal batch for a version.
func (r *PgBatchRepository) GetCurrentBatch(ctx context.Context, version string) (*domain.AnalysisBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM analysis_batches
		WHERE analysis_version = $1 AND status IN ('pending', 'running', 'paused')
		ORDER BY created_at DESC
		LIMIT 1`

	b, err := scanBatch(r.db.QueryRow(ctx, query, version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("batch", version)
		}
		return nil, fmt.Errorf("failed to get current batch: %w", err)
	}
	return b, nil
}

// SetBatchStatus updates a batch's status. pauseReason is stored for paused
// batches and cleared otherwise.
func (r *PgBatchRepository) SetBatchStatus(ctx context.Context, id uuid.UUID, status domain.BatchStatus, pauseReason *string) error {
	if status != domain.BatchStatusPaused {
		pauseReason = nil
	}

	query := `
		UPDATE analysis_batches
		SET status = $2,
			pause_reason = $3,
			completed_at = CASE WHEN $2 IN ('completed', 'cancelled') AND completed_at IS NULL THEN now() ELSE completed_at END,
			updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status, pauseReason)
	if err != nil {
		return fmt.Errorf("failed to set batch status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("batch", id.String())
	}
	return nil
}

// ListJobs returns jobs for a batch, optionally filtered by status.
func (r *PgBatchRepository) ListJobs(ctx context.Context, batchID uuid.UUID, status *domain.BatchJobStatus) ([]*domain.BatchJob, error) {
	query := `
		SELECT id, batch_id, paper_id, status, tokens_used, error_detail,
			started_at, finished_at, created_at, updated_at
		FROM batch_jobs
		WHERE batch_id = $1`
	args := []interface{}{batchID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.BatchJob
	for rows.Next() {
		var j domain.BatchJob
		if err := rows.Scan(
			&j.ID, &j.BatchID, &j.PaperID, &j.Status, &j.TokensUsed,
			&j.ErrorDetail, &j.StartedAt, &j.FinishedAt, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan batch job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate batch jobs: %w", err)
	}
	return jobs, nil
}

// MarkJobRunning moves a pending job to running.
func (r *PgBatchRepository) MarkJobRunning(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE batch_jobs
		SET status = 'running', started_at = COALESCE(started_at, now()), updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'running')`

	tag, err := r.db.Exec(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("batch job", jobID.String())
	}
	return nil
}

// ResetJob moves a failed job back to pending for retry.
func (r *PgBatchRepository) ResetJob(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE batch_jobs
		SET status = 'pending', error_detail = NULL, finished_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'failed'`

	tag, err := r.db.Exec(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("failed to reset job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("batch job", jobID.String())
	}
	return nil
}

// ResetFailedJobs moves a batch's failed jobs back to pending and subtracts
// them from the failed counter in one statement, so a retried batch's
// completion threshold stays consistent with its job rows. The batch is
// reopened to running only when at least one job was actually reset.
func (r *PgBatchRepository) ResetFailedJobs(ctx context.Context, batchID uuid.UUID) (int, error) {
	query := `
		WITH reset AS (
			UPDATE batch_jobs
			SET status = 'pending', error_detail = NULL, finished_at = NULL, updated_at = now()
			WHERE batch_id = $1 AND status = 'failed'
			RETURNING 1
		)
		UPDATE analysis_batches b
		SET failed_count = b.failed_count - r.n,
			status = CASE WHEN r.n > 0 THEN 'running'::batch_status ELSE b.status END,
			completed_at = CASE WHEN r.n > 0 THEN NULL ELSE b.completed_at END,
			pause_reason = CASE WHEN r.n > 0 THEN NULL ELSE b.pause_reason END,
			updated_at = now()
		FROM (SELECT count(*)::int AS n FROM reset) r
		WHERE b.id = $1
		RETURNING r.n`

	var reset int
	if err := r.db.QueryRow(ctx, query, batchID).Scan(&reset); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.NewNotFoundError("batch", batchID.String())
		}
		return 0, fmt.Errorf("failed to reset failed jobs: %w", err)
	}
	return reset, nil
}

// RecordJobResult marks a job terminal and rolls it up into the batch in a
// single atomic statement, so a crash can never commit the job finalize
// without its rollup. The row lock taken by the prev CTE serializes
// concurrent completions against the same batch, so the threshold check
// observes a consistent counter and the completed transition fires once.
// A job that is already terminal contributes nothing (the deltas multiply
// by zero) and surfaces as ErrAlreadyExists.
func (r *PgBatchRepository) RecordJobResult(ctx context.Context, batchID, jobID uuid.UUID, succeeded bool, tokens int64, spentCents int64, errDetail *string) (*BatchRollup, error) {
	jobStatus := domain.BatchJobStatusCompleted
	completedDelta, failedDelta := 1, 0
	if !succeeded {
		jobStatus = domain.BatchJobStatusFailed
		completedDelta, failedDelta = 0, 1
	}

	query := `
		WITH prev AS (
			SELECT status AS old_status FROM analysis_batches WHERE id = $1 FOR UPDATE
		), job AS (
			UPDATE batch_jobs
			SET status = $3, tokens_used = $4, error_detail = $5, finished_at = now(), updated_at = now()
			WHERE id = $2 AND batch_id = $1 AND status NOT IN ('completed', 'failed')
			RETURNING 1
		)
		UPDATE analysis_batches b
		SET completed_count = b.completed_count + $6 * j.n,
			failed_count = b.failed_count + $7 * j.n,
			total_tokens = b.total_tokens + $4 * j.n,
			spent_cents = b.spent_cents + $8 * j.n,
			status = CASE
				WHEN j.n > 0 AND b.completed_count + b.failed_count + 1 >= b.batch_size
					AND b.status IN ('pending', 'running', 'paused')
				THEN 'completed'::batch_status
				ELSE b.status
			END,
			completed_at = CASE
				WHEN j.n > 0 AND b.completed_count + b.failed_count + 1 >= b.batch_size AND b.completed_at IS NULL
				THEN now()
				ELSE b.completed_at
			END,
			updated_at = now()
		FROM prev, (SELECT count(*)::bigint AS n FROM job) j
		WHERE b.id = $1
		RETURNING b.completed_count, b.failed_count, b.batch_size, b.status, prev.old_status, j.n`

	var rollup BatchRollup
	var oldStatus domain.BatchStatus
	var finalized int64
	err := r.db.QueryRow(ctx, query,
		batchID, jobID, jobStatus, tokens, errDetail, completedDelta, failedDelta, spentCents,
	).Scan(
		&rollup.CompletedCount,
		&rollup.FailedCount,
		&rollup.BatchSize,
		&rollup.Status,
		&oldStatus,
		&finalized,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("batch", batchID.String())
		}
		return nil, fmt.Errorf("failed to record job result: %w", err)
	}
	if finalized == 0 {
		// Already terminal; nothing was rolled up.
		return nil, domain.NewAlreadyExistsError("batch job result", jobID.String())
	}

	rollup.Transitioned = oldStatus != domain.BatchStatusCompleted && rollup.Status == domain.BatchStatusCompleted
	return &rollup, nil
}

// GetJob retrieves one batch job by ID.
func (r *PgBatchRepository) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.BatchJob, error) {
	query := `
		SELECT id, batch_id, paper_id, status, tokens_used, error_detail,
			started_at, finished_at, created_at, updated_at
		FROM batch_jobs
		WHERE id = $1`

	var j domain.BatchJob
	err := r.db.QueryRow(ctx, query, jobID).Scan(
		&j.ID, &j.BatchID, &j.PaperID, &j.Status, &j.TokensUsed,
		&j.ErrorDetail, &j.StartedAt, &j.FinishedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("batch job", jobID.String())
		}
		return nil, fmt.Errorf("failed to get batch job: %w", err)
	}
	return &j, nil
}

// scanBatch scans a batch row from either pgx.Row or pgx.Rows.
func scanBatch(row pgx.Row) (*domain.AnalysisBatch, error) {
	var b domain.AnalysisBatch
	err := row.Scan(
		&b.ID,
		&b.AnalysisVersion,
		&b.Status,
		&b.BatchSize,
		&b.CompletedCount,
		&b.FailedCount,
		&b.TotalTokens,
		&b.EstimatedCostCents,
		&b.SpentCents,
		&b.PauseReason,
		&b.StartedAt,
		&b.CompletedAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
