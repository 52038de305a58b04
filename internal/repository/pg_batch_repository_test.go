package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperpulse/analysis-service/internal/domain"
)

func TestPgBatchRepository_CreateBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("creates batch in pending state", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBatchRepository(mock)
		batch := &domain.AnalysisBatch{
			AnalysisVersion:    domain.AnalysisVersionV3,
			BatchSize:          25,
			EstimatedCostCents: 75,
		}

		mock.ExpectQuery("INSERT INTO analysis_batches").
			WithArgs(pgxmock.AnyArg(), batch.AnalysisVersion, domain.BatchStatusPending,
				batch.BatchSize, batch.EstimatedCostCents, pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).
				AddRow(batch.CreatedAt, batch.UpdatedAt))

		result, err := repo.CreateBatch(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, domain.BatchStatusPending, result.Status)
		assert.NotEqual(t, uuid.Nil, result.ID)
	})

	t.Run("rejects non-positive batch size", func(t *testing.T) {
		repo := NewPgBatchRepository(nil)
		_, err := repo.CreateBatch(ctx, &domain.AnalysisBatch{BatchSize: 0})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPgBatchRepository_RecordJobResult(t *testing.T) {
	ctx := context.Background()
	batchID := uuid.New()
	jobID := uuid.New()

	t.Run("rolls up success without transition", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBatchRepository(mock)

		mock.ExpectQuery("WITH prev AS").
			WithArgs(batchID, jobID, domain.BatchJobStatusCompleted, int64(1200), pgxmock.AnyArg(), 1, 0, int64(2)).
			WillReturnRows(pgxmock.NewRows([]string{"completed_count", "failed_count", "batch_size", "status", "old_status", "n"}).
				AddRow(5, 1, 10, domain.BatchStatusRunning, domain.BatchStatusRunning, int64(1)))

		rollup, err := repo.RecordJobResult(ctx, batchID, jobID, true, 1200, 2, nil)
		require.NoError(t, err)
		assert.Equal(t, 5, rollup.CompletedCount)
		assert.Equal(t, 1, rollup.FailedCount)
		assert.False(t, rollup.Transitioned)
	})

	t.Run("reports transition when threshold reached", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBatchRepository(mock)
		detail := "validation failed"

		mock.ExpectQuery("WITH prev AS").
			WithArgs(batchID, jobID, domain.BatchJobStatusFailed, int64(0), &detail, 0, 1, int64(0)).
			WillReturnRows(pgxmock.NewRows([]string{"completed_count", "failed_count", "batch_size", "status", "old_status", "n"}).
				AddRow(9, 1, 10, domain.BatchStatusCompleted, domain.BatchStatusRunning, int64(1)))

		rollup, err := repo.RecordJobResult(ctx, batchID, jobID, false, 0, 0, &detail)
		require.NoError(t, err)
		assert.True(t, rollup.Transitioned)
		assert.Equal(t, domain.BatchStatusCompleted, rollup.Status)
	})

	t.Run("does not roll up an already-terminal job", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBatchRepository(mock)

		// The deltas multiply by n=0, so the counters and status come back
		// unchanged and the call reports the duplicate.
		mock.ExpectQuery("WITH prev AS").
			WithArgs(batchID, jobID, domain.BatchJobStatusCompleted, int64(0), pgxmock.AnyArg(), 1, 0, int64(0)).
			WillReturnRows(pgxmock.NewRows([]string{"completed_count", "failed_count", "batch_size", "status", "old_status", "n"}).
				AddRow(9, 1, 10, domain.BatchStatusCompleted, domain.BatchStatusCompleted, int64(0)))

		_, err = repo.RecordJobResult(ctx, batchID, jobID, true, 0, 0, nil)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown batch is not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBatchRepository(mock)

		mock.ExpectQuery("WITH prev AS").
			WithArgs(batchID, jobID, domain.BatchJobStatusCompleted, int64(0), pgxmock.AnyArg(), 1, 0, int64(0)).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.RecordJobResult(ctx, batchID, jobID, true, 0, 0, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgBatchRepository_GetJob(t *testing.T) {
	ctx := context.Background()
	jobID := uuid.New()

	t.Run("returns the job", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBatchRepository(mock)
		batchID := uuid.New()
		paperID := uuid.New()
		now := time.Now().UTC()

		mock.ExpectQuery("SELECT (.+) FROM batch_jobs").
			WithArgs(jobID).
			WillReturnRows(pgxmock.NewRows([]string{
				"id", "batch_id", "paper_id", "status", "tokens_used", "error_detail",
				"started_at", "finished_at", "created_at", "updated_at",
			}).AddRow(jobID, batchID, paperID, domain.BatchJobStatusCompleted, int64(900), nil, &now, &now, now, now))

		job, err := repo.GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, domain.BatchJobStatusCompleted, job.Status)
		assert.Equal(t, batchID, job.BatchID)
		assert.Equal(t, int64(900), job.TokensUsed)
	})

	t.Run("maps no rows to not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBatchRepository(mock)

		mock.ExpectQuery("SELECT (.+) FROM batch_jobs").
			WithArgs(jobID).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.GetJob(ctx, jobID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgBatchRepository_GetCurrentBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("maps no rows to not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBatchRepository(mock)

		mock.ExpectQuery("SELECT (.+) FROM analysis_batches").
			WithArgs(domain.AnalysisVersionV3).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.GetCurrentBatch(ctx, domain.AnalysisVersionV3)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgBatchRepository_SetBatchStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("clears pause reason for non-paused statuses", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBatchRepository(mock)
		id := uuid.New()
		reason := "budget hold"

		mock.ExpectExec("UPDATE analysis_batches").
			WithArgs(id, domain.BatchStatusRunning, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.SetBatchStatus(ctx, id, domain.BatchStatusRunning, &reason)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("keeps pause reason when pausing", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBatchRepository(mock)
		id := uuid.New()
		reason := "budget hold"

		mock.ExpectExec("UPDATE analysis_batches").
			WithArgs(id, domain.BatchStatusPaused, &reason).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.SetBatchStatus(ctx, id, domain.BatchStatusPaused, &reason)
		require.NoError(t, err)
	})
}

func TestPgBatchRepository_ResetFailedJobs(t *testing.T) {
	ctx := context.Background()
	batchID := uuid.New()

	t.Run("returns the number of jobs reset", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBatchRepository(mock)

		mock.ExpectQuery("WITH reset AS").
			WithArgs(batchID).
			WillReturnRows(pgxmock.NewRows([]string{"n"}).AddRow(3))

		reset, err := repo.ResetFailedJobs(ctx, batchID)
		require.NoError(t, err)
		assert.Equal(t, 3, reset)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown batch is not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBatchRepository(mock)

		mock.ExpectQuery("WITH reset AS").
			WithArgs(batchID).
			WillReturnRows(pgxmock.NewRows([]string{"n"}))

		_, err = repo.ResetFailedJobs(ctx, batchID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
