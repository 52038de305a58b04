package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// Compile-time interface verification.
var (
	_ IngestionRepository = (*PgIngestionRepository)(nil)
	_ BudgetRepository    = (*PgBudgetRepository)(nil)
)

// PgIngestionRepository is a PostgreSQL implementation of IngestionRepository.
type PgIngestionRepository struct {
	db DBTX
}

// NewPgIngestionRepository creates a new PostgreSQL ingestion repository.
func NewPgIngestionRepository(db DBTX) *PgIngestionRepository {
	return &PgIngestionRepository{db: db}
}

// StartRun creates or resumes the ledger row for (runDate, category).
func (r *PgIngestionRepository) StartRun(ctx context.Context, runDate time.Time, category string, kind domain.IngestionRunKind) (*domain.IngestionRun, error) {
	if category == "" {
		return nil, domain.NewValidationError("category", "category is required")
	}

	query := `
		INSERT INTO ingestion_runs (id, run_date, category, kind, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'running', now(), now())
		ON CONFLICT (run_date, category) DO UPDATE SET
			status = 'running',
			kind = EXCLUDED.kind,
			error_detail = NULL,
			updated_at = now()
		RETURNING id, run_date, category, kind, status, expected_count,
			fetched_count, inserted_count, duplicate_count, resume_cursor,
			error_detail, created_at, updated_at`

	var run domain.IngestionRun
	err := r.db.QueryRow(ctx, query, uuid.New(), runDate, category, kind).Scan(
		&run.ID,
		&run.RunDate,
		&run.Category,
		&run.Kind,
		&run.Status,
		&run.ExpectedCount,
		&run.FetchedCount,
		&run.InsertedCount,
		&run.DuplicateCount,
		&run.ResumeCursor,
		&run.ErrorDetail,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start ingestion run: %w", err)
	}
	return &run, nil
}

// UpdateProgress records fetch progress and the resume cursor.
func (r *PgIngestionRepository) UpdateProgress(ctx context.Context, id uuid.UUID, fetched, inserted, duplicates, cursor int) error {
	query := `
		UPDATE ingestion_runs
		SET fetched_count = $2, inserted_count = $3, duplicate_count = $4,
			resume_cursor = $5, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, fetched, inserted, duplicates, cursor)
	if err != nil {
		return fmt.Errorf("failed to update ingestion progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("ingestion run", id.String())
	}
	return nil
}

// FinishRun marks the run terminal with an optional error detail.
func (r *PgIngestionRepository) FinishRun(ctx context.Context, id uuid.UUID, status domain.IngestionRunStatus, errDetail *string) error {
	query := `UPDATE ingestion_runs SET status = $2, error_detail = $3, updated_at = now() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status, errDetail)
	if err != nil {
		return fmt.Errorf("failed to finish ingestion run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("ingestion run", id.String())
	}
	return nil
}

// ListRuns returns ledger rows with run dates in [from, to].
func (r *PgIngestionRepository) ListRuns(ctx context.Context, from, to time.Time) ([]*domain.IngestionRun, error) {
	query := `
		SELECT id, run_date, category, kind, status, expected_count,
			fetched_count, inserted_count, duplicate_count, resume_cursor,
			error_detail, created_at, updated_at
		FROM ingestion_runs
		WHERE run_date >= $1::date AND run_date <= $2::date
		ORDER BY run_date, category`

	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.IngestionRun
	for rows.Next() {
		var run domain.IngestionRun
		if err := rows.Scan(
			&run.ID, &run.RunDate, &run.Category, &run.Kind, &run.Status,
			&run.ExpectedCount, &run.FetchedCount, &run.InsertedCount,
			&run.DuplicateCount, &run.ResumeCursor, &run.ErrorDetail,
			&run.CreatedAt, &run.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ingestion run: %w", err)
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ingestion runs: %w", err)
	}
	return runs, nil
}

// PgBudgetRepository is a PostgreSQL implementation of BudgetRepository.
type PgBudgetRepository struct {
	db DBTX
}

// NewPgBudgetRepository creates a new PostgreSQL budget repository.
func NewPgBudgetRepository(db DBTX) *PgBudgetRepository {
	return &PgBudgetRepository{db: db}
}

// AddSpend adds cents to the given day's spend row, creating it if needed.
func (r *PgBudgetRepository) AddSpend(ctx context.Context, day time.Time, cents int64) error {
	if cents < 0 {
		return domain.NewValidationError("cents", "spend cannot be negative")
	}

	query := `
		INSERT INTO budget_spend (spend_date, spent_cents, updated_at)
		VALUES ($1::date, $2, now())
		ON CONFLICT (spend_date) DO UPDATE SET
			spent_cents = budget_spend.spent_cents + EXCLUDED.spent_cents,
			updated_at = now()`

	if _, err := r.db.Exec(ctx, query, day, cents); err != nil {
		return fmt.Errorf("failed to add budget spend: %w", err)
	}
	return nil
}

// SpentBetween sums spend for days in [from, to], inclusive.
func (r *PgBudgetRepository) SpentBetween(ctx context.Context, from, to time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(spent_cents), 0)
		FROM budget_spend
		WHERE spend_date >= $1::date AND spend_date <= $2::date`

	var total int64
	if err := r.db.QueryRow(ctx, query, from, to).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum budget spend: %w", err)
	}
	return total, nil
}
