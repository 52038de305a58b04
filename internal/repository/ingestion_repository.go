package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// IngestionRepository manages the ingestion-run ledger.
type IngestionRepository interface {
	// StartRun creates or resumes the ledger row for (runDate, category).
	// A pre-existing row keeps its resume cursor so a re-entrant backfill
	// can pick up where the previous attempt stopped.
	StartRun(ctx context.Context, runDate time.Time, category string, kind domain.IngestionRunKind) (*domain.IngestionRun, error)

	// UpdateProgress records fetch progress and the resume cursor.
	UpdateProgress(ctx context.Context, id uuid.UUID, fetched, inserted, duplicates, cursor int) error

	// FinishRun marks the run terminal with an optional error detail.
	FinishRun(ctx context.Context, id uuid.UUID, status domain.IngestionRunStatus, errDetail *string) error

	// ListRuns returns ledger rows with run dates in [from, to].
	ListRuns(ctx context.Context, from, to time.Time) ([]*domain.IngestionRun, error)
}

// BudgetRepository tracks LLM spend per calendar day.
type BudgetRepository interface {
	// AddSpend adds cents to the given day's spend row, creating it if needed.
	AddSpend(ctx context.Context, day time.Time, cents int64) error

	// SpentBetween sums spend for days in [from, to], inclusive.
	SpentBetween(ctx context.Context, from, to time.Time) (int64, error)
}
