package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// PaperFilter narrows List queries.
type PaperFilter struct {
	Category      string
	PublishedFrom *time.Time
	PublishedTo   *time.Time
	Limit         int
	Offset        int
}

// DayCount is a per-day published-paper count used by gap detection.
type DayCount struct {
	Date  time.Time
	Count int
}

// CoverageCounts reports how many papers have an analysis at a given version.
type CoverageCounts struct {
	TotalPapers    int
	AnalyzedPapers int
}

// PaperRepository manages paper persistence and deduplication.
type PaperRepository interface {
	// Insert stores a new paper. A duplicate (source, external_id) returns
	// domain.ErrAlreadyExists.
	Insert(ctx context.Context, paper *domain.Paper) (*domain.Paper, error)

	// ExistsByExternalID reports whether a paper with the given identity exists.
	ExistsByExternalID(ctx context.Context, source domain.PaperSource, externalID string) (bool, error)

	// GetByID retrieves a paper by its UUID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Paper, error)

	// GetByExternalID retrieves a paper by (source, external_id).
	GetByExternalID(ctx context.Context, source domain.PaperSource, externalID string) (*domain.Paper, error)

	// List returns papers matching the filter, newest first.
	List(ctx context.Context, filter PaperFilter) ([]*domain.Paper, error)

	// ListIDsWithoutAnalysis returns up to limit paper IDs lacking an
	// analysis at the given version, oldest first.
	ListIDsWithoutAnalysis(ctx context.Context, version string, limit int) ([]uuid.UUID, error)

	// CountsByPublishedDay returns per-day paper counts for published dates
	// in [from, to], inclusive. Days with zero papers are absent.
	CountsByPublishedDay(ctx context.Context, from, to time.Time) ([]DayCount, error)

	// UpdateSummary stores the short AI summary on a paper row.
	UpdateSummary(ctx context.Context, id uuid.UUID, summary, model string) error

	// Coverage reports analysis coverage at the given version.
	Coverage(ctx context.Context, version string) (CoverageCounts, error)
}
