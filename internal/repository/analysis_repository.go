package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// AnalysisRepository manages v1 paper card analyses and the use-case taxonomy.
type AnalysisRepository interface {
	// GetByPaperAndVersion returns the analysis for (paper, version), or
	// domain.ErrNotFound.
	GetByPaperAndVersion(ctx context.Context, paperID uuid.UUID, version string) (*domain.PaperCardAnalysis, error)

	// Insert stores a new analysis row. A duplicate (paper, version) returns
	// domain.ErrAlreadyExists.
	Insert(ctx context.Context, analysis *domain.PaperCardAnalysis) error

	// DeleteByPaperAndVersion removes the analysis for (paper, version).
	// Deleting a missing row is not an error.
	DeleteByPaperAndVersion(ctx context.Context, paperID uuid.UUID, version string) error

	// GetTaxonomyByName returns the taxonomy entry with the exact name, or
	// domain.ErrNotFound.
	GetTaxonomyByName(ctx context.Context, name string) (*domain.TaxonomyEntry, error)

	// ListActiveTaxonomyNames returns the names of all active taxonomy
	// entries, alphabetically. Used to seed the analysis prompt.
	ListActiveTaxonomyNames(ctx context.Context) ([]string, error)

	// IncrementTaxonomyUsage bumps the usage counter for a taxonomy entry.
	IncrementTaxonomyUsage(ctx context.Context, id uuid.UUID) error

	// InsertProvisionalTaxonomy inserts a model-proposed entry with status
	// provisional. A name collision is silently ignored.
	InsertProvisionalTaxonomy(ctx context.Context, entry *domain.TaxonomyEntry) error
}

// V3AnalysisRepository manages v3 analyses.
type V3AnalysisRepository interface {
	// GetByPaperAndVersion returns the v3 analysis for (paper, version), or
	// domain.ErrNotFound.
	GetByPaperAndVersion(ctx context.Context, paperID uuid.UUID, version string) (*domain.V3Analysis, error)

	// Insert stores a new v3 analysis row. A duplicate (paper, version)
	// returns domain.ErrAlreadyExists.
	Insert(ctx context.Context, analysis *domain.V3Analysis) error

	// DeleteByPaperAndVersion removes the analysis for (paper, version).
	DeleteByPaperAndVersion(ctx context.Context, paperID uuid.UUID, version string) error
}
