package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// Compile-time interface verification.
var _ AnalysisRepository = (*PgAnalysisRepository)(nil)

// PgAnalysisRepository is a PostgreSQL implementation of AnalysisRepository.
type PgAnalysisRepository struct {
	db DBTX
}

// NewPgAnalysisRepository creates a new PostgreSQL analysis repository.
func NewPgAnalysisRepository(db DBTX) *PgAnalysisRepository {
	return &PgAnalysisRepository{db: db}
}

// GetByPaperAndVersion returns the analysis for (paper, version).
func (r *PgAnalysisRepository) GetByPaperAndVersion(ctx context.Context, paperID uuid.UUID, version string) (*domain.PaperCardAnalysis, error) {
	query := `
		SELECT id, paper_id, analysis_version, model, status, card, issues,
			prompt_hash, tokens_used, created_at
		FROM paper_card_analyses
		WHERE paper_id = $1 AND analysis_version = $2`

	var a domain.PaperCardAnalysis
	var cardJSON, issuesJSON []byte
	err := r.db.QueryRow(ctx, query, paperID, version).Scan(
		&a.ID,
		&a.PaperID,
		&a.AnalysisVersion,
		&a.Model,
		&a.Status,
		&cardJSON,
		&issuesJSON,
		&a.PromptHash,
		&a.TokensUsed,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("analysis", paperID.String())
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	if err := json.Unmarshal(cardJSON, &a.Card); err != nil {
		return nil, fmt.Errorf("failed to unmarshal card: %w", err)
	}
	if err := json.Unmarshal(issuesJSON, &a.Issues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal issues: %w", err)
	}
	return &a, nil
}

// Insert stores a new analysis row.
func (r *PgAnalysisRepository) Insert(ctx context.Context, analysis *domain.PaperCardAnalysis) error {
	if analysis == nil {
		return domain.NewValidationError("analysis", "analysis cannot be nil")
	}
	if analysis.ID == uuid.Nil {
		analysis.ID = uuid.New()
	}

	cardJSON, err := json.Marshal(analysis.Card)
	if err != nil {
		return fmt.Errorf("failed to marshal card: %w", err)
	}
	issuesJSON, err := json.Marshal(analysis.Issues)
	if err != nil {
		return fmt.Errorf("failed to marshal issues: %w", err)
	}
	if analysis.Issues == nil {
		issuesJSON = []byte("[]")
	}

	query := `
		INSERT INTO paper_card_analyses (
			id, paper_id, analysis_version, model, status, card, issues,
			prompt_hash, tokens_used, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		analysis.ID,
		analysis.PaperID,
		analysis.AnalysisVersion,
		analysis.Model,
		analysis.Status,
		cardJSON,
		issuesJSON,
		analysis.PromptHash,
		analysis.TokensUsed,
		time.Now().UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.NewAlreadyExistsError("analysis", analysis.PaperID.String())
		}
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

// DeleteByPaperAndVersion removes the analysis for (paper, version).
func (r *PgAnalysisRepository) DeleteByPaperAndVersion(ctx context.Context, paperID uuid.UUID, version string) error {
	query := `DELETE FROM paper_card_analyses WHERE paper_id = $1 AND analysis_version = $2`
	if _, err := r.db.Exec(ctx, query, paperID, version); err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	return nil
}

// GetTaxonomyByName returns the taxonomy entry with the exact name.
func (r *PgAnalysisRepository) GetTaxonomyByName(ctx context.Context, name string) (*domain.TaxonomyEntry, error) {
	if name == "" {
		return nil, domain.NewValidationError("name", "name is required")
	}

	query := `
		SELECT id, name, definition, inclusions, exclusions, examples,
			synonyms, status, usage_count, created_at, updated_at
		FROM taxonomy_entries
		WHERE name = $1`

	var e domain.TaxonomyEntry
	err := r.db.QueryRow(ctx, query, name).Scan(
		&e.ID,
		&e.Name,
		&e.Definition,
		&e.Inclusions,
		&e.Exclusions,
		&e.Examples,
		&e.Synonyms,
		&e.Status,
		&e.UsageCount,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("taxonomy entry", name)
		}
		return nil, fmt.Errorf("failed to get taxonomy entry: %w", err)
	}
	return &e, nil
}

// ListActiveTaxonomyNames returns the names of all active taxonomy entries.
func (r *PgAnalysisRepository) ListActiveTaxonomyNames(ctx context.Context) ([]string, error) {
	query := `SELECT name FROM taxonomy_entries WHERE status = $1 ORDER BY name`

	rows, err := r.db.Query(ctx, query, domain.TaxonomyStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list taxonomy names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan taxonomy name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate taxonomy names: %w", err)
	}
	return names, nil
}

// IncrementTaxonomyUsage bumps the usage counter for a taxonomy entry.
func (r *PgAnalysisRepository) IncrementTaxonomyUsage(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE taxonomy_entries SET usage_count = usage_count + 1, updated_at = now() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment taxonomy usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("taxonomy entry", id.String())
	}
	return nil
}

// InsertProvisionalTaxonomy inserts a model-proposed entry as provisional.
// Name collisions are silently ignored.
func (r *PgAnalysisRepository) InsertProvisionalTaxonomy(ctx context.Context, entry *domain.TaxonomyEntry) error {
	if entry == nil {
		return domain.NewValidationError("entry", "entry cannot be nil")
	}
	if entry.Name == "" {
		return domain.NewValidationError("name", "name is required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO taxonomy_entries (
			id, name, definition, inclusions, exclusions, examples,
			synonyms, status, usage_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, now(), now())
		ON CONFLICT (name) DO NOTHING`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.Name,
		entry.Definition,
		entry.Inclusions,
		entry.Exclusions,
		entry.Examples,
		entry.Synonyms,
		domain.TaxonomyStatusProvisional,
	)
	if err != nil {
		return fmt.Errorf("failed to insert provisional taxonomy entry: %w", err)
	}
	return nil
}
