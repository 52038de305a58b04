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
var _ V3AnalysisRepository = (*PgV3AnalysisRepository)(nil)

// PgV3AnalysisRepository is a PostgreSQL implementation of V3AnalysisRepository.
type PgV3AnalysisRepository struct {
	db DBTX
}

// NewPgV3AnalysisRepository creates a new PostgreSQL v3 analysis repository.
func NewPgV3AnalysisRepository(db DBTX) *PgV3AnalysisRepository {
	return &PgV3AnalysisRepository{db: db}
}

// GetByPaperAndVersion returns the v3 analysis for (paper, version).
func (r *PgV3AnalysisRepository) GetByPaperAndVersion(ctx context.Context, paperID uuid.UUID, version string) (*domain.V3Analysis, error) {
	query := `
		SELECT id, paper_id, analysis_version, model, status, card, issues,
			prompt_hash, tokens_used, created_at
		FROM v3_analyses
		WHERE paper_id = $1 AND analysis_version = $2`

	var a domain.V3Analysis
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
			return nil, domain.NewNotFoundError("v3 analysis", paperID.String())
		}
		return nil, fmt.Errorf("failed to get v3 analysis: %w", err)
	}

	if err := json.Unmarshal(cardJSON, &a.Card); err != nil {
		return nil, fmt.Errorf("failed to unmarshal v3 card: %w", err)
	}
	if err := json.Unmarshal(issuesJSON, &a.Issues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal v3 issues: %w", err)
	}
	return &a, nil
}

// Insert stores a new v3 analysis row.
func (r *PgV3AnalysisRepository) Insert(ctx context.Context, analysis *domain.V3Analysis) error {
	if analysis == nil {
		return domain.NewValidationError("analysis", "analysis cannot be nil")
	}
	if analysis.ID == uuid.Nil {
		analysis.ID = uuid.New()
	}

	cardJSON, err := json.Marshal(analysis.Card)
	if err != nil {
		return fmt.Errorf("failed to marshal v3 card: %w", err)
	}
	issuesJSON, err := json.Marshal(analysis.Issues)
	if err != nil {
		return fmt.Errorf("failed to marshal v3 issues: %w", err)
	}
	if analysis.Issues == nil {
		issuesJSON = []byte("[]")
	}

	query := `
		INSERT INTO v3_analyses (
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
			return domain.NewAlreadyExistsError("v3 analysis", analysis.PaperID.String())
		}
		return fmt.Errorf("failed to insert v3 analysis: %w", err)
	}
	return nil
}

// DeleteByPaperAndVersion removes the analysis for (paper, version).
func (r *PgV3AnalysisRepository) DeleteByPaperAndVersion(ctx context.Context, paperID uuid.UUID, version string) error {
	query := `DELETE FROM v3_analyses WHERE paper_id = $1 AND analysis_version = $2`
	if _, err := r.db.Exec(ctx, query, paperID, version); err != nil {
		return fmt.Errorf("failed to delete v3 analysis: %w", err)
	}
	return nil
}
