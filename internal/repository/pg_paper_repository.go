package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

const paperColumns = `id, source, external_id, title, abstract, authors,
	categories, primary_category, pdf_url, published_at, fetched_at,
	summary, summary_model, created_at, updated_at`

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db DBTX
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db DBTX) *PgPaperRepository {
	return &PgPaperRepository{db: db}
}

// Insert stores a new paper. Duplicates map to domain.AlreadyExistsError.
func (r *PgPaperRepository) Insert(ctx context.Context, paper *domain.Paper) (*domain.Paper, error) {
	if paper == nil {
		return nil, domain.NewValidationError("paper", "paper cannot be nil")
	}
	if paper.ExternalID == "" {
		return nil, domain.NewValidationError("external_id", "external ID is required")
	}
	if paper.Title == "" {
		return nil, domain.NewValidationError("title", "title is required")
	}

	if paper.ID == uuid.Nil {
		paper.ID = uuid.New()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO papers (
			id, source, external_id, title, abstract, authors,
			categories, primary_category, pdf_url, published_at, fetched_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		paper.ID,
		paper.Source,
		paper.ExternalID,
		paper.Title,
		paper.Abstract,
		paper.Authors,
		paper.Categories,
		paper.PrimaryCategory,
		paper.PDFURL,
		paper.PublishedAt,
		now,
		now,
		now,
	).Scan(&paper.ID, &paper.CreatedAt, &paper.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.NewAlreadyExistsError("paper", paper.ExternalID)
		}
		return nil, fmt.Errorf("failed to insert paper: %w", err)
	}

	paper.FetchedAt = now
	return paper, nil
}

// ExistsByExternalID reports whether a paper with the given identity exists.
func (r *PgPaperRepository) ExistsByExternalID(ctx context.Context, source domain.PaperSource, externalID string) (bool, error) {
	if externalID == "" {
		return false, domain.NewValidationError("external_id", "external ID is required")
	}

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM papers WHERE source = $1 AND external_id = $2)`
	if err := r.db.QueryRow(ctx, query, source, externalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check paper existence: %w", err)
	}
	return exists, nil
}

// GetByID retrieves a paper by its UUID.
func (r *PgPaperRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Paper, error) {
	query := `SELECT ` + paperColumns + ` FROM papers WHERE id = $1`

	paper, err := scanPaper(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", id.String())
		}
		return nil, fmt.Errorf("failed to get paper by ID: %w", err)
	}
	return paper, nil
}

// GetByExternalID retrieves a paper by (source, external_id).
func (r *PgPaperRepository) GetByExternalID(ctx context.Context, source domain.PaperSource, externalID string) (*domain.Paper, error) {
	if externalID == "" {
		return nil, domain.NewValidationError("external_id", "external ID is required")
	}

	query := `SELECT ` + paperColumns + ` FROM papers WHERE source = $1 AND external_id = $2`

	paper, err := scanPaper(r.db.QueryRow(ctx, query, source, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", externalID)
		}
		return nil, fmt.Errorf("failed to get paper by external ID: %w", err)
	}
	return paper, nil
}

// List returns papers matching the filter, newest first.
func (r *PgPaperRepository) List(ctx context.Context, filter PaperFilter) ([]*domain.Paper, error) {
	applyPaginationDefaults(&filter.Limit, &filter.Offset)

	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(categories)", argPos))
		args = append(args, filter.Category)
		argPos++
	}
	if filter.PublishedFrom != nil {
		conditions = append(conditions, fmt.Sprintf("published_at >= $%d", argPos))
		args = append(args, *filter.PublishedFrom)
		argPos++
	}
	if filter.PublishedTo != nil {
		conditions = append(conditions, fmt.Sprintf("published_at <= $%d", argPos))
		args = append(args, *filter.PublishedTo)
		argPos++
	}

	query := `SELECT ` + paperColumns + ` FROM papers`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY published_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	var papers []*domain.Paper
	for rows.Next() {
		paper, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}
		papers = append(papers, paper)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate papers: %w", err)
	}
	return papers, nil
}

// ListIDsWithoutAnalysis returns paper IDs lacking a v3 analysis at the
// given version, oldest first.
func (r *PgPaperRepository) ListIDsWithoutAnalysis(ctx context.Context, version string, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = defaultFilterLimit
	}

	query := `
		SELECT p.id FROM papers p
		LEFT JOIN v3_analyses a ON a.paper_id = p.id AND a.analysis_version = $1
		WHERE a.id IS NULL
		ORDER BY p.published_at ASC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, version, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unanalyzed papers: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan paper ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate paper IDs: %w", err)
	}
	return ids, nil
}

// CountsByPublishedDay returns per-day paper counts for published dates in
// [from, to]. Days with zero papers are absent from the result.
func (r *PgPaperRepository) CountsByPublishedDay(ctx context.Context, from, to time.Time) ([]DayCount, error) {
	query := `
		SELECT published_at::date AS day, COUNT(*)
		FROM papers
		WHERE published_at::date >= $1::date AND published_at::date <= $2::date
		GROUP BY day
		ORDER BY day`

	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count papers by day: %w", err)
	}
	defer rows.Close()

	var counts []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan day count: %w", err)
		}
		counts = append(counts, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate day counts: %w", err)
	}
	return counts, nil
}

// UpdateSummary stores the short AI summary on a paper row.
func (r *PgPaperRepository) UpdateSummary(ctx context.Context, id uuid.UUID, summary, model string) error {
	query := `UPDATE papers SET summary = $2, summary_model = $3, updated_at = now() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, summary, model)
	if err != nil {
		return fmt.Errorf("failed to update paper summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("paper", id.String())
	}
	return nil
}

// Coverage reports analysis coverage at the given version.
func (r *PgPaperRepository) Coverage(ctx context.Context, version string) (CoverageCounts, error) {
	query := `
		SELECT COUNT(p.id),
			COUNT(a.id)
		FROM papers p
		LEFT JOIN v3_analyses a ON a.paper_id = p.id AND a.analysis_version = $1`

	var c CoverageCounts
	if err := r.db.QueryRow(ctx, query, version).Scan(&c.TotalPapers, &c.AnalyzedPapers); err != nil {
		return CoverageCounts{}, fmt.Errorf("failed to compute coverage: %w", err)
	}
	return c, nil
}

// scanPaper scans a paper row from either pgx.Row or pgx.Rows.
func scanPaper(row pgx.Row) (*domain.Paper, error) {
	var p domain.Paper
	err := row.Scan(
		&p.ID,
		&p.Source,
		&p.ExternalID,
		&p.Title,
		&p.Abstract,
		&p.Authors,
		&p.Categories,
		&p.PrimaryCategory,
		&p.PDFURL,
		&p.PublishedAt,
		&p.FetchedAt,
		&p.Summary,
		&p.SummaryModel,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
