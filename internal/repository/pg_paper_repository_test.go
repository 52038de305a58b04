package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// Helper to create a valid paper for testing.
func newTestPaper() *domain.Paper {
	now := time.Now().UTC()
	return &domain.Paper{
		ID:              uuid.New(),
		Source:          domain.PaperSourceArXiv,
		ExternalID:      "2401.12345",
		Title:           "Scaling Something Interesting",
		Abstract:        "We show a result. It holds under mild assumptions.",
		Authors:         []string{"Ada Lovelace", "Edsger Dijkstra"},
		Categories:      []string{"cs.AI", "cs.LG"},
		PrimaryCategory: "cs.AI",
		PDFURL:          "https://arxiv.org/pdf/2401.12345",
		PublishedAt:     now.AddDate(0, 0, -1),
		FetchedAt:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func paperRows(p *domain.Paper) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "source", "external_id", "title", "abstract", "authors",
		"categories", "primary_category", "pdf_url", "published_at", "fetched_at",
		"summary", "summary_model", "created_at", "updated_at",
	}).AddRow(
		p.ID, p.Source, p.ExternalID, p.Title, p.Abstract, p.Authors,
		p.Categories, p.PrimaryCategory, p.PDFURL, p.PublishedAt, p.FetchedAt,
		p.Summary, p.SummaryModel, p.CreatedAt, p.UpdatedAt,
	)
}

func TestPgPaperRepository_Insert(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts paper successfully", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper()

		mock.ExpectQuery("INSERT INTO papers").
			WithArgs(
				pgxmock.AnyArg(), paper.Source, paper.ExternalID, paper.Title,
				paper.Abstract, paper.Authors, paper.Categories, paper.PrimaryCategory,
				paper.PDFURL, paper.PublishedAt, pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(paper.ID, paper.CreatedAt, paper.UpdatedAt))

		result, err := repo.Insert(ctx, paper)
		require.NoError(t, err)
		assert.Equal(t, paper.ExternalID, result.ExternalID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps unique violation to already exists", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper()

		mock.ExpectQuery("INSERT INTO papers").
			WithArgs(
				pgxmock.AnyArg(), paper.Source, paper.ExternalID, paper.Title,
				paper.Abstract, paper.Authors, paper.Categories, paper.PrimaryCategory,
				paper.PDFURL, paper.PublishedAt, pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		_, err = repo.Insert(ctx, paper)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})

	t.Run("rejects nil paper", func(t *testing.T) {
		repo := NewPgPaperRepository(nil)
		_, err := repo.Insert(ctx, nil)

		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
	})

	t.Run("rejects missing external ID", func(t *testing.T) {
		repo := NewPgPaperRepository(nil)
		paper := newTestPaper()
		paper.ExternalID = ""

		_, err := repo.Insert(ctx, paper)
		var validationErr *domain.ValidationError
		require.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "external_id", validationErr.Field)
	})
}

func TestPgPaperRepository_ExistsByExternalID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns true when present", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(domain.PaperSourceArXiv, "2401.99999").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := repo.ExistsByExternalID(ctx, domain.PaperSourceArXiv, "2401.99999")
		require.NoError(t, err)
		assert.True(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns false when absent", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(domain.PaperSourceArXiv, "2401.00000").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		exists, err := repo.ExistsByExternalID(ctx, domain.PaperSourceArXiv, "2401.00000")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestPgPaperRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns paper when found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper()

		mock.ExpectQuery("SELECT (.+) FROM papers WHERE id").
			WithArgs(paper.ID).
			WillReturnRows(paperRows(paper))

		result, err := repo.GetByID(ctx, paper.ID)
		require.NoError(t, err)
		assert.Equal(t, paper.Title, result.Title)
		assert.Equal(t, paper.Categories, result.Categories)
	})

	t.Run("maps no rows to not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		id := uuid.New()

		mock.ExpectQuery("SELECT (.+) FROM papers WHERE id").
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.GetByID(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgPaperRepository_CountsByPublishedDay(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgPaperRepository(mock)
	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT published_at::date AS day").
		WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"day", "count"}).
			AddRow(from, 120).
			AddRow(from.AddDate(0, 0, 2), 18))

	counts, err := repo.CountsByPublishedDay(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, 120, counts[0].Count)
	assert.Equal(t, 18, counts[1].Count)
}

func TestPgPaperRepository_UpdateSummary(t *testing.T) {
	ctx := context.Background()

	t.Run("updates existing paper", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE papers SET summary").
			WithArgs(id, "short summary", "gpt-4o-mini").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.UpdateSummary(ctx, id, "short summary", "gpt-4o-mini")
		require.NoError(t, err)
	})

	t.Run("maps missing paper to not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE papers SET summary").
			WithArgs(id, "s", "m").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = repo.UpdateSummary(ctx, id, "s", "m")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgPaperRepository_Coverage(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgPaperRepository(mock)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(domain.AnalysisVersionV3).
		WillReturnRows(pgxmock.NewRows([]string{"total", "analyzed"}).AddRow(200, 150))

	c, err := repo.Coverage(ctx, domain.AnalysisVersionV3)
	require.NoError(t, err)
	assert.Equal(t, 200, c.TotalPapers)
	assert.Equal(t, 150, c.AnalyzedPapers)
}
