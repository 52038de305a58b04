package papersources

import (
	"context"
	"time"

	"github.com/paperpulse/analysis-service/internal/domain"
)

// Page is one page of fetched papers plus the pagination state needed to
// resume a backfill from the ingestion ledger's cursor.
type Page struct {
	Papers       []*domain.Paper
	TotalResults int
	NextOffset   int
	HasMore      bool
}

// PaperSource is a queryable external paper API. Implementations rate-limit
// themselves; callers treat every method as a slow network call.
type PaperSource interface {
	// FetchRecent returns the newest papers in a category, newest first.
	FetchRecent(ctx context.Context, category string, maxResults int) (*Page, error)

	// FetchRange returns papers in a category submitted within [from, to],
	// starting at offset for cursor-based resume.
	FetchRange(ctx context.Context, category string, from, to time.Time, offset, maxResults int) (*Page, error)

	// GetByExternalID retrieves one paper by its source-native identifier.
	GetByExternalID(ctx context.Context, externalID string) (*domain.Paper, error)

	// Source identifies which source the papers come from.
	Source() domain.PaperSource
}
