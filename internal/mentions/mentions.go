// Package mentions tracks social and news coverage of ingested papers.
// Platform searches run concurrently; one platform failing never aborts the
// others, and the aggregate reports per-platform counts either way.
package mentions

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/paperpulse/analysis-service/internal/observability"
)

// Mention is one social post or news article referencing a paper.
type Mention struct {
	Platform string    `json:"platform"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	Author   string    `json:"author"`
	PostedAt time.Time `json:"posted_at"`
}

// Searcher queries one platform for mentions of a paper.
type Searcher interface {
	// Search returns mentions matching the query, typically the paper's
	// external ID or title.
	Search(ctx context.Context, query string) ([]Mention, error)

	// Platform names the platform for logging and metrics.
	Platform() string
}

// PlatformResult is one platform's outcome within an aggregate search.
type PlatformResult struct {
	Platform string    `json:"platform"`
	Mentions []Mention `json:"mentions,omitempty"`
	Count    int       `json:"count"`
	Err      string    `json:"error,omitempty"`
}

// Report aggregates a multi-platform search.
type Report struct {
	Query     string           `json:"query"`
	Platforms []PlatformResult `json:"platforms"`
	Total     int              `json:"total"`
	Failed    int              `json:"failed"`
}

// Aggregator fans a query out to every registered searcher.
type Aggregator struct {
	searchers []Searcher
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewAggregator creates an Aggregator; metrics may be nil in tests.
func NewAggregator(searchers []Searcher, metrics *observability.Metrics, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		searchers: searchers,
		metrics:   metrics,
		logger:    logger.With().Str("component", "mentions").Logger(),
	}
}

// SearchAll queries every platform concurrently and always returns a report.
// Platform errors are recorded per-platform, never returned: a paper's
// mention sweep succeeds as long as the sweep itself ran.
func (a *Aggregator) SearchAll(ctx context.Context, query string) *Report {
	results := make([]PlatformResult, len(a.searchers))
	var wg sync.WaitGroup

	for i, s := range a.searchers {
		wg.Add(1)
		go func(i int, s Searcher) {
			defer wg.Done()
			results[i] = a.searchOne(ctx, s, query)
		}(i, s)
	}
	wg.Wait()

	report := &Report{Query: query, Platforms: results}
	for _, r := range results {
		report.Total += r.Count
		if r.Err != "" {
			report.Failed++
		}
	}
	return report
}

func (a *Aggregator) searchOne(ctx context.Context, s Searcher, query string) PlatformResult {
	found, err := s.Search(ctx, query)
	if err != nil {
		a.logger.Warn().Err(err).Str("platform", s.Platform()).Str("query", query).Msg("mention search failed")
		if a.metrics != nil {
			a.metrics.RecordMentionSearch(s.Platform(), 0, true)
		}
		return PlatformResult{Platform: s.Platform(), Err: err.Error()}
	}
	if a.metrics != nil {
		a.metrics.RecordMentionSearch(s.Platform(), len(found), false)
	}
	return PlatformResult{Platform: s.Platform(), Mentions: found, Count: len(found)}
}
