// Package gaps detects under-filled ingestion days and plans date-based
// backfills. The sweep is stateless and deterministic: the same window and
// data always yield the same flagged dates.
package gaps

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/paperpulse/analysis-service/internal/configstore"
	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/repository"
)

const (
	// DefaultWindowDays is the trailing sweep window, ending yesterday.
	DefaultWindowDays = 30

	// DefaultThreshold is the minimum per-day paper count below which a
	// weekday is flagged as a gap. Major sources publish well above this on
	// any normal weekday.
	DefaultThreshold = 50

	// MaxBackfillSpanDays caps a manual backfill request, inclusive of both
	// endpoints.
	MaxBackfillSpanDays = 60

	// StaggerInterval spaces queued backfill jobs so the sweep does not
	// burst the external API.
	StaggerInterval = time.Minute

	// DefaultPerDateEstimate is the average observed wall time to ingest one
	// date, used to estimate backfill completion for the admin surface.
	DefaultPerDateEstimate = 2 * time.Minute
)

// Config tunes the detector; zero values fall back to the defaults.
type Config struct {
	WindowDays int
	Threshold  int
}

// Detector sweeps per-day paper counts for gaps.
type Detector struct {
	papers     repository.PaperRepository
	clock      configstore.Clock
	windowDays int
	threshold  int
	logger     zerolog.Logger
}

// NewDetector creates a Detector. A nil clock falls back to the system clock.
func NewDetector(papers repository.PaperRepository, cfg Config, clock configstore.Clock, logger zerolog.Logger) *Detector {
	if clock == nil {
		clock = configstore.SystemClock()
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultWindowDays
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Detector{
		papers:     papers,
		clock:      clock,
		windowDays: cfg.WindowDays,
		threshold:  cfg.Threshold,
		logger:     logger.With().Str("component", "gaps").Logger(),
	}
}

// Window returns the trailing sweep window [from, to], both at UTC midnight,
// with to being yesterday. Today is excluded because it is still filling.
func (d *Detector) Window() (from, to time.Time) {
	to = truncateDay(d.clock.Now()).AddDate(0, 0, -1)
	from = to.AddDate(0, 0, -(d.windowDays - 1))
	return from, to
}

// Detect returns the gap dates in the trailing window, ascending. A weekday
// whose published-paper count is below the threshold is a gap; Saturdays and
// Sundays are never flagged regardless of count.
func (d *Detector) Detect(ctx context.Context) ([]time.Time, error) {
	from, to := d.Window()

	counts, err := d.papers.CountsByPublishedDay(ctx, from, to)
	if err != nil {
		return nil, err
	}
	byDay := make(map[time.Time]int, len(counts))
	for _, c := range counts {
		byDay[truncateDay(c.Date)] = c.Count
	}

	var flagged []time.Time
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if byDay[day] < d.threshold {
			flagged = append(flagged, day)
		}
	}

	d.logger.Info().
		Time("from", from).
		Time("to", to).
		Int("flagged", len(flagged)).
		Msg("gap sweep completed")
	return flagged, nil
}

// BackfillPlan is the synchronous response to a manual backfill request.
type BackfillPlan struct {
	Dates    []time.Time
	Estimate time.Duration
}

// PlanBackfill validates an explicit date range and expands it into the
// dates to queue, plus a completion estimate. It rejects a reversed range
// and any span over MaxBackfillSpanDays before anything is enqueued. Unlike
// the sweep, a manual range includes weekends: the operator asked for them.
func PlanBackfill(start, end time.Time, perDate time.Duration) (*BackfillPlan, error) {
	start = truncateDay(start)
	end = truncateDay(end)

	if end.Before(start) {
		return nil, domain.NewValidationError("end_date", "must not be before start_date")
	}
	spanDays := int(end.Sub(start).Hours()/24) + 1
	if spanDays > MaxBackfillSpanDays {
		return nil, domain.NewValidationError("date_range", "span exceeds the 60 day maximum")
	}
	if perDate <= 0 {
		perDate = DefaultPerDateEstimate
	}

	dates := make([]time.Time, 0, spanDays)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		dates = append(dates, day)
	}
	return &BackfillPlan{
		Dates:    dates,
		Estimate: time.Duration(len(dates)) * perDate,
	}, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
