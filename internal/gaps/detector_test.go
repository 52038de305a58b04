package gaps

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/repository"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubPapers struct {
	repository.PaperRepository
	counts []repository.DayCount
	from   time.Time
	to     time.Time
	err    error
}

func (s *stubPapers) CountsByPublishedDay(_ context.Context, from, to time.Time) ([]repository.DayCount, error) {
	s.from, s.to = from, to
	return s.counts, s.err
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDetector_Window(t *testing.T) {
	// Thursday noon; the window must end Wednesday and span 30 days.
	clock := fixedClock{now: time.Date(2025, 3, 20, 12, 30, 0, 0, time.UTC)}
	d := NewDetector(&stubPapers{}, Config{}, clock, zerolog.Nop())

	from, to := d.Window()
	assert.Equal(t, day("2025-03-19"), to)
	assert.Equal(t, day("2025-02-18"), from)
}

func TestDetector_Detect(t *testing.T) {
	ctx := context.Background()
	clock := fixedClock{now: time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)}

	full := func(dates ...string) []repository.DayCount {
		out := make([]repository.DayCount, 0, len(dates))
		for _, s := range dates {
			out = append(out, repository.DayCount{Date: day(s), Count: 120})
		}
		return out
	}

	t.Run("flags weekdays below the threshold", func(t *testing.T) {
		counts := full("2025-03-17", "2025-03-19")
		// Tuesday the 18th is present but thin.
		counts = append(counts, repository.DayCount{Date: day("2025-03-18"), Count: 7})
		papers := &stubPapers{counts: counts}

		d := NewDetector(papers, Config{WindowDays: 3, Threshold: 50}, clock, zerolog.Nop())
		flagged, err := d.Detect(ctx)

		require.NoError(t, err)
		assert.Equal(t, []time.Time{day("2025-03-18")}, flagged)
		assert.Equal(t, day("2025-03-17"), papers.from)
		assert.Equal(t, day("2025-03-19"), papers.to)
	})

	t.Run("absent days count as zero", func(t *testing.T) {
		papers := &stubPapers{counts: full("2025-03-19")}

		d := NewDetector(papers, Config{WindowDays: 3, Threshold: 50}, clock, zerolog.Nop())
		flagged, err := d.Detect(ctx)

		require.NoError(t, err)
		assert.Equal(t, []time.Time{day("2025-03-17"), day("2025-03-18")}, flagged)
	})

	t.Run("weekends are never flagged", func(t *testing.T) {
		// Window 2025-03-13 (Thu) through 2025-03-19 (Wed), all days empty.
		papers := &stubPapers{}

		d := NewDetector(papers, Config{WindowDays: 7, Threshold: 50}, clock, zerolog.Nop())
		flagged, err := d.Detect(ctx)

		require.NoError(t, err)
		assert.Equal(t, []time.Time{
			day("2025-03-13"), day("2025-03-14"),
			day("2025-03-17"), day("2025-03-18"), day("2025-03-19"),
		}, flagged)
		for _, f := range flagged {
			assert.NotEqual(t, time.Saturday, f.Weekday())
			assert.NotEqual(t, time.Sunday, f.Weekday())
		}
	})

	t.Run("repeated sweeps flag the same dates", func(t *testing.T) {
		counts := []repository.DayCount{{Date: day("2025-03-18"), Count: 3}}
		d := NewDetector(&stubPapers{counts: counts}, Config{WindowDays: 7, Threshold: 50}, clock, zerolog.Nop())

		first, err := d.Detect(ctx)
		require.NoError(t, err)
		second, err := d.Detect(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("counts with timestamps normalize to the day", func(t *testing.T) {
		counts := []repository.DayCount{{Date: time.Date(2025, 3, 18, 9, 45, 0, 0, time.UTC), Count: 200}}
		papers := &stubPapers{counts: counts}

		d := NewDetector(papers, Config{WindowDays: 2, Threshold: 50}, clock, zerolog.Nop())
		flagged, err := d.Detect(ctx)

		require.NoError(t, err)
		assert.NotContains(t, flagged, day("2025-03-18"))
	})

	t.Run("store error propagates", func(t *testing.T) {
		papers := &stubPapers{err: assert.AnError}
		d := NewDetector(papers, Config{}, clock, zerolog.Nop())

		_, err := d.Detect(ctx)
		require.ErrorIs(t, err, assert.AnError)
	})
}

func TestPlanBackfill(t *testing.T) {
	t.Run("expands the range inclusively with an estimate", func(t *testing.T) {
		plan, err := PlanBackfill(day("2025-03-01"), day("2025-03-05"), time.Minute)

		require.NoError(t, err)
		require.Len(t, plan.Dates, 5)
		assert.Equal(t, day("2025-03-01"), plan.Dates[0])
		assert.Equal(t, day("2025-03-05"), plan.Dates[4])
		assert.Equal(t, 5*time.Minute, plan.Estimate)
	})

	t.Run("single day", func(t *testing.T) {
		plan, err := PlanBackfill(day("2025-03-01"), day("2025-03-01"), time.Minute)

		require.NoError(t, err)
		assert.Len(t, plan.Dates, 1)
	})

	t.Run("rejects a reversed range", func(t *testing.T) {
		_, err := PlanBackfill(day("2025-03-05"), day("2025-03-01"), time.Minute)
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("allows exactly sixty days, rejects sixty-one", func(t *testing.T) {
		start := day("2025-01-01")

		plan, err := PlanBackfill(start, start.AddDate(0, 0, 59), time.Minute)
		require.NoError(t, err)
		assert.Len(t, plan.Dates, 60)

		_, err = PlanBackfill(start, start.AddDate(0, 0, 60), time.Minute)
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("defaults the per-date estimate", func(t *testing.T) {
		plan, err := PlanBackfill(day("2025-03-01"), day("2025-03-02"), 0)

		require.NoError(t, err)
		assert.Equal(t, 2*DefaultPerDateEstimate, plan.Estimate)
	})
}
