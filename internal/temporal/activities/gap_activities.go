package activities

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/paperpulse/analysis-service/internal/gaps"
)

// GapActivities wraps the coverage gap detector.
type GapActivities struct {
	detector *gaps.Detector
}

// NewGapActivities creates the gap activity set.
func NewGapActivities(detector *gaps.Detector) *GapActivities {
	return &GapActivities{detector: detector}
}

// DetectGaps scans the trailing window and returns the weekdays whose paper
// counts fall under the threshold, oldest first.
func (a *GapActivities) DetectGaps(ctx context.Context) ([]time.Time, error) {
	dates, err := a.detector.Detect(ctx)
	if err != nil {
		return nil, err
	}

	from, to := a.detector.Window()
	activity.GetLogger(ctx).Info("gap sweep finished",
		"window_from", from.Format("2006-01-02"),
		"window_to", to.Format("2006-01-02"),
		"flagged", len(dates),
	)
	return dates, nil
}
