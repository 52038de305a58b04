package activities

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/activity"

	"github.com/paperpulse/analysis-service/internal/mentions"
)

// MentionActivities runs the social-monitor and news-fetch sweeps. The two
// families get their own aggregators so their rate limits stay independent.
type MentionActivities struct {
	social *mentions.Aggregator
	news   *mentions.Aggregator
}

// NewMentionActivities creates the mention activity set.
func NewMentionActivities(social, news *mentions.Aggregator) *MentionActivities {
	return &MentionActivities{social: social, news: news}
}

// SearchSocialMentions sweeps the social platforms for mentions of the
// paper. Individual platform failures are reported inside the result, never
// as an activity error.
func (a *MentionActivities) SearchSocialMentions(ctx context.Context, input MentionInput) (*mentions.Report, error) {
	return a.sweep(ctx, a.social, "social", input)
}

// SearchNewsMentions sweeps the news sources for coverage of the paper.
func (a *MentionActivities) SearchNewsMentions(ctx context.Context, input MentionInput) (*mentions.Report, error) {
	return a.sweep(ctx, a.news, "news", input)
}

func (a *MentionActivities) sweep(ctx context.Context, agg *mentions.Aggregator, kind string, input MentionInput) (*mentions.Report, error) {
	query := strings.TrimSpace(input.Title)
	if query == "" {
		query = fmt.Sprintf("arxiv %s", input.ExternalID)
	}

	report := agg.SearchAll(ctx, query)

	activity.GetLogger(ctx).Info("mention sweep finished",
		"kind", kind,
		"external_id", input.ExternalID,
		"total", report.Total,
		"failed_platforms", report.Failed,
	)
	return report, nil
}
