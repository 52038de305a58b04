package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/paperpulse/analysis-service/internal/mentions"
	"github.com/paperpulse/analysis-service/internal/temporal/activities"
)

// llmOptions bounds the single-call LLM activities. Budget rejections are
// terminal; transport errors retry.
func llmOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        15 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        5 * time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{"BudgetExceededError"},
		},
	})
}

// mentionOptions bounds the platform sweep activities.
func mentionOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Minute,
			BackoffCoefficient: 2.0,
			MaximumInterval:    15 * time.Minute,
			MaximumAttempts:    3,
		},
	})
}

// AnalyzeV1Workflow runs the strict card analysis for one paper.
func AnalyzeV1Workflow(ctx workflow.Context, input activities.AnalyzeInput) (*activities.AnalyzeOutput, error) {
	var act *activities.AnalysisActivities

	var output activities.AnalyzeOutput
	if err := workflow.ExecuteActivity(llmOptions(ctx), act.AnalyzeV1, input).Get(ctx, &output); err != nil {
		return nil, err
	}
	return &output, nil
}

// SummaryWorkflow generates the short AI summary for one paper.
func SummaryWorkflow(ctx workflow.Context, input activities.AnalyzeInput) (*activities.AnalyzeOutput, error) {
	var act *activities.AnalysisActivities

	var output activities.AnalyzeOutput
	if err := workflow.ExecuteActivity(llmOptions(ctx), act.SummarizePaper, input).Get(ctx, &output); err != nil {
		return nil, err
	}
	return &output, nil
}

// SocialMonitorWorkflow sweeps the social platforms for mentions of one
// paper. Enqueued once per newly ingested paper.
func SocialMonitorWorkflow(ctx workflow.Context, input activities.MentionInput) (*mentions.Report, error) {
	var act *activities.MentionActivities

	var report mentions.Report
	if err := workflow.ExecuteActivity(mentionOptions(ctx), act.SearchSocialMentions, input).Get(ctx, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// NewsFetchWorkflow sweeps the news sources for coverage of one paper.
func NewsFetchWorkflow(ctx workflow.Context, input activities.MentionInput) (*mentions.Report, error) {
	var act *activities.MentionActivities

	var report mentions.Report
	if err := workflow.ExecuteActivity(mentionOptions(ctx), act.SearchNewsMentions, input).Get(ctx, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
