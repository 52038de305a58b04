package activities

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/paperpulse/analysis-service/internal/analysis"
	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/events"
)

// AnalysisActivities runs the per-paper LLM jobs of the summarize and
// analyze-v1 families. Validation failures surface as activity errors here;
// the family's retry policy decides what happens next.
type AnalysisActivities struct {
	analyzer   *analysis.Analyzer
	summarizer *analysis.Summarizer
	emitter    events.Emitter
}

// NewAnalysisActivities creates the v1 analysis activity set.
func NewAnalysisActivities(analyzer *analysis.Analyzer, summarizer *analysis.Summarizer, emitter events.Emitter) *AnalysisActivities {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &AnalysisActivities{analyzer: analyzer, summarizer: summarizer, emitter: emitter}
}

// AnalyzeV1 runs the strict card pipeline for one paper.
func (a *AnalysisActivities) AnalyzeV1(ctx context.Context, input AnalyzeInput) (*AnalyzeOutput, error) {
	result, err := a.analyzer.Analyze(ctx, analysis.AnalyzeRequest{PaperID: input.PaperID, Force: input.Force})
	if err != nil {
		return nil, err
	}
	if result.Skipped {
		activity.GetLogger(ctx).Info("analysis already exists, skipping", "paper_id", input.PaperID)
		return &AnalyzeOutput{Skipped: true}, nil
	}

	a.emitter.TryEmit(ctx, domain.Event{
		EventType:   domain.EventTypeAnalysisCompleted,
		AggregateID: input.PaperID.String(),
		Payload: map[string]interface{}{
			"paper_id":    input.PaperID.String(),
			"version":     result.Analysis.AnalysisVersion,
			"status":      string(result.Analysis.Status),
			"tokens_used": result.Analysis.TokensUsed,
		},
	})
	return &AnalyzeOutput{
		Status:     string(result.Analysis.Status),
		TokensUsed: result.Analysis.TokensUsed,
	}, nil
}

// SummarizePaper generates and stores the short AI summary for one paper.
func (a *AnalysisActivities) SummarizePaper(ctx context.Context, input AnalyzeInput) (*AnalyzeOutput, error) {
	skipped, err := a.summarizer.Summarize(ctx, input.PaperID, input.Force)
	if err != nil {
		return nil, err
	}
	if skipped {
		activity.GetLogger(ctx).Info("summary already exists, skipping", "paper_id", input.PaperID)
	}
	return &AnalyzeOutput{Skipped: skipped}, nil
}
