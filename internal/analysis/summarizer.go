package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paperpulse/analysis-service/internal/llm"
	"github.com/paperpulse/analysis-service/internal/observability"
	"github.com/paperpulse/analysis-service/internal/repository"
)

const summarySystemPrompt = `You summarize AI research papers for a technically literate but non-academic audience. Respond with 2-3 plain sentences: what the paper does, why it matters, and the headline result if there is one. No markdown, no preamble.`

// Summarizer produces the short plain-text AI summary stored on the paper
// row. This is the "summarize" job family, gated by the same global AI
// toggle as the v1 analysis.
type Summarizer struct {
	papers  repository.PaperRepository
	client  llm.Client
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewSummarizer creates a Summarizer; metrics may be nil in tests.
func NewSummarizer(papers repository.PaperRepository, client llm.Client, metrics *observability.Metrics, logger zerolog.Logger) *Summarizer {
	return &Summarizer{
		papers:  papers,
		client:  client,
		metrics: metrics,
		logger:  logger.With().Str("component", "summarizer").Logger(),
	}
}

// Summarize generates and stores the summary for one paper. A paper that
// already has a summary is skipped unless force is set.
func (s *Summarizer) Summarize(ctx context.Context, paperID uuid.UUID, force bool) (skipped bool, err error) {
	paper, err := s.papers.GetByID(ctx, paperID)
	if err != nil {
		return false, fmt.Errorf("failed to load paper: %w", err)
	}
	if paper.Summary != nil && *paper.Summary != "" && !force {
		return true, nil
	}

	var sb strings.Builder
	sb.WriteString("Title: ")
	sb.WriteString(paper.Title)
	sb.WriteString("\n\nAbstract:\n")
	sb.WriteString(paper.Abstract)

	started := time.Now()
	resp, err := s.client.Complete(ctx, llm.ChatRequest{
		System:      summarySystemPrompt,
		User:        sb.String(),
		Temperature: 0.3,
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordLLMRequestFailed("summarize", s.client.Model(), llmErrorType(err))
		}
		return false, fmt.Errorf("llm call failed: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordLLMRequest("summarize", resp.Model, time.Since(started).Seconds(), resp.InputTokens, resp.OutputTokens)
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return false, fmt.Errorf("llm returned an empty summary")
	}

	if err := s.papers.UpdateSummary(ctx, paperID, summary, resp.Model); err != nil {
		return false, fmt.Errorf("failed to store summary: %w", err)
	}

	s.logger.Info().Stringer("paper_id", paperID).Msg("summary stored")
	return false, nil
}
