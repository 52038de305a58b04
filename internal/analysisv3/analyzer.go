// Package analysisv3 implements the simplified, budget-gated v3 analysis
// pipeline. Unlike v1 it never fails a job on validation: after one retry
// with feedback, it degrades to a best-effort partial record so batch
// counters always reach a terminal state.
package analysisv3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/llm"
	"github.com/paperpulse/analysis-service/internal/observability"
	"github.com/paperpulse/analysis-service/internal/repository"
)

// AnalyzeRequest identifies one v3 analysis job.
type AnalyzeRequest struct {
	PaperID uuid.UUID
	// Force re-runs the analysis even when one already exists at the current
	// schema version; the prior row is deleted first.
	Force bool
}

// Result is the outcome of one v3 job.
type Result struct {
	// Skipped is true when an analysis already existed and Force was not set.
	Skipped  bool
	Analysis *domain.V3Analysis
}

// Analyzer runs the v3 pipeline.
type Analyzer struct {
	papers   repository.PaperRepository
	analyses repository.V3AnalysisRepository
	client   llm.Client
	version  string
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewAnalyzer creates an Analyzer; metrics may be nil in tests.
func NewAnalyzer(
	papers repository.PaperRepository,
	analyses repository.V3AnalysisRepository,
	client llm.Client,
	version string,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Analyzer {
	if version == "" {
		version = domain.AnalysisVersionV3
	}
	return &Analyzer{
		papers:   papers,
		analyses: analyses,
		client:   client,
		version:  version,
		metrics:  metrics,
		logger:   logger.With().Str("component", "analysis-v3").Logger(),
	}
}

// Analyze runs the v3 pipeline for one paper. Validation failures degrade to
// a partial record rather than failing; only infrastructure errors (store or
// LLM transport) are returned for the queue to retry.
func (a *Analyzer) Analyze(ctx context.Context, req AnalyzeRequest) (*Result, error) {
	started := time.Now()
	logger := a.logger.With().Stringer("paper_id", req.PaperID).Logger()

	existing, err := a.analyses.GetByPaperAndVersion(ctx, req.PaperID, a.version)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if existing != nil {
		if !req.Force {
			logger.Debug().Str("version", a.version).Msg("v3 analysis already exists, skipping")
			if a.metrics != nil {
				a.metrics.RecordAnalysisSkipped(a.version)
			}
			return &Result{Skipped: true, Analysis: existing}, nil
		}
		if err := a.analyses.DeleteByPaperAndVersion(ctx, req.PaperID, a.version); err != nil {
			return nil, fmt.Errorf("failed to delete prior analysis for re-run: %w", err)
		}
	}

	paper, err := a.papers.GetByID(ctx, req.PaperID)
	if err != nil {
		return nil, fmt.Errorf("failed to load paper: %w", err)
	}

	systemPrompt, userPrompt := BuildPrompt(paper)

	outcome, tokens, err := a.generate(ctx, paper, systemPrompt, userPrompt, logger)
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordAnalysisFailed(a.version)
		}
		return nil, err
	}

	issues, _ := outcome.Partial()
	analysis := &domain.V3Analysis{
		PaperID:         req.PaperID,
		AnalysisVersion: a.version,
		Model:           a.client.Model(),
		Status:          outcome.Status(),
		Card:            outcome.Card(),
		Issues:          issues,
		PromptHash:      PromptHash(systemPrompt, userPrompt),
		TokensUsed:      tokens,
	}

	if err := a.analyses.Insert(ctx, analysis); err != nil {
		// A concurrent worker finished the same (paper, version) first.
		if errors.Is(err, domain.ErrAlreadyExists) {
			winner, getErr := a.analyses.GetByPaperAndVersion(ctx, req.PaperID, a.version)
			if getErr != nil {
				return nil, fmt.Errorf("failed to load concurrent analysis: %w", getErr)
			}
			return &Result{Skipped: true, Analysis: winner}, nil
		}
		return nil, fmt.Errorf("failed to persist analysis: %w", err)
	}

	if a.metrics != nil {
		a.metrics.RecordAnalysisCompleted(a.version, string(analysis.Status), time.Since(started).Seconds())
	}
	logger.Info().
		Str("status", string(analysis.Status)).
		Int("issues", len(issues)).
		Int64("tokens", tokens).
		Msg("v3 analysis persisted")

	return &Result{Analysis: analysis}, nil
}

// generate calls the LLM at temperature 0 and validates strictly, retrying
// once with feedback; a second validation failure degrades to a partial
// built from the retry response.
func (a *Analyzer) generate(ctx context.Context, paper *domain.Paper, systemPrompt, userPrompt string, logger zerolog.Logger) (Outcome, int64, error) {
	content, tokens, err := a.callOnce(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Outcome{}, 0, err
	}

	card, failures, parseErr := ParseStrict(content)
	if parseErr == nil && len(failures) == 0 {
		return CompleteOutcome(card), tokens, nil
	}
	if parseErr != nil {
		failures = []domain.ValidationIssue{{Field: "response", Message: parseErr.Error(), Severity: severityError}}
	}

	logger.Warn().Int("failures", len(failures)).Msg("v3 validation failed, retrying with feedback")
	if a.metrics != nil {
		a.metrics.RecordAnalysisRetry(a.version)
	}

	retryContent, retryTokens, err := a.callOnce(ctx, systemPrompt, BuildRetryPrompt(userPrompt, failures))
	tokens += retryTokens
	if err != nil {
		return Outcome{}, 0, err
	}

	retryCard, retryFailures, retryParseErr := ParseStrict(retryContent)
	if retryParseErr == nil && len(retryFailures) == 0 {
		return CompleteOutcome(retryCard), tokens, nil
	}
	if retryParseErr != nil {
		retryFailures = []domain.ValidationIssue{{Field: "response", Message: retryParseErr.Error(), Severity: severityError}}
	}

	// Double failure: degrade to a best-effort partial so the job still
	// completes and the batch reaches a terminal state.
	logger.Warn().Int("failures", len(retryFailures)).Msg("v3 validation failed twice, degrading to partial")
	return BuildPartial(retryContent, paper, retryFailures), tokens, nil
}

func (a *Analyzer) callOnce(ctx context.Context, systemPrompt, userPrompt string) (string, int64, error) {
	started := time.Now()
	resp, err := a.client.Complete(ctx, llm.ChatRequest{
		System:      systemPrompt,
		User:        userPrompt,
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordLLMRequestFailed("analysis-v3", a.client.Model(), "api")
		}
		return "", 0, fmt.Errorf("llm call failed: %w", err)
	}
	if a.metrics != nil {
		a.metrics.RecordLLMRequest("analysis-v3", resp.Model, time.Since(started).Seconds(), resp.InputTokens, resp.OutputTokens)
	}
	return llm.StripCodeFence(resp.Content), int64(resp.InputTokens + resp.OutputTokens), nil
}
