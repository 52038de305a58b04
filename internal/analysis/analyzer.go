// Package analysis implements the v1 "paper card" pipeline: an evidence-
// anchored structured analysis derived from one LLM call per paper, with a
// two-phase parse, a single retry with validation feedback, and a three-tier
// quality status.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/llm"
	"github.com/paperpulse/analysis-service/internal/observability"
	"github.com/paperpulse/analysis-service/internal/repository"
)

// lowConfidenceThreshold is the cutoff below which either top-level
// confidence demotes the status to low_confidence.
const lowConfidenceThreshold = 0.4

// statusSuffixPattern strips a trailing parenthesized or bracketed status
// annotation the model sometimes appends to taxonomy names, e.g.
// "Customer Support (provisional)".
var statusSuffixPattern = regexp.MustCompile(`\s*[(\[](?i:active|provisional|deprecated)[)\]]\s*$`)

// AnalyzeRequest identifies one analysis job.
type AnalyzeRequest struct {
	PaperID uuid.UUID
	// Force re-runs the analysis even when one already exists at the current
	// schema version; the prior row is deleted first.
	Force bool
}

// Result is the outcome of one analysis job.
type Result struct {
	// Skipped is true when an analysis already existed and Force was not set.
	Skipped  bool
	Analysis *domain.PaperCardAnalysis
}

// Analyzer runs the v1 paper card pipeline.
type Analyzer struct {
	papers   repository.PaperRepository
	analyses repository.AnalysisRepository
	client   llm.Client
	version  string
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewAnalyzer creates an Analyzer. version is the schema version stamped on
// every row and used for the idempotency check; metrics may be nil in tests.
func NewAnalyzer(
	papers repository.PaperRepository,
	analyses repository.AnalysisRepository,
	client llm.Client,
	version string,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Analyzer {
	if version == "" {
		version = domain.AnalysisVersionV1
	}
	return &Analyzer{
		papers:   papers,
		analyses: analyses,
		client:   client,
		version:  version,
		metrics:  metrics,
		logger:   logger.With().Str("component", "analysis-v1").Logger(),
	}
}

// Analyze runs the full pipeline for one paper: idempotency check, prompt
// build, LLM call at temperature 0, validation with one feedback retry,
// status derivation, persist, then taxonomy mapping and proposal insert.
//
// A response that still fails strict validation after the retry returns an
// error wrapping domain.ErrAnalysisInvalid; the job queue retries or fails
// the job, nothing is persisted.
func (a *Analyzer) Analyze(ctx context.Context, req AnalyzeRequest) (*Result, error) {
	started := time.Now()
	logger := a.logger.With().Stringer("paper_id", req.PaperID).Logger()

	existing, err := a.analyses.GetByPaperAndVersion(ctx, req.PaperID, a.version)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if existing != nil {
		if !req.Force {
			logger.Debug().Str("version", a.version).Msg("analysis already exists, skipping")
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

	taxonomyNames, err := a.analyses.ListActiveTaxonomyNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}

	systemPrompt, userPrompt, sentenceCount := BuildCardPrompt(paper, taxonomyNames)

	parse, tokens, err := a.generate(ctx, systemPrompt, userPrompt, sentenceCount, logger)
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordAnalysisFailed(a.version)
		}
		return nil, err
	}

	status := deriveStatus(parse)
	mappings := a.applyTaxonomy(ctx, parse.card.UseCaseMappings, logger)
	parse.card.UseCaseMappings = mappings
	a.insertProposal(ctx, parse.card.ProposedCategory, logger)

	analysis := &domain.PaperCardAnalysis{
		PaperID:         req.PaperID,
		AnalysisVersion: a.version,
		Model:           a.client.Model(),
		Status:          status,
		Card:            parse.card,
		Issues:          parse.issues,
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
		a.metrics.RecordAnalysisCompleted(a.version, string(status), time.Since(started).Seconds())
	}
	logger.Info().
		Str("status", string(status)).
		Int("issues", len(parse.issues)).
		Int64("tokens", tokens).
		Msg("analysis persisted")

	return &Result{Analysis: analysis}, nil
}

// generate calls the LLM at temperature 0 and validates the response,
// retrying exactly once with the validation errors appended to the prompt.
func (a *Analyzer) generate(ctx context.Context, systemPrompt, userPrompt string, sentenceCount int, logger zerolog.Logger) (*cardParse, int64, error) {
	parse, tokens, failures, err := a.callOnce(ctx, systemPrompt, userPrompt, sentenceCount)
	if err != nil {
		return nil, 0, err
	}
	if len(failures) == 0 {
		return parse, tokens, nil
	}

	logger.Warn().Int("failures", len(failures)).Msg("validation failed, retrying with feedback")
	if a.metrics != nil {
		a.metrics.RecordAnalysisRetry(a.version)
	}

	retryPrompt := BuildRetryPrompt(userPrompt, failures)
	retryParse, retryTokens, retryFailures, err := a.callOnce(ctx, systemPrompt, retryPrompt, sentenceCount)
	tokens += retryTokens
	if err != nil {
		return nil, 0, err
	}
	if len(retryFailures) > 0 {
		return nil, 0, fmt.Errorf("%w: %d validation failures after retry (first: %s: %s)",
			domain.ErrAnalysisInvalid, len(retryFailures), retryFailures[0].Field, retryFailures[0].Message)
	}
	return retryParse, tokens, nil
}

// callOnce performs a single LLM round trip and parse. It returns hard
// validation failures separately so the caller decides whether to retry.
func (a *Analyzer) callOnce(ctx context.Context, systemPrompt, userPrompt string, sentenceCount int) (*cardParse, int64, []domain.ValidationIssue, error) {
	started := time.Now()
	resp, err := a.client.Complete(ctx, llm.ChatRequest{
		System:      systemPrompt,
		User:        userPrompt,
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordLLMRequestFailed("analysis-v1", a.client.Model(), llmErrorType(err))
		}
		return nil, 0, nil, fmt.Errorf("llm call failed: %w", err)
	}
	if a.metrics != nil {
		a.metrics.RecordLLMRequest("analysis-v1", resp.Model, time.Since(started).Seconds(), resp.InputTokens, resp.OutputTokens)
	}
	tokens := int64(resp.InputTokens + resp.OutputTokens)

	content := llm.StripCodeFence(resp.Content)
	if content == "" {
		return nil, tokens, []domain.ValidationIssue{{
			Field:    "response",
			Message:  "empty completion",
			Severity: severityError,
		}}, nil
	}

	parse, err := ParseCard(content, sentenceCount)
	if err != nil {
		// Unparseable JSON is a validation failure eligible for the retry,
		// not a transport error.
		return nil, tokens, []domain.ValidationIssue{{
			Field:    "response",
			Message:  err.Error(),
			Severity: severityError,
		}}, nil
	}

	return parse, tokens, parse.hardFailures(), nil
}

// deriveStatus classifies the analysis quality. low_confidence applies when
// either top-level confidence is below the threshold; partial applies when
// any field was missing or coerced. Partial is checked last and wins when
// both hold.
func deriveStatus(parse *cardParse) domain.AnalysisStatus {
	status := domain.AnalysisStatusComplete
	if parse.card.RoleConfidence < lowConfidenceThreshold ||
		parse.card.TimeToValueConfidence < lowConfidenceThreshold {
		status = domain.AnalysisStatusLowConfidence
	}
	if parse.hasCoercions() {
		status = domain.AnalysisStatusPartial
	}
	return status
}

// applyTaxonomy matches each mapping against the taxonomy by exact name
// after stripping any trailing status suffix. Unmatched names are logged and
// dropped; matches increment the entry's usage counter.
func (a *Analyzer) applyTaxonomy(ctx context.Context, mappings []domain.UseCaseMapping, logger zerolog.Logger) []domain.UseCaseMapping {
	kept := make([]domain.UseCaseMapping, 0, len(mappings))
	for _, mapping := range mappings {
		name := StripStatusSuffix(mapping.Name)
		entry, err := a.analyses.GetTaxonomyByName(ctx, name)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				logger.Warn().Str("name", mapping.Name).Msg("use-case mapping has no taxonomy entry, dropped")
				continue
			}
			logger.Error().Err(err).Str("name", name).Msg("taxonomy lookup failed, mapping dropped")
			continue
		}
		if err := a.analyses.IncrementTaxonomyUsage(ctx, entry.ID); err != nil {
			logger.Error().Err(err).Str("name", name).Msg("failed to increment taxonomy usage")
		}
		mapping.Name = name
		kept = append(kept, mapping)
	}
	return kept
}

// insertProposal stores the model's proposed category as provisional. Name
// collisions and insert errors are logged, never fatal.
func (a *Analyzer) insertProposal(ctx context.Context, proposed *domain.ProposedCategory, logger zerolog.Logger) {
	if proposed == nil {
		return
	}
	entry := &domain.TaxonomyEntry{
		Name:       StripStatusSuffix(proposed.Name),
		Definition: proposed.Definition,
		Synonyms:   proposed.Synonyms,
		Status:     domain.TaxonomyStatusProvisional,
	}
	if err := a.analyses.InsertProvisionalTaxonomy(ctx, entry); err != nil {
		logger.Error().Err(err).Str("name", entry.Name).Msg("failed to insert proposed taxonomy entry")
		return
	}
	logger.Info().Str("name", entry.Name).Msg("provisional taxonomy entry proposed")
}

// StripStatusSuffix removes a trailing "(provisional)"-style annotation from
// a taxonomy name.
func StripStatusSuffix(name string) string {
	return strings.TrimSpace(statusSuffixPattern.ReplaceAllString(name, ""))
}

// llmErrorType labels an LLM failure for metrics.
func llmErrorType(err error) string {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Type != "" {
			return apiErr.Type
		}
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	}
	return "other"
}
