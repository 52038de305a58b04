package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/llm"
	"github.com/paperpulse/analysis-service/internal/repository"
)

// stubPapers overrides only the methods the analyzer touches; embedding the
// interface makes unexpected calls panic.
type stubPapers struct {
	repository.PaperRepository
	papers map[uuid.UUID]*domain.Paper
}

func (s *stubPapers) GetByID(_ context.Context, id uuid.UUID) (*domain.Paper, error) {
	p, ok := s.papers[id]
	if !ok {
		return nil, domain.NewNotFoundError("paper", id.String())
	}
	return p, nil
}

// stubAnalyses is an in-memory AnalysisRepository.
type stubAnalyses struct {
	byPaper   map[uuid.UUID]*domain.PaperCardAnalysis
	taxonomy  map[string]*domain.TaxonomyEntry
	usage     map[string]int
	proposals []*domain.TaxonomyEntry
	deleted   int
}

func newStubAnalyses() *stubAnalyses {
	return &stubAnalyses{
		byPaper:  map[uuid.UUID]*domain.PaperCardAnalysis{},
		taxonomy: map[string]*domain.TaxonomyEntry{},
		usage:    map[string]int{},
	}
}

func (s *stubAnalyses) GetByPaperAndVersion(_ context.Context, paperID uuid.UUID, version string) (*domain.PaperCardAnalysis, error) {
	a, ok := s.byPaper[paperID]
	if !ok || a.AnalysisVersion != version {
		return nil, domain.NewNotFoundError("analysis", paperID.String())
	}
	return a, nil
}

func (s *stubAnalyses) Insert(_ context.Context, analysis *domain.PaperCardAnalysis) error {
	if _, ok := s.byPaper[analysis.PaperID]; ok {
		return domain.NewAlreadyExistsError("analysis", analysis.PaperID.String())
	}
	s.byPaper[analysis.PaperID] = analysis
	return nil
}

func (s *stubAnalyses) DeleteByPaperAndVersion(_ context.Context, paperID uuid.UUID, _ string) error {
	delete(s.byPaper, paperID)
	s.deleted++
	return nil
}

func (s *stubAnalyses) GetTaxonomyByName(_ context.Context, name string) (*domain.TaxonomyEntry, error) {
	e, ok := s.taxonomy[name]
	if !ok {
		return nil, domain.NewNotFoundError("taxonomy entry", name)
	}
	return e, nil
}

func (s *stubAnalyses) ListActiveTaxonomyNames(context.Context) ([]string, error) {
	names := make([]string, 0, len(s.taxonomy))
	for name := range s.taxonomy {
		names = append(names, name)
	}
	return names, nil
}

func (s *stubAnalyses) IncrementTaxonomyUsage(_ context.Context, id uuid.UUID) error {
	s.usage[id.String()]++
	return nil
}

func (s *stubAnalyses) InsertProvisionalTaxonomy(_ context.Context, entry *domain.TaxonomyEntry) error {
	s.proposals = append(s.proposals, entry)
	return nil
}

// stubLLM returns canned responses in order.
type stubLLM struct {
	responses []string
	errs      []error
	calls     int
	prompts   []llm.ChatRequest
}

func (s *stubLLM) Complete(_ context.Context, req llm.ChatRequest) (*llm.ChatResult, error) {
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &llm.ChatResult{
		Content:      s.responses[i],
		Model:        "test-model",
		InputTokens:  100,
		OutputTokens: 50,
	}, nil
}

func (s *stubLLM) Provider() string { return "test" }
func (s *stubLLM) Model() string    { return "test-model" }

func newTestAnalyzer(t *testing.T, papers *stubPapers, analyses *stubAnalyses, client llm.Client) *Analyzer {
	t.Helper()
	return NewAnalyzer(papers, analyses, client, domain.AnalysisVersionV1, nil, zerolog.Nop())
}

func testPaper(id uuid.UUID) *domain.Paper {
	return &domain.Paper{
		ID:         id,
		Title:      "Linear Attention at Scale",
		Abstract:   "We present a method. It is fast. It scales to long contexts. Accuracy improves by 12%.",
		Categories: []string{"cs.LG"},
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path persists a complete analysis", func(t *testing.T) {
		paperID := uuid.New()
		papers := &stubPapers{papers: map[uuid.UUID]*domain.Paper{paperID: testPaper(paperID)}}
		analyses := newStubAnalyses()
		client := &stubLLM{responses: []string{validCardJSON(nil)}}

		a := newTestAnalyzer(t, papers, analyses, client)
		result, err := a.Analyze(ctx, AnalyzeRequest{PaperID: paperID})

		require.NoError(t, err)
		require.False(t, result.Skipped)
		assert.Equal(t, domain.AnalysisStatusComplete, result.Analysis.Status)
		assert.Equal(t, domain.AnalysisVersionV1, result.Analysis.AnalysisVersion)
		assert.Equal(t, int64(150), result.Analysis.TokensUsed)
		assert.Len(t, result.Analysis.PromptHash, 64)
		assert.Equal(t, 1, client.calls)

		// The call was deterministic: temperature 0, JSON mode.
		assert.Equal(t, float64(0), client.prompts[0].Temperature)
		assert.True(t, client.prompts[0].JSONMode)
	})

	t.Run("existing analysis is skipped without an LLM call", func(t *testing.T) {
		paperID := uuid.New()
		papers := &stubPapers{papers: map[uuid.UUID]*domain.Paper{paperID: testPaper(paperID)}}
		analyses := newStubAnalyses()
		analyses.byPaper[paperID] = &domain.PaperCardAnalysis{
			PaperID:         paperID,
			AnalysisVersion: domain.AnalysisVersionV1,
			Status:          domain.AnalysisStatusComplete,
		}
		client := &stubLLM{}

		a := newTestAnalyzer(t, papers, analyses, client)
		result, err := a.Analyze(ctx, AnalyzeRequest{PaperID: paperID})

		require.NoError(t, err)
		assert.True(t, result.Skipped)
		assert.Equal(t, 0, client.calls)
	})

	t.Run("force deletes the prior row and re-analyzes", func(t *testing.T) {
		paperID := uuid.New()
		papers := &stubPapers{papers: map[uuid.UUID]*domain.Paper{paperID: testPaper(paperID)}}
		analyses := newStubAnalyses()
		analyses.byPaper[paperID] = &domain.PaperCardAnalysis{
			PaperID:         paperID,
			AnalysisVersion: domain.AnalysisVersionV1,
		}
		client := &stubLLM{responses: []string{validCardJSON(nil)}}

		a := newTestAnalyzer(t, papers, analyses, client)
		result, err := a.Analyze(ctx, AnalyzeRequest{PaperID: paperID, Force: true})

		require.NoError(t, err)
		assert.False(t, result.Skipped)
		assert.Equal(t, 1, analyses.deleted)
		assert.Equal(t, 1, client.calls)
	})

	t.Run("invalid first response retries once with feedback and succeeds", func(t *testing.T) {
		paperID := uuid.New()
		papers := &stubPapers{papers: map[uuid.UUID]*domain.Paper{paperID: testPaper(paperID)}}
		analyses := newStubAnalyses()
		client := &stubLLM{responses: []string{
			validCardJSON(map[string]string{"role": `null`}),
			validCardJSON(nil),
		}}

		a := newTestAnalyzer(t, papers, analyses, client)
		result, err := a.Analyze(ctx, AnalyzeRequest{PaperID: paperID})

		require.NoError(t, err)
		assert.Equal(t, 2, client.calls)
		assert.Equal(t, domain.AnalysisStatusComplete, result.Analysis.Status)
		// Token spend accumulates across both attempts.
		assert.Equal(t, int64(300), result.Analysis.TokensUsed)
		assert.Contains(t, client.prompts[1].User, "previous response was invalid")
		assert.Contains(t, client.prompts[1].User, "role")
	})

	t.Run("double validation failure fails the job and persists nothing", func(t *testing.T) {
		paperID := uuid.New()
		papers := &stubPapers{papers: map[uuid.UUID]*domain.Paper{paperID: testPaper(paperID)}}
		analyses := newStubAnalyses()
		client := &stubLLM{responses: []string{
			validCardJSON(map[string]string{"role": `null`}),
			"not json either",
		}}

		a := newTestAnalyzer(t, papers, analyses, client)
		_, err := a.Analyze(ctx, AnalyzeRequest{PaperID: paperID})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrAnalysisInvalid)
		assert.Empty(t, analyses.byPaper)
	})

	t.Run("low role confidence yields low_confidence status", func(t *testing.T) {
		paperID := uuid.New()
		papers := &stubPapers{papers: map[uuid.UUID]*domain.Paper{paperID: testPaper(paperID)}}
		analyses := newStubAnalyses()
		client := &stubLLM{responses: []string{validCardJSON(map[string]string{
			"role_confidence":          `0.3`,
			"time_to_value_confidence": `0.9`,
		})}}

		a := newTestAnalyzer(t, papers, analyses, client)
		result, err := a.Analyze(ctx, AnalyzeRequest{PaperID: paperID})

		require.NoError(t, err)
		assert.Equal(t, domain.AnalysisStatusLowConfidence, result.Analysis.Status)
	})

	t.Run("missing hook sentence yields partial even with high confidences", func(t *testing.T) {
		paperID := uuid.New()
		papers := &stubPapers{papers: map[uuid.UUID]*domain.Paper{paperID: testPaper(paperID)}}
		analyses := newStubAnalyses()
		client := &stubLLM{responses: []string{validCardJSON(map[string]string{
			"public_views": `{"hook_sentence": "", "tldr": "x", "paragraph": "y", "deep_dive": "z"}`,
		})}}

		a := newTestAnalyzer(t, papers, analyses, client)
		result, err := a.Analyze(ctx, AnalyzeRequest{PaperID: paperID})

		require.NoError(t, err)
		assert.Equal(t, domain.AnalysisStatusPartial, result.Analysis.Status)
	})

	t.Run("taxonomy mapping strips suffix, increments usage, drops unknown", func(t *testing.T) {
		paperID := uuid.New()
		papers := &stubPapers{papers: map[uuid.UUID]*domain.Paper{paperID: testPaper(paperID)}}
		analyses := newStubAnalyses()
		entryID := uuid.New()
		analyses.taxonomy["Customer Support"] = &domain.TaxonomyEntry{ID: entryID, Name: "Customer Support"}

		client := &stubLLM{responses: []string{validCardJSON(map[string]string{
			"use_case_mappings": `[
				{"name": "Customer Support (provisional)", "direction": "improves", "fit_confidence": "high", "evidence": "S1"},
				{"name": "Quantum Basket Weaving", "direction": "enables", "fit_confidence": "low", "evidence": "S2"}
			]`,
		})}}

		a := newTestAnalyzer(t, papers, analyses, client)
		result, err := a.Analyze(ctx, AnalyzeRequest{PaperID: paperID})

		require.NoError(t, err)
		require.Len(t, result.Analysis.Card.UseCaseMappings, 1)
		assert.Equal(t, "Customer Support", result.Analysis.Card.UseCaseMappings[0].Name)
		assert.Equal(t, 1, analyses.usage[entryID.String()])
	})

	t.Run("proposed category inserted as provisional", func(t *testing.T) {
		paperID := uuid.New()
		papers := &stubPapers{papers: map[uuid.UUID]*domain.Paper{paperID: testPaper(paperID)}}
		analyses := newStubAnalyses()
		client := &stubLLM{responses: []string{validCardJSON(map[string]string{
			"proposed_category": `{"name": "Agentic QA", "definition": "LLM agents that answer questions", "synonyms": ["agent QA"]}`,
		})}}

		a := newTestAnalyzer(t, papers, analyses, client)
		_, err := a.Analyze(ctx, AnalyzeRequest{PaperID: paperID})

		require.NoError(t, err)
		require.Len(t, analyses.proposals, 1)
		assert.Equal(t, "Agentic QA", analyses.proposals[0].Name)
		assert.Equal(t, domain.TaxonomyStatusProvisional, analyses.proposals[0].Status)
	})

	t.Run("LLM transport failure propagates", func(t *testing.T) {
		paperID := uuid.New()
		papers := &stubPapers{papers: map[uuid.UUID]*domain.Paper{paperID: testPaper(paperID)}}
		analyses := newStubAnalyses()
		client := &stubLLM{errs: []error{&llm.APIError{Provider: "openai", StatusCode: 500, Message: "boom"}}}

		a := newTestAnalyzer(t, papers, analyses, client)
		_, err := a.Analyze(ctx, AnalyzeRequest{PaperID: paperID})

		require.Error(t, err)
		var apiErr *llm.APIError
		assert.True(t, errors.As(err, &apiErr))
	})
}

func TestSummarizer(t *testing.T) {
	ctx := context.Background()

	t.Run("stores trimmed summary", func(t *testing.T) {
		paperID := uuid.New()
		paper := testPaper(paperID)
		papers := &summarizerPapers{stubPapers: stubPapers{papers: map[uuid.UUID]*domain.Paper{paperID: paper}}}
		client := &stubLLM{responses: []string{"  A crisp summary.  "}}

		s := NewSummarizer(papers, client, nil, zerolog.Nop())
		skipped, err := s.Summarize(ctx, paperID, false)

		require.NoError(t, err)
		assert.False(t, skipped)
		assert.Equal(t, "A crisp summary.", papers.savedSummary)
		assert.Equal(t, "test-model", papers.savedModel)
	})

	t.Run("skips papers that already have a summary", func(t *testing.T) {
		paperID := uuid.New()
		paper := testPaper(paperID)
		existing := "already summarized"
		paper.Summary = &existing
		papers := &summarizerPapers{stubPapers: stubPapers{papers: map[uuid.UUID]*domain.Paper{paperID: paper}}}
		client := &stubLLM{}

		s := NewSummarizer(papers, client, nil, zerolog.Nop())
		skipped, err := s.Summarize(ctx, paperID, false)

		require.NoError(t, err)
		assert.True(t, skipped)
		assert.Equal(t, 0, client.calls)
	})
}

// summarizerPapers adds UpdateSummary capture on top of stubPapers.
type summarizerPapers struct {
	stubPapers
	savedSummary string
	savedModel   string
}

func (s *summarizerPapers) UpdateSummary(_ context.Context, _ uuid.UUID, summary, model string) error {
	s.savedSummary = summary
	s.savedModel = model
	return nil
}
