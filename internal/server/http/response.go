package httpserver

import (
	"time"

	"github.com/paperpulse/analysis-service/internal/budget"
	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/repository"
)

// Response types for JSON serialization.

type batchResponse struct {
	BatchID            string     `json:"batch_id"`
	AnalysisVersion    string     `json:"analysis_version"`
	Status             string     `json:"status"`
	BatchSize          int        `json:"batch_size"`
	CompletedCount     int        `json:"completed_count"`
	FailedCount        int        `json:"failed_count"`
	TotalTokens        int64      `json:"total_tokens"`
	EstimatedCostCents int64      `json:"estimated_cost_cents"`
	SpentCents         int64      `json:"spent_cents"`
	PauseReason        string     `json:"pause_reason,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type batchJobResponse struct {
	JobID       string     `json:"job_id"`
	PaperID     string     `json:"paper_id"`
	Status      string     `json:"status"`
	TokensUsed  int64      `json:"tokens_used"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

type startBatchResponse struct {
	Batch      batchResponse `json:"batch"`
	WorkflowID string        `json:"workflow_id"`
}

type paperJobResponse struct {
	PaperID      string `json:"paper_id"`
	WorkflowID   string `json:"workflow_id"`
	Deduplicated bool   `json:"deduplicated"`
}

type retryFailedResponse struct {
	Retried      int    `json:"retried"`
	WorkflowID   string `json:"workflow_id"`
	Deduplicated bool   `json:"deduplicated"`
}

type coverageResponse struct {
	TotalPapers    int     `json:"total_papers"`
	AnalyzedPapers int     `json:"analyzed_papers"`
	Percent        float64 `json:"percent"`
}

type statusResponse struct {
	AIEnabled     bool                        `json:"ai_enabled"`
	V3AutoEnabled bool                        `json:"v3_auto_enabled"`
	Paused        bool                        `json:"paused"`
	PauseReason   string                      `json:"pause_reason,omitempty"`
	Coverage      map[string]coverageResponse `json:"coverage"`
	Budget        budget.Status               `json:"budget"`
	CurrentBatch  *batchResponse              `json:"current_batch,omitempty"`
}

type testAnalysisResponse struct {
	Skipped         bool   `json:"skipped"`
	Status          string `json:"status,omitempty"`
	AnalysisVersion string `json:"analysis_version,omitempty"`
	Model           string `json:"model,omitempty"`
	TokensUsed      int64  `json:"tokens_used,omitempty"`
}

type backfillResponse struct {
	Dates            []string `json:"dates"`
	Enqueued         int      `json:"enqueued"`
	Deduplicated     int      `json:"deduplicated"`
	EstimatedSeconds int64    `json:"estimated_seconds"`
}

type paperResponse struct {
	ID              string    `json:"id"`
	Source          string    `json:"source"`
	ExternalID      string    `json:"external_id"`
	Title           string    `json:"title"`
	Abstract        string    `json:"abstract,omitempty"`
	Authors         []string  `json:"authors,omitempty"`
	Categories      []string  `json:"categories,omitempty"`
	PrimaryCategory string    `json:"primary_category"`
	PDFURL          string    `json:"pdf_url,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	Summary         string    `json:"summary,omitempty"`
	SummaryModel    string    `json:"summary_model,omitempty"`
}

type listPapersResponse struct {
	Papers []paperResponse `json:"papers"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type ingestionRunResponse struct {
	ID             string `json:"id"`
	RunDate        string `json:"run_date"`
	Category       string `json:"category"`
	Kind           string `json:"kind"`
	Status         string `json:"status"`
	FetchedCount   int    `json:"fetched_count"`
	InsertedCount  int    `json:"inserted_count"`
	DuplicateCount int    `json:"duplicate_count"`
	ErrorDetail    string `json:"error_detail,omitempty"`
}

// Converter functions.

func domainBatchToResponse(b *domain.AnalysisBatch) batchResponse {
	resp := batchResponse{
		BatchID:            b.ID.String(),
		AnalysisVersion:    b.AnalysisVersion,
		Status:             string(b.Status),
		BatchSize:          b.BatchSize,
		CompletedCount:     b.CompletedCount,
		FailedCount:        b.FailedCount,
		TotalTokens:        b.TotalTokens,
		EstimatedCostCents: b.EstimatedCostCents,
		SpentCents:         b.SpentCents,
		StartedAt:          b.StartedAt,
		CompletedAt:        b.CompletedAt,
		CreatedAt:          b.CreatedAt,
	}
	if b.PauseReason != nil {
		resp.PauseReason = *b.PauseReason
	}
	return resp
}

func domainJobToResponse(j *domain.BatchJob) batchJobResponse {
	resp := batchJobResponse{
		JobID:      j.ID.String(),
		PaperID:    j.PaperID.String(),
		Status:     string(j.Status),
		TokensUsed: j.TokensUsed,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
	if j.ErrorDetail != nil {
		resp.ErrorDetail = *j.ErrorDetail
	}
	return resp
}

func domainPaperToResponse(p *domain.Paper) paperResponse {
	resp := paperResponse{
		ID:              p.ID.String(),
		Source:          string(p.Source),
		ExternalID:      p.ExternalID,
		Title:           p.Title,
		Abstract:        p.Abstract,
		Authors:         p.Authors,
		Categories:      p.Categories,
		PrimaryCategory: p.PrimaryCategory,
		PDFURL:          p.PDFURL,
		PublishedAt:     p.PublishedAt,
	}
	if p.Summary != nil {
		resp.Summary = *p.Summary
	}
	if p.SummaryModel != nil {
		resp.SummaryModel = *p.SummaryModel
	}
	return resp
}

func domainRunToResponse(run *domain.IngestionRun) ingestionRunResponse {
	resp := ingestionRunResponse{
		ID:             run.ID.String(),
		RunDate:        run.RunDate.Format("2006-01-02"),
		Category:       run.Category,
		Kind:           string(run.Kind),
		Status:         string(run.Status),
		FetchedCount:   run.FetchedCount,
		InsertedCount:  run.InsertedCount,
		DuplicateCount: run.DuplicateCount,
	}
	if run.ErrorDetail != nil {
		resp.ErrorDetail = *run.ErrorDetail
	}
	return resp
}

func coverageFromCounts(c repository.CoverageCounts) coverageResponse {
	resp := coverageResponse{TotalPapers: c.TotalPapers, AnalyzedPapers: c.AnalyzedPapers}
	if c.TotalPapers > 0 {
		resp.Percent = float64(c.AnalyzedPapers) / float64(c.TotalPapers) * 100
	}
	return resp
}
