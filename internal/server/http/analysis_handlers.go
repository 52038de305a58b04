package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/paperpulse/analysis-service/internal/temporal"
	"github.com/paperpulse/analysis-service/internal/temporal/activities"
	"github.com/paperpulse/analysis-service/internal/temporal/workflows"
)

type enqueuePaperJobRequest struct {
	Force bool `json:"force,omitempty"`
}

// enqueueAnalysis handles POST /api/v1/admin/papers/{paperID}/analyze. It
// queues the strict v1 card analysis for one paper. The deterministic
// workflow ID absorbs repeated requests while a run is in flight.
func (s *Server) enqueueAnalysis(w http.ResponseWriter, r *http.Request) {
	paperID, force, ok := s.paperJobParams(w, r)
	if !ok {
		return
	}

	handle, err := s.deps.Jobs.Enqueue(r.Context(), temporal.EnqueueRequest{
		Queue:      temporal.QueueAnalyzeV1,
		WorkflowID: temporal.AnalysisV1WorkflowID(paperID),
		Workflow:   workflows.AnalyzeV1Workflow,
		Args:       []interface{}{activities.AnalyzeInput{PaperID: paperID, Force: force}},
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, paperJobResponse{
		PaperID:      paperID.String(),
		WorkflowID:   handle.WorkflowID,
		Deduplicated: handle.Deduplicated,
	})
}

// enqueueSummary handles POST /api/v1/admin/papers/{paperID}/summarize.
func (s *Server) enqueueSummary(w http.ResponseWriter, r *http.Request) {
	paperID, force, ok := s.paperJobParams(w, r)
	if !ok {
		return
	}

	handle, err := s.deps.Jobs.Enqueue(r.Context(), temporal.EnqueueRequest{
		Queue:      temporal.QueueSummarize,
		WorkflowID: temporal.SummaryWorkflowID(paperID),
		Workflow:   workflows.SummaryWorkflow,
		Args:       []interface{}{activities.AnalyzeInput{PaperID: paperID, Force: force}},
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, paperJobResponse{
		PaperID:      paperID.String(),
		WorkflowID:   handle.WorkflowID,
		Deduplicated: handle.Deduplicated,
	})
}

// paperJobParams parses the path and optional body shared by the per-paper
// enqueue endpoints, verifies the paper exists, and gates the projected
// per-paper spend against the budget.
func (s *Server) paperJobParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool, bool) {
	paperID, err := parseUUID(chi.URLParam(r, "paperID"), "paper_id")
	if err != nil {
		s.writeDomainError(w, err)
		return uuid.Nil, false, false
	}

	var req enqueuePaperJobRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeDomainError(w, err)
			return uuid.Nil, false, false
		}
	}

	if _, err := s.deps.Papers.GetByID(r.Context(), paperID); err != nil {
		s.writeDomainError(w, err)
		return uuid.Nil, false, false
	}

	if err := s.deps.Budget.CheckBatch(r.Context(), s.deps.Analysis.EstimatedCostCentsPerPaper); err != nil {
		s.writeDomainError(w, err)
		return uuid.Nil, false, false
	}
	return paperID, req.Force, true
}
