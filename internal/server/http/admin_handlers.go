package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paperpulse/analysis-service/internal/analysis"
	"github.com/paperpulse/analysis-service/internal/configstore"
	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/gaps"
	"github.com/paperpulse/analysis-service/internal/temporal"
	"github.com/paperpulse/analysis-service/internal/temporal/activities"
)

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

type testAnalysisRequest struct {
	PaperID string `json:"paper_id"`
	Force   bool   `json:"force,omitempty"`
}

type backfillRequest struct {
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	Categories     []string `json:"categories,omitempty"`
	MaxPerCategory int      `json:"max_per_category,omitempty"`
}

// getStatus handles GET /api/v1/admin/status: toggles, coverage per
// analysis version, budget spend, and the current batch if one is in flight.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	paused, pauseReason := s.deps.Store.Paused(ctx)
	resp := statusResponse{
		AIEnabled:     s.deps.Store.Enabled(ctx),
		V3AutoEnabled: s.deps.Store.V3AutoEnabled(ctx),
		Paused:        paused,
		PauseReason:   pauseReason,
		Coverage:      make(map[string]coverageResponse, 2),
	}

	for _, version := range []string{s.deps.Analysis.V1SchemaVersion, s.deps.Analysis.V3SchemaVersion} {
		if version == "" {
			continue
		}
		counts, err := s.deps.Papers.Coverage(ctx, version)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		resp.Coverage[version] = coverageFromCounts(counts)
	}

	snapshot, err := s.deps.Budget.Snapshot(ctx)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp.Budget = snapshot

	batch, err := s.deps.Batches.GetCurrentBatch(ctx, s.deps.Analysis.V3SchemaVersion)
	switch {
	case err == nil:
		b := domainBatchToResponse(batch)
		resp.CurrentBatch = &b
	case errors.Is(err, domain.ErrNotFound):
		// No batch in flight.
	default:
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// getBudget handles GET /api/v1/admin/budget.
func (s *Server) getBudget(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.deps.Budget.Snapshot(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// setAIToggle handles POST /api/v1/admin/toggle. The store write publishes a
// change notification, so every worker process reacts without a restart.
func (s *Server) setAIToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.deps.Store.SetEnabled(r.Context(), req.Enabled); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.deps.Emitter.TryEmit(r.Context(), domain.Event{
		EventType:   domain.EventTypeToggleChanged,
		AggregateID: configstore.KeyAIEnabled,
		Payload:     map[string]bool{"enabled": req.Enabled},
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ai_enabled": req.Enabled})
}

// setV3AutoToggle handles POST /api/v1/admin/v3-auto.
func (s *Server) setV3AutoToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.deps.Store.SetV3AutoEnabled(r.Context(), req.Enabled); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.deps.Emitter.TryEmit(r.Context(), domain.Event{
		EventType:   domain.EventTypeToggleChanged,
		AggregateID: configstore.KeyV3AutoEnabled,
		Payload:     map[string]bool{"enabled": req.Enabled},
	})
	writeJSON(w, http.StatusOK, map[string]bool{"v3_auto_enabled": req.Enabled})
}

// runTestAnalysis handles POST /api/v1/admin/test-analysis. It runs one v1
// analysis inline and returns the outcome, bypassing the queue so operators
// can verify prompt and model changes end to end.
func (s *Server) runTestAnalysis(w http.ResponseWriter, r *http.Request) {
	var req testAnalysisRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	paperID, err := parseUUID(req.PaperID, "paper_id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	result, err := s.deps.Analyzer.Analyze(r.Context(), analysis.AnalyzeRequest{PaperID: paperID, Force: req.Force})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if result.Skipped {
		writeJSON(w, http.StatusOK, testAnalysisResponse{Skipped: true})
		return
	}
	writeJSON(w, http.StatusOK, testAnalysisResponse{
		Status:          string(result.Analysis.Status),
		AnalysisVersion: result.Analysis.AnalysisVersion,
		Model:           result.Analysis.Model,
		TokensUsed:      result.Analysis.TokensUsed,
	})
}

// startBackfill handles POST /api/v1/admin/backfill. The range is validated
// and expanded before anything is enqueued; a reversed range or a span over
// the cap rejects the whole request. Dates already queued or running are
// reported as deduplicated, not re-run.
func (s *Server) startBackfill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req backfillRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}

	start, err := parseDate(req.StartDate, "start_date")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	end, err := parseDate(req.EndDate, "end_date")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	plan, err := gaps.PlanBackfill(start, end, s.deps.Gaps.PerDateEstimate)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	categories := req.Categories
	if len(categories) == 0 {
		categories = s.deps.Ingestion.Categories
	}
	maxPerCategory := req.MaxPerCategory
	if maxPerCategory <= 0 {
		maxPerCategory = s.deps.Ingestion.RecentFetchSize
	}

	resp := backfillResponse{
		Dates:            make([]string, 0, len(plan.Dates)),
		EstimatedSeconds: int64(plan.Estimate / time.Second),
	}
	for i, date := range plan.Dates {
		handle, err := s.deps.Jobs.Enqueue(ctx, temporal.EnqueueRequest{
			Queue:      temporal.QueueBackfill,
			WorkflowID: temporal.IngestDateWorkflowID(date),
			Workflow:   activities.WorkflowNameIngestDate,
			Args: []interface{}{activities.IngestInput{
				Categories:     categories,
				RunDate:        date,
				Backfill:       true,
				From:           date,
				To:             date,
				MaxPerCategory: maxPerCategory,
			}},
			Delay: time.Duration(i) * gaps.StaggerInterval,
		})
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		resp.Dates = append(resp.Dates, date.Format("2006-01-02"))
		if handle.Deduplicated {
			resp.Deduplicated++
			continue
		}
		resp.Enqueued++
		s.deps.Emitter.TryEmit(ctx, domain.Event{
			EventType:   domain.EventTypeBackfillEnqueued,
			AggregateID: date.Format("2006-01-02"),
			Payload:     map[string]string{"date": date.Format("2006-01-02")},
		})
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// listIngestionRuns handles GET /api/v1/admin/ingestion-runs with optional
// ?from= and ?to= date bounds; the default window is the trailing week.
func (s *Server) listIngestionRuns(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	from, to := now.AddDate(0, 0, -7), now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := parseDate(raw, "from")
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := parseDate(raw, "to")
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		to = parsed
	}

	runs, err := s.deps.Runs.ListRuns(r.Context(), from, to)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp := make([]ingestionRunResponse, len(runs))
	for i, run := range runs {
		resp[i] = domainRunToResponse(run)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": resp})
}

// parseDate parses an ISO calendar date at UTC midnight.
func parseDate(raw, field string) (time.Time, error) {
	parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "must be a date in YYYY-MM-DD form")
	}
	return parsed, nil
}

// parseIntParam reads a positive integer query parameter, with a default.
func parseIntParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(name, "must be a non-negative integer")
	}
	return n, nil
}
