package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/paperpulse/analysis-service/internal/configstore"
	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/temporal"
	"github.com/paperpulse/analysis-service/internal/temporal/workflows"
)

// Batch sizing bounds for POST /admin/batches.
const (
	defaultBatchSize   = 50
	maxBatchSize       = 500
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// batchStartLockTTL bounds the batch-start lease. Long enough to cover the
// selection query and the workflow start, short enough that a crashed
// replica's lease clears quickly.
const batchStartLockTTL = 30 * time.Second

type startBatchRequest struct {
	BatchSize int `json:"batch_size"`
}

type pauseBatchRequest struct {
	Reason string `json:"reason,omitempty"`
}

// startBatch handles POST /api/v1/admin/batches. It selects unanalyzed
// papers, gates the projected spend against the budget, persists the batch
// and its jobs, and starts the batch workflow. A budget violation rejects
// the whole request; the batch is never truncated to fit.
func (s *Server) startBatch(w http.ResponseWriter, r *http.Request) {
	var req startBatchRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.BatchSize == 0 {
		req.BatchSize = defaultBatchSize
	}
	if req.BatchSize < 1 || req.BatchSize > maxBatchSize {
		writeError(w, http.StatusBadRequest, "batch_size must be between 1 and 500")
		return
	}

	// The in-flight check and the batch insert are check-then-act; the lease
	// serializes them across admin replicas.
	err := s.deps.Locks.WithLock(r.Context(), configstore.LockBatchStart, uuid.NewString(), batchStartLockTTL, func(ctx context.Context) error {
		s.startBatchLocked(w, r.WithContext(ctx), req)
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrLockNotAcquired) {
			writeError(w, http.StatusConflict, "another batch start is in progress")
			return
		}
		s.writeDomainError(w, err)
	}
}

// startBatchLocked runs the batch-start section under the cross-replica
// lease: select papers, gate the spend, persist, and start the workflow.
func (s *Server) startBatchLocked(w http.ResponseWriter, r *http.Request, req startBatchRequest) {
	ctx := r.Context()

	version := s.deps.Analysis.V3SchemaVersion
	if version == "" {
		version = domain.AnalysisVersionV3
	}

	// One batch in flight at a time keeps pause/resume/cancel unambiguous.
	if current, err := s.deps.Batches.GetCurrentBatch(ctx, version); err == nil {
		writeError(w, http.StatusConflict, "batch "+current.ID.String()+" is already in flight")
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.writeDomainError(w, err)
		return
	}

	paperIDs, err := s.deps.Papers.ListIDsWithoutAnalysis(ctx, version, req.BatchSize)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if len(paperIDs) == 0 {
		writeError(w, http.StatusConflict, "no papers awaiting analysis")
		return
	}

	projected := int64(len(paperIDs)) * s.deps.Analysis.EstimatedCostCentsPerPaper
	if err := s.deps.Budget.CheckBatch(ctx, projected); err != nil {
		var be *domain.BudgetExceededError
		if errors.As(err, &be) {
			s.deps.Emitter.TryEmit(ctx, domain.Event{
				EventType:   domain.EventTypeBudgetRejected,
				AggregateID: version,
				Payload: domain.BudgetRejectedPayload{
					Window:         string(be.Window),
					LimitCents:     be.LimitCents,
					SpentCents:     be.SpentCents,
					ProjectedCents: be.ProjectedCents,
				},
			})
		}
		s.writeDomainError(w, err)
		return
	}

	batch, err := s.deps.Batches.CreateBatch(ctx, &domain.AnalysisBatch{
		AnalysisVersion:    version,
		BatchSize:          len(paperIDs),
		EstimatedCostCents: projected,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.deps.Batches.CreateJobs(ctx, batch.ID, paperIDs); err != nil {
		s.abandonBatch(r, batch.ID)
		s.writeDomainError(w, err)
		return
	}

	handle, err := s.deps.Jobs.Enqueue(ctx, temporal.EnqueueRequest{
		Queue:      temporal.QueueAnalyzeV3,
		WorkflowID: temporal.V3BatchWorkflowID(batch.ID),
		Workflow:   workflows.V3BatchWorkflow,
		Args:       []interface{}{workflows.V3BatchInput{BatchID: batch.ID}},
	})
	if err != nil {
		s.abandonBatch(r, batch.ID)
		s.writeDomainError(w, err)
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordBatchStarted(version)
	}
	s.deps.Emitter.TryEmit(ctx, domain.Event{
		EventType:   domain.EventTypeBatchStarted,
		AggregateID: batch.ID.String(),
		Payload: map[string]interface{}{
			"batch_id":             batch.ID.String(),
			"analysis_version":     version,
			"batch_size":           len(paperIDs),
			"estimated_cost_cents": projected,
		},
	})

	writeJSON(w, http.StatusCreated, startBatchResponse{
		Batch:      domainBatchToResponse(batch),
		WorkflowID: handle.WorkflowID,
	})
}

// abandonBatch cancels a batch whose startup failed halfway. Best effort:
// the row staying pending only blocks the one-in-flight check until an
// operator cancels it by hand.
func (s *Server) abandonBatch(r *http.Request, batchID uuid.UUID) {
	if err := s.deps.Batches.SetBatchStatus(r.Context(), batchID, domain.BatchStatusCancelled, nil); err != nil {
		s.logger.Error().Err(err).Str("batch_id", batchID.String()).Msg("failed to cancel abandoned batch")
	}
}

// getBatch handles GET /api/v1/admin/batches/{batchID}.
func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := parseUUID(chi.URLParam(r, "batchID"), "batch_id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	batch, err := s.deps.Batches.GetBatch(r.Context(), batchID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainBatchToResponse(batch))
}

// getCurrentBatch handles GET /api/v1/admin/batches/current.
func (s *Server) getCurrentBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.deps.Batches.GetCurrentBatch(r.Context(), s.deps.Analysis.V3SchemaVersion)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainBatchToResponse(batch))
}

// listBatchJobs handles GET /api/v1/admin/batches/{batchID}/jobs with an
// optional ?status= filter.
func (s *Server) listBatchJobs(w http.ResponseWriter, r *http.Request) {
	batchID, err := parseUUID(chi.URLParam(r, "batchID"), "batch_id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var statusFilter *domain.BatchJobStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.BatchJobStatus(raw)
		switch status {
		case domain.BatchJobStatusPending, domain.BatchJobStatusRunning,
			domain.BatchJobStatusCompleted, domain.BatchJobStatusFailed:
			statusFilter = &status
		default:
			writeError(w, http.StatusBadRequest, "unknown job status: "+raw)
			return
		}
	}

	jobs, err := s.deps.Batches.ListJobs(r.Context(), batchID, statusFilter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp := make([]batchJobResponse, len(jobs))
	for i, j := range jobs {
		resp[i] = domainJobToResponse(j)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": resp})
}

// pauseBatch handles POST /api/v1/admin/batches/{batchID}/pause. The batch
// workflow observes the paused status at the next job boundary; the job in
// flight finishes first.
func (s *Server) pauseBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := parseUUID(chi.URLParam(r, "batchID"), "batch_id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	var req pauseBatchRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	batch, err := s.deps.Batches.GetBatch(r.Context(), batchID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if batch.Status != domain.BatchStatusRunning && batch.Status != domain.BatchStatusPending {
		writeError(w, http.StatusConflict, "only a pending or running batch can be paused")
		return
	}

	reason := strings.TrimSpace(req.Reason)
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err := s.deps.Batches.SetBatchStatus(r.Context(), batchID, domain.BatchStatusPaused, reasonPtr); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.respondWithBatch(w, r, batchID)
}

// resumeBatch handles POST /api/v1/admin/batches/{batchID}/resume.
func (s *Server) resumeBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := parseUUID(chi.URLParam(r, "batchID"), "batch_id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	batch, err := s.deps.Batches.GetBatch(r.Context(), batchID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if batch.Status != domain.BatchStatusPaused {
		writeError(w, http.StatusConflict, "only a paused batch can be resumed")
		return
	}

	if err := s.deps.Batches.SetBatchStatus(r.Context(), batchID, domain.BatchStatusRunning, nil); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.respondWithBatch(w, r, batchID)
}

// cancelBatch handles POST /api/v1/admin/batches/{batchID}/cancel. The
// status flip stops the workflow at the next job boundary; the workflow
// cancel is a belt for a run stuck between polls.
func (s *Server) cancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := parseUUID(chi.URLParam(r, "batchID"), "batch_id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	batch, err := s.deps.Batches.GetBatch(r.Context(), batchID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if batch.Status.IsTerminal() {
		writeError(w, http.StatusConflict, "batch is already "+string(batch.Status))
		return
	}

	if err := s.deps.Batches.SetBatchStatus(r.Context(), batchID, domain.BatchStatusCancelled, nil); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.deps.Jobs.Cancel(r.Context(), temporal.V3BatchWorkflowID(batchID)); err != nil {
		// The workflow may already be finished; the status row is what counts.
		s.logger.Warn().Err(err).Str("batch_id", batchID.String()).Msg("workflow cancel failed")
	}
	s.respondWithBatch(w, r, batchID)
}

// retryFailedJobs handles POST /api/v1/admin/batches/{batchID}/retry-failed.
// Failed jobs move back to pending, the counters are rolled back with them,
// and a fresh workflow run drains the reopened batch under the same
// deterministic ID.
func (s *Server) retryFailedJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, err := parseUUID(chi.URLParam(r, "batchID"), "batch_id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	batch, err := s.deps.Batches.GetBatch(ctx, batchID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !batch.Status.IsTerminal() {
		writeError(w, http.StatusConflict, "batch is still in flight; retry after it finishes")
		return
	}

	reset, err := s.deps.Batches.ResetFailedJobs(ctx, batchID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if reset == 0 {
		writeError(w, http.StatusConflict, "no failed jobs to retry")
		return
	}

	handle, err := s.deps.Jobs.Enqueue(ctx, temporal.EnqueueRequest{
		Queue:      temporal.QueueAnalyzeV3,
		WorkflowID: temporal.V3BatchWorkflowID(batchID),
		Workflow:   workflows.V3BatchWorkflow,
		Args:       []interface{}{workflows.V3BatchInput{BatchID: batchID}},
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, retryFailedResponse{
		Retried:      reset,
		WorkflowID:   handle.WorkflowID,
		Deduplicated: handle.Deduplicated,
	})
}

// respondWithBatch re-reads the batch and writes its current state.
func (s *Server) respondWithBatch(w http.ResponseWriter, r *http.Request, batchID uuid.UUID) {
	batch, err := s.deps.Batches.GetBatch(r.Context(), batchID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainBatchToResponse(batch))
}

// parseUUID validates a path parameter as a UUID.
func parseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(field, "must be a valid UUID")
	}
	return id, nil
}
