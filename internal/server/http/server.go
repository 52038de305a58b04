// Package httpserver is the admin control surface: batch lifecycle, runtime
// toggles, backfill, and the read endpoints the dashboard consumes.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/paperpulse/analysis-service/internal/analysis"
	"github.com/paperpulse/analysis-service/internal/budget"
	"github.com/paperpulse/analysis-service/internal/config"
	"github.com/paperpulse/analysis-service/internal/database"
	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/events"
	"github.com/paperpulse/analysis-service/internal/observability"
	"github.com/paperpulse/analysis-service/internal/repository"
	"github.com/paperpulse/analysis-service/internal/temporal"
)

// JobStarter enqueues and cancels queued jobs. *temporal.Enqueuer satisfies it.
type JobStarter interface {
	Enqueue(ctx context.Context, req temporal.EnqueueRequest) (*temporal.Handle, error)
	Cancel(ctx context.Context, workflowID string) error
}

// RuntimeStore is the slice of the shared config store the admin surface
// reads and writes. *configstore.Store satisfies it.
type RuntimeStore interface {
	Enabled(ctx context.Context) bool
	SetEnabled(ctx context.Context, enabled bool) error
	V3AutoEnabled(ctx context.Context) bool
	SetV3AutoEnabled(ctx context.Context, enabled bool) error
	Paused(ctx context.Context) (bool, string)
	SetPaused(ctx context.Context, paused bool, reason string) error
}

// BudgetController gates batch starts and reports spend. *budget.Controller
// satisfies it.
type BudgetController interface {
	CheckBatch(ctx context.Context, projectedCents int64) error
	Snapshot(ctx context.Context) (budget.Status, error)
}

// TestAnalyzer runs one synchronous v1 analysis for the admin test endpoint.
// *analysis.Analyzer satisfies it.
type TestAnalyzer interface {
	Analyze(ctx context.Context, req analysis.AnalyzeRequest) (*analysis.Result, error)
}

// BatchLocker holds a cross-replica lease around the batch-start section.
// *configstore.LockManager satisfies it.
type BatchLocker interface {
	WithLock(ctx context.Context, name, holder string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Deps bundles the server's collaborators. DB may be nil in handler tests;
// Emitter and Metrics may be nil anywhere.
type Deps struct {
	Papers   repository.PaperRepository
	Batches  repository.BatchRepository
	Runs     repository.IngestionRepository
	Store    RuntimeStore
	Budget   BudgetController
	Analyzer TestAnalyzer
	Jobs     JobStarter
	Locks    BatchLocker
	DB       *database.DB
	Emitter  events.Emitter
	Metrics  *observability.Metrics

	Ingestion config.IngestionConfig
	Analysis  config.AnalysisConfig
	Gaps      config.GapsConfig
}

// Server is the admin HTTP server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Deps
	logger     zerolog.Logger
}

// NewServer creates the admin HTTP server with all routes wired.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	if deps.Emitter == nil {
		deps.Emitter = events.NopEmitter{}
	}

	s := &Server{
		deps:   deps,
		logger: logger.With().Str("component", "http-server").Logger(),
	}
	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/admin", func(r chi.Router) {
			r.Get("/status", s.getStatus)
			r.Get("/budget", s.getBudget)
			r.Post("/toggle", s.setAIToggle)
			r.Post("/v3-auto", s.setV3AutoToggle)
			r.Post("/test-analysis", s.runTestAnalysis)
			r.Post("/backfill", s.startBackfill)
			r.Get("/ingestion-runs", s.listIngestionRuns)

			r.Post("/papers/{paperID}/analyze", s.enqueueAnalysis)
			r.Post("/papers/{paperID}/summarize", s.enqueueSummary)

			r.Route("/batches", func(r chi.Router) {
				r.Post("/", s.startBatch)
				r.Get("/current", s.getCurrentBatch)
				r.Get("/{batchID}", s.getBatch)
				r.Get("/{batchID}/jobs", s.listBatchJobs)
				r.Post("/{batchID}/pause", s.pauseBatch)
				r.Post("/{batchID}/resume", s.resumeBatch)
				r.Post("/{batchID}/cancel", s.cancelBatch)
				r.Post("/{batchID}/retry-failed", s.retryFailedJobs)
			})
		})

		r.Get("/papers", s.listPapers)
		r.Get("/papers/{paperID}", s.getPaper)
	})

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	health := s.deps.DB.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		if health := s.deps.DB.Health(r.Context()); health.Status != "healthy" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "not_ready",
				"database": health.Status,
				"error":    health.Error,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// errStatus maps domain sentinel errors to HTTP statuses.
func errStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBudgetExceeded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError maps err to an HTTP status. Internal errors are logged
// and masked; everything else carries its message to the operator.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status := errStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// decodeBody unmarshals a bounded JSON request body into v.
func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBodySize))
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", "invalid JSON request body")
	}
	return nil
}
