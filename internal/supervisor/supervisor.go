// Package supervisor owns the worker fleet: one Temporal worker per job
// family, the recurring schedules, and the runtime gating of the AI-powered
// families.
package supervisor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/paperpulse/analysis-service/internal/config"
	"github.com/paperpulse/analysis-service/internal/configstore"
	"github.com/paperpulse/analysis-service/internal/temporal"
	"github.com/paperpulse/analysis-service/internal/temporal/workflows"
)

// Cron schedules for the recurring jobs, in UTC.
const (
	dailyIngestCron = "0 6 * * *"
	gapSweepCron    = "30 6 * * *"
)

// Supervisor starts and stops the per-family workers, applies the env kill
// switch, follows the global AI toggle, and registers the recurring jobs.
// The analyze-v3 family is never gated here: it runs only when an operator
// starts a batch, and the budget controller is its brake.
type Supervisor struct {
	cfg      *config.Config
	store    *configstore.Store
	listener *configstore.Listener
	client   client.Client
	enqueuer *temporal.Enqueuer
	logger   zerolog.Logger

	mu            sync.Mutex
	registrations map[string]temporal.Registration
	workers       map[string]worker.Worker
	gated         map[string]bool
}

// New creates a Supervisor over the given worker registrations. The listener
// may be nil, which disables live toggle reactions (tests).
func New(
	cfg *config.Config,
	store *configstore.Store,
	listener *configstore.Listener,
	c client.Client,
	enqueuer *temporal.Enqueuer,
	registrations []temporal.Registration,
	logger zerolog.Logger,
) (*Supervisor, error) {
	byQueue := make(map[string]temporal.Registration, len(registrations))
	for _, reg := range registrations {
		if err := temporal.ValidateQueue(reg.Queue); err != nil {
			return nil, err
		}
		byQueue[reg.Queue] = reg
	}

	gated := make(map[string]bool)
	for _, queue := range temporal.AIGatedQueues() {
		gated[queue] = true
	}

	return &Supervisor{
		cfg:           cfg,
		store:         store,
		listener:      listener,
		client:        c,
		enqueuer:      enqueuer,
		logger:        logger.With().Str("component", "supervisor").Logger(),
		registrations: byQueue,
		workers:       make(map[string]worker.Worker),
		gated:         gated,
	}, nil
}

// Run starts the fleet and blocks until ctx is cancelled, then drains every
// running worker. Startup order: kill switch first so the stored toggle is
// authoritative before any worker reads it, then workers, then schedules.
func (s *Supervisor) Run(ctx context.Context) error {
	s.applyKillSwitch(ctx)

	aiEnabled := s.store.Enabled(ctx)
	if err := s.startWorkers(aiEnabled); err != nil {
		return err
	}

	if s.listener != nil {
		s.listener.Register(s.onConfigChange)
		go func() {
			if err := s.listener.Run(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("config listener stopped")
			}
		}()
	}

	if err := s.registerSchedules(ctx); err != nil {
		return err
	}

	s.logger.Info().Bool("ai_enabled", aiEnabled).Msg("supervisor running")
	<-ctx.Done()

	s.drain()
	return ctx.Err()
}

// applyKillSwitch forces the shared toggle to match PAPERPULSE_AI_ENABLED
// when the variable is set. The env always wins over a stale store value.
func (s *Supervisor) applyKillSwitch(ctx context.Context) {
	value, set := config.AIKillSwitch()
	if !set {
		return
	}
	if err := s.store.SetEnabled(ctx, value); err != nil {
		s.logger.Error().Err(err).Bool("value", value).Msg("failed to apply AI kill switch")
		return
	}
	s.logger.Info().Bool("value", value).Msg("AI kill switch applied from environment")
}

func (s *Supervisor) startWorkers(aiEnabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for queue, reg := range s.registrations {
		if s.gated[queue] && !aiEnabled {
			s.logger.Info().Str("queue", queue).Msg("AI disabled, worker not started")
			continue
		}
		if err := s.startWorkerLocked(queue, reg); err != nil {
			return err
		}
	}
	return nil
}

// startWorkerLocked builds, registers, and starts one family's worker.
// Callers hold s.mu.
func (s *Supervisor) startWorkerLocked(queue string, reg temporal.Registration) error {
	w, err := temporal.NewWorker(s.client, queue)
	if err != nil {
		return err
	}
	for _, wf := range reg.Workflows {
		w.RegisterWorkflow(wf)
	}
	for _, act := range reg.Activities {
		w.RegisterActivity(act)
	}
	if err := w.Start(); err != nil {
		return err
	}
	s.workers[queue] = w
	s.logger.Info().Str("queue", queue).Msg("worker started")
	return nil
}

// registerSchedules enqueues the recurring jobs under stable IDs. Duplicate
// registrations from prior runs are absorbed.
func (s *Supervisor) registerSchedules(ctx context.Context) error {
	ingestInput := workflows.IngestRecentInput{
		Categories:     s.cfg.Ingestion.Categories,
		MaxPerCategory: s.cfg.Ingestion.RecentFetchSize,
		OverlapDays:    s.cfg.Ingestion.OverlapDays,
	}
	if _, err := s.enqueuer.EnqueueCron(ctx, temporal.EnqueueRequest{
		Queue:      temporal.QueueFetch,
		WorkflowID: temporal.CronDailyIngestID,
		Workflow:   workflows.IngestRecentWorkflow,
		Args:       []interface{}{ingestInput},
	}, dailyIngestCron); err != nil {
		return err
	}

	sweepInput := workflows.GapSweepInput{
		Categories:     s.cfg.Ingestion.Categories,
		MaxPerCategory: s.cfg.Ingestion.RecentFetchSize,
	}
	if _, err := s.enqueuer.EnqueueCron(ctx, temporal.EnqueueRequest{
		Queue:      temporal.QueueFetch,
		WorkflowID: temporal.CronGapSweepID,
		Workflow:   workflows.GapSweepWorkflow,
		Args:       []interface{}{sweepInput},
	}, gapSweepCron); err != nil {
		return err
	}

	s.logger.Info().Msg("recurring schedules registered")
	return nil
}

// onConfigChange reacts to shared-config notifications. Only the global AI
// toggle moves workers; budget and pause keys are read where they are used.
func (s *Supervisor) onConfigChange(ev configstore.Event) {
	if ev.Key != configstore.KeyAIEnabled {
		return
	}
	enabled, err := strconv.ParseBool(ev.Value)
	if err != nil {
		s.logger.Warn().Str("value", ev.Value).Msg("malformed AI toggle notification")
		return
	}
	s.setAIGated(enabled)
}

// setAIGated starts or stops the AI-gated families to match the toggle.
// Stopping a worker drains its in-flight activities; queued jobs stay on the
// server until a worker returns.
func (s *Supervisor) setAIGated(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for queue := range s.gated {
		running := s.workers[queue] != nil
		switch {
		case enabled && !running:
			reg, ok := s.registrations[queue]
			if !ok {
				continue
			}
			if err := s.startWorkerLocked(queue, reg); err != nil {
				s.logger.Error().Err(err).Str("queue", queue).Msg("failed to resume worker")
			}
		case !enabled && running:
			s.workers[queue].Stop()
			delete(s.workers, queue)
			s.logger.Info().Str("queue", queue).Msg("worker paused by AI toggle")
		}
	}
}

// drain stops every running worker, letting in-flight activities finish.
func (s *Supervisor) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	for queue, w := range s.workers {
		w.Stop()
		delete(s.workers, queue)
	}
	s.logger.Info().Dur("took", time.Since(started)).Msg("workers drained")
}

// Running reports which families currently have a live worker. Used by the
// admin status endpoint.
func (s *Supervisor) Running() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := make(map[string]bool, len(s.registrations))
	for queue := range s.registrations {
		state[queue] = s.workers[queue] != nil
	}
	return state
}
