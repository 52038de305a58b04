package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/paperpulse/analysis-service/internal/observability"
)

// EnqueueRequest describes one job to enqueue.
type EnqueueRequest struct {
	// Queue is the task queue (one of the Queue* constants).
	Queue string

	// WorkflowID is the deterministic idempotency key. Required.
	WorkflowID string

	// Workflow is the workflow function or its registered name.
	Workflow interface{}

	// Args are the workflow arguments.
	Args []interface{}

	// Delay postpones the first workflow task, used to stagger bursts.
	Delay time.Duration

	// ExecutionTimeout bounds the whole run; zero means the family default.
	ExecutionTimeout time.Duration
}

// Handle identifies an enqueued (or deduplicated) job.
type Handle struct {
	WorkflowID string
	RunID      string

	// Deduplicated is true when an instance of this workflow ID was already
	// pending or running and no new one was started.
	Deduplicated bool
}

// Enqueuer starts workflows with at-most-once semantics per workflow ID.
// A duplicate enqueue while a prior instance is pending or active is
// silently absorbed, which is what lets repeated gap sweeps and restarted
// supervisors schedule the same deterministic IDs safely.
type Enqueuer struct {
	client  client.Client
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewEnqueuer creates an Enqueuer; metrics may be nil in tests.
func NewEnqueuer(c client.Client, metrics *observability.Metrics, logger zerolog.Logger) *Enqueuer {
	return &Enqueuer{
		client:  c,
		metrics: metrics,
		logger:  logger.With().Str("component", "enqueuer").Logger(),
	}
}

// Enqueue starts the workflow. WorkflowExecutionAlreadyStarted is not an
// error: the returned handle has Deduplicated set instead.
func (e *Enqueuer) Enqueue(ctx context.Context, req EnqueueRequest) (*Handle, error) {
	if req.WorkflowID == "" {
		return nil, fmt.Errorf("workflow ID is required")
	}
	if err := ValidateQueue(req.Queue); err != nil {
		return nil, err
	}

	policy := PolicyFor(req.Queue)
	options := client.StartWorkflowOptions{
		ID:                       req.WorkflowID,
		TaskQueue:                req.Queue,
		WorkflowExecutionTimeout: req.ExecutionTimeout,
		StartDelay:               req.Delay,
		RetryPolicy:              policy.Retry,
	}

	run, err := e.client.ExecuteWorkflow(ctx, options, req.Workflow, req.Args...)
	if err != nil {
		if isAlreadyStarted(err) {
			e.logger.Debug().
				Str("workflow_id", req.WorkflowID).
				Str("queue", req.Queue).
				Msg("duplicate enqueue absorbed")
			return &Handle{WorkflowID: req.WorkflowID, Deduplicated: true}, nil
		}
		return nil, fmt.Errorf("enqueue %s on %s: %w", req.WorkflowID, req.Queue, err)
	}

	e.logger.Debug().
		Str("workflow_id", req.WorkflowID).
		Str("queue", req.Queue).
		Dur("delay", req.Delay).
		Msg("job enqueued")
	return &Handle{WorkflowID: req.WorkflowID, RunID: run.GetRunID()}, nil
}

// EnqueueCron starts a recurring workflow on a cron schedule. The
// deterministic ID means a restarted supervisor re-registering the schedule
// is a no-op while the prior registration lives.
func (e *Enqueuer) EnqueueCron(ctx context.Context, req EnqueueRequest, cronSchedule string) (*Handle, error) {
	if req.WorkflowID == "" {
		return nil, fmt.Errorf("workflow ID is required")
	}
	if err := ValidateQueue(req.Queue); err != nil {
		return nil, err
	}

	options := client.StartWorkflowOptions{
		ID:           req.WorkflowID,
		TaskQueue:    req.Queue,
		CronSchedule: cronSchedule,
		RetryPolicy:  PolicyFor(req.Queue).Retry,
	}

	run, err := e.client.ExecuteWorkflow(ctx, options, req.Workflow, req.Args...)
	if err != nil {
		if isAlreadyStarted(err) {
			return &Handle{WorkflowID: req.WorkflowID, Deduplicated: true}, nil
		}
		return nil, fmt.Errorf("schedule %s on %s: %w", req.WorkflowID, req.Queue, err)
	}
	return &Handle{WorkflowID: req.WorkflowID, RunID: run.GetRunID()}, nil
}

// Cancel requests cancellation of a running workflow.
func (e *Enqueuer) Cancel(ctx context.Context, workflowID string) error {
	if err := e.client.CancelWorkflow(ctx, workflowID, ""); err != nil {
		return fmt.Errorf("cancel %s: %w", workflowID, err)
	}
	return nil
}

// Signal sends a signal to the latest run of a workflow.
func (e *Enqueuer) Signal(ctx context.Context, workflowID, signalName string, arg interface{}) error {
	if err := e.client.SignalWorkflow(ctx, workflowID, "", signalName, arg); err != nil {
		return fmt.Errorf("signal %s to %s: %w", signalName, workflowID, err)
	}
	return nil
}

// Await blocks until the workflow completes and decodes its result.
func (e *Enqueuer) Await(ctx context.Context, workflowID string, result interface{}) error {
	run := e.client.GetWorkflow(ctx, workflowID, "")
	if err := run.Get(ctx, result); err != nil {
		return fmt.Errorf("await %s: %w", workflowID, err)
	}
	return nil
}

// ApplicationError builds a non-retryable application error for activities
// whose failures must not be retried by the queue.
func ApplicationError(errType, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, errType, nil)
}
