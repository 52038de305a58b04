// Package temporal wraps the Temporal SDK for this service: queue and
// workflow-ID conventions, an enqueuer with silent deduplication, and
// per-family worker construction.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/paperpulse/analysis-service/internal/config"
	"github.com/paperpulse/analysis-service/internal/observability"
)

// DefaultHealthCheckTimeout bounds Temporal server health checks.
const DefaultHealthCheckTimeout = 5 * time.Second

// NewClient dials the Temporal server with the SDK logging routed through
// zerolog.
func NewClient(cfg config.TemporalConfig, logger zerolog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    observability.NewTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("create Temporal client: %w", err)
	}
	return c, nil
}

// Health checks connectivity to the Temporal server.
func Health(ctx context.Context, c client.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, DefaultHealthCheckTimeout)
	defer cancel()

	if _, err := c.CheckHealth(checkCtx, &client.CheckHealthRequest{}); err != nil {
		return fmt.Errorf("temporal health check: %w", err)
	}
	return nil
}

// isAlreadyStarted reports whether the error means a workflow with the same
// ID is already pending or running.
func isAlreadyStarted(err error) bool {
	var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
	return errors.As(err, &alreadyStarted)
}
