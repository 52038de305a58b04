// Package budget enforces daily and monthly LLM spend ceilings for the v3
// analysis pipeline.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/paperpulse/analysis-service/internal/configstore"
	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/observability"
	"github.com/paperpulse/analysis-service/internal/repository"
)

// Limits supplies the current spend ceilings. *configstore.Store satisfies it.
type Limits interface {
	DailyBudgetCents(ctx context.Context) int64
	MonthlyBudgetCents(ctx context.Context) int64
}

// Status is a point-in-time budget snapshot for the admin surface.
type Status struct {
	DailyLimitCents   int64 `json:"daily_limit_cents"`
	DailySpentCents   int64 `json:"daily_spent_cents"`
	MonthlyLimitCents int64 `json:"monthly_limit_cents"`
	MonthlySpentCents int64 `json:"monthly_spent_cents"`
}

// Controller gates batch starts against the spend ceilings and records
// spend as analyses complete. A ceiling of zero or below disables that
// window's check.
type Controller struct {
	limits  Limits
	spend   repository.BudgetRepository
	clock   configstore.Clock
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewController creates a Controller. A nil clock falls back to the system
// clock; metrics may be nil in tests.
func NewController(limits Limits, spend repository.BudgetRepository, clock configstore.Clock, metrics *observability.Metrics, logger zerolog.Logger) *Controller {
	if clock == nil {
		clock = configstore.SystemClock()
	}
	return &Controller{
		limits:  limits,
		spend:   spend,
		clock:   clock,
		metrics: metrics,
		logger:  logger.With().Str("component", "budget").Logger(),
	}
}

// CheckBatch confirms projected spend fits the remaining budget for both
// windows before any work starts. A violation is a *domain.BudgetExceededError
// naming the window; the batch request must be rejected, never truncated.
func (c *Controller) CheckBatch(ctx context.Context, projectedCents int64) error {
	if projectedCents < 0 {
		return domain.NewValidationError("projected_cents", "projected spend cannot be negative")
	}

	now := c.clock.Now().UTC()
	today := now.Truncate(24 * time.Hour)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	if limit := c.limits.DailyBudgetCents(ctx); limit > 0 {
		spent, err := c.spend.SpentBetween(ctx, today, today)
		if err != nil {
			return fmt.Errorf("failed to read daily spend: %w", err)
		}
		if spent+projectedCents > limit {
			return c.reject(domain.BudgetWindowDaily, limit, spent, projectedCents)
		}
	}

	if limit := c.limits.MonthlyBudgetCents(ctx); limit > 0 {
		spent, err := c.spend.SpentBetween(ctx, monthStart, today)
		if err != nil {
			return fmt.Errorf("failed to read monthly spend: %w", err)
		}
		if spent+projectedCents > limit {
			return c.reject(domain.BudgetWindowMonthly, limit, spent, projectedCents)
		}
	}

	return nil
}

func (c *Controller) reject(window domain.BudgetWindow, limit, spent, projected int64) error {
	if c.metrics != nil {
		c.metrics.RecordBudgetRejection(string(window))
	}
	c.logger.Warn().
		Str("window", string(window)).
		Int64("limit_cents", limit).
		Int64("spent_cents", spent).
		Int64("projected_cents", projected).
		Msg("batch rejected by budget ceiling")
	return &domain.BudgetExceededError{
		Window:         window,
		LimitCents:     limit,
		SpentCents:     spent,
		ProjectedCents: projected,
	}
}

// RecordSpend adds realized spend to today's ledger row.
func (c *Controller) RecordSpend(ctx context.Context, cents int64) error {
	if cents <= 0 {
		return nil
	}
	if err := c.spend.AddSpend(ctx, c.clock.Now().UTC(), cents); err != nil {
		return fmt.Errorf("failed to record spend: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RecordBudgetSpend(cents)
	}
	return nil
}

// Snapshot reports current limits and spend for both windows.
func (c *Controller) Snapshot(ctx context.Context) (Status, error) {
	now := c.clock.Now().UTC()
	today := now.Truncate(24 * time.Hour)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	daily, err := c.spend.SpentBetween(ctx, today, today)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read daily spend: %w", err)
	}
	monthly, err := c.spend.SpentBetween(ctx, monthStart, today)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read monthly spend: %w", err)
	}

	return Status{
		DailyLimitCents:   c.limits.DailyBudgetCents(ctx),
		DailySpentCents:   daily,
		MonthlyLimitCents: c.limits.MonthlyBudgetCents(ctx),
		MonthlySpentCents: monthly,
	}, nil
}
