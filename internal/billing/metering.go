package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lexdesk/lexagent/internal/model"
)

// Increment adds a completion's usage to the (org, period) counter. The
// period is passed in so every write of one request lands in the same month.
func (a *Accountant) Increment(ctx context.Context, orgID uuid.UUID, period model.Period, usage model.TokenUsage) (model.UsageCounter, error) {
	if usage.PromptTokens < 0 || usage.CompletionTokens < 0 || usage.TotalTokens < 0 {
		return model.UsageCounter{}, ErrNegativeDelta
	}
	cost := a.CostOf(usage)
	c, err := a.store.IncrementUsage(ctx, orgID, period, usage.PromptTokens, usage.CompletionTokens, cost)
	if err != nil {
		return model.UsageCounter{}, fmt.Errorf("billing: increment usage: %w", err)
	}
	a.logger.Debug("usage incremented",
		"org_id", orgID, "period", period,
		"tokens_in", usage.PromptTokens, "tokens_out", usage.CompletionTokens, "cost_cents", cost)
	return c, nil
}

// Summary reports an org's usage for period. An empty period means the
// current one. TotalRuns counts runs created within the period.
func (a *Accountant) Summary(ctx context.Context, orgID uuid.UUID, period model.Period) (model.UsageSummary, error) {
	if period == "" {
		period = a.CurrentPeriod()
	}
	c, err := a.store.GetUsage(ctx, orgID, period)
	if err != nil {
		return model.UsageSummary{}, fmt.Errorf("billing: get usage: %w", err)
	}
	runs, err := a.store.CountRunsBetween(ctx, orgID, period.Start(), period.End())
	if err != nil {
		return model.UsageSummary{}, fmt.Errorf("billing: count runs: %w", err)
	}
	return model.UsageSummary{
		Period:    period,
		TotalRuns: runs,
		TokensIn:  c.TokensIn,
		TokensOut: c.TokensOut,
		CostCents: c.CostCents,
	}, nil
}
