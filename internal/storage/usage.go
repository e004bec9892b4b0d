package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexdesk/lexagent/internal/model"
)

// IncrementUsage adds the given deltas to the (org, period) counter in one
// statement. Concurrent callers never lose an update: the row is created on
// first use and every later call adds to the stored values server-side.
// Returns the counter after the increment.
func (db *DB) IncrementUsage(ctx context.Context, orgID uuid.UUID, period model.Period, tokensIn, tokensOut, costCents int64) (model.UsageCounter, error) {
	c := model.UsageCounter{OrgID: orgID, Period: period}
	err := WithRetry(ctx, writeRetries, writeBaseDelay, func() error {
		return db.pool.QueryRow(ctx,
			`INSERT INTO usage_counters (org_id, period, tokens_in, tokens_out, cost_cents)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (org_id, period) DO UPDATE SET
			     tokens_in  = usage_counters.tokens_in  + EXCLUDED.tokens_in,
			     tokens_out = usage_counters.tokens_out + EXCLUDED.tokens_out,
			     cost_cents = usage_counters.cost_cents + EXCLUDED.cost_cents,
			     updated_at = now()
			 RETURNING tokens_in, tokens_out, cost_cents`,
			orgID, string(period), tokensIn, tokensOut, costCents,
		).Scan(&c.TokensIn, &c.TokensOut, &c.CostCents)
	})
	if err != nil {
		return model.UsageCounter{}, fmt.Errorf("storage: increment usage: %w", err)
	}
	return c, nil
}

// GetUsage returns the counter for (org, period). A period with no activity
// yields a zero counter, not an error.
func (db *DB) GetUsage(ctx context.Context, orgID uuid.UUID, period model.Period) (model.UsageCounter, error) {
	c := model.UsageCounter{OrgID: orgID, Period: period}
	err := db.pool.QueryRow(ctx,
		`SELECT tokens_in, tokens_out, cost_cents FROM usage_counters WHERE org_id = $1 AND period = $2`,
		orgID, string(period),
	).Scan(&c.TokensIn, &c.TokensOut, &c.CostCents)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.UsageCounter{}, fmt.Errorf("storage: get usage: %w", err)
	}
	return c, nil
}
