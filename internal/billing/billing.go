// Package billing accounts token usage and cost per org and billing period.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lexdesk/lexagent/internal/model"
)

// ErrNegativeDelta is returned when an increment would decrease a counter.
var ErrNegativeDelta = errors.New("billing: usage deltas must be non-negative")

// DefaultCentsPerToken prices tokens at $10 per million (0.001 cent each).
var DefaultCentsPerToken = decimal.New(1, -3)

// CostModel converts token counts into integer cents.
type CostModel struct {
	CentsPerToken decimal.Decimal
}

// NewCostModel parses a decimal rate such as "0.001". An empty string
// selects DefaultCentsPerToken.
func NewCostModel(rate string) (CostModel, error) {
	if rate == "" {
		return CostModel{CentsPerToken: DefaultCentsPerToken}, nil
	}
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return CostModel{}, fmt.Errorf("billing: invalid cents-per-token %q: %w", rate, err)
	}
	if d.IsNegative() {
		return CostModel{}, fmt.Errorf("billing: cents-per-token must be non-negative, got %s", rate)
	}
	return CostModel{CentsPerToken: d}, nil
}

// Cost returns round(totalTokens × rate), halves rounded up.
func (c CostModel) Cost(totalTokens int64) int64 {
	return decimal.NewFromInt(totalTokens).Mul(c.CentsPerToken).Round(0).IntPart()
}

// Store is the counter persistence the accountant needs.
type Store interface {
	IncrementUsage(ctx context.Context, orgID uuid.UUID, period model.Period, tokensIn, tokensOut, costCents int64) (model.UsageCounter, error)
	GetUsage(ctx context.Context, orgID uuid.UUID, period model.Period) (model.UsageCounter, error)
	CountRunsBetween(ctx context.Context, orgID uuid.UUID, from, to time.Time) (int64, error)
}

// Accountant maintains the per-(org, period) usage counters.
type Accountant struct {
	store  Store
	cost   CostModel
	now    func() time.Time
	logger *slog.Logger
}

// NewAccountant creates an Accountant. now defaults to time.Now.
func NewAccountant(store Store, cost CostModel, now func() time.Time, logger *slog.Logger) *Accountant {
	if now == nil {
		now = time.Now
	}
	return &Accountant{store: store, cost: cost, now: now, logger: logger}
}

// CurrentPeriod returns the billing period for the accountant's clock.
func (a *Accountant) CurrentPeriod() model.Period {
	return model.PeriodOf(a.now())
}

// CostOf prices a completion's token usage.
func (a *Accountant) CostOf(u model.TokenUsage) int64 {
	return a.cost.Cost(u.TotalTokens)
}
