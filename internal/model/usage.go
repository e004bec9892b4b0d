package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Period is a billing period in "YYYY-MM" form (UTC).
type Period string

const periodLayout = "2006-01"

// PeriodOf returns the billing period containing t.
func PeriodOf(t time.Time) Period {
	return Period(t.UTC().Format(periodLayout))
}

// ParsePeriod validates a "YYYY-MM" string.
func ParsePeriod(s string) (Period, error) {
	if _, err := time.Parse(periodLayout, s); err != nil {
		return "", fmt.Errorf("invalid period %q: want YYYY-MM", s)
	}
	return Period(s), nil
}

// Start returns the first instant of the period in UTC.
func (p Period) Start() time.Time {
	t, err := time.Parse(periodLayout, string(p))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// End returns the first instant after the period, exclusive.
func (p Period) End() time.Time {
	start := p.Start()
	if start.IsZero() {
		return start
	}
	return start.AddDate(0, 1, 0)
}

// UsageCounter is the running token and cost total for one org in one period.
type UsageCounter struct {
	OrgID     uuid.UUID `json:"org_id"`
	Period    Period    `json:"period"`
	TokensIn  int64     `json:"tokens_in"`
	TokensOut int64     `json:"tokens_out"`
	CostCents int64     `json:"cost_cents"`
}

// TokenUsage is what a provider reports for one completion.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// UsageSummary is the per-period report returned by usage.get.
type UsageSummary struct {
	Period    Period `json:"period"`
	TotalRuns int64  `json:"total_runs"`
	TokensIn  int64  `json:"tokens_in"`
	TokensOut int64  `json:"tokens_out"`
	CostCents int64  `json:"cost_cents"`
}
