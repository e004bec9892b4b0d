package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/lexagent/internal/model"
	"github.com/lexdesk/lexagent/internal/testutil"
)

type key struct {
	org    uuid.UUID
	period model.Period
}

type memStore struct {
	mu       sync.Mutex
	counters map[key]model.UsageCounter
	runs     []time.Time // creation times, single org
}

func (m *memStore) IncrementUsage(_ context.Context, org uuid.UUID, p model.Period, in, out, cost int64) (model.UsageCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[key]model.UsageCounter{}
	}
	c := m.counters[key{org, p}]
	c.OrgID, c.Period = org, p
	c.TokensIn += in
	c.TokensOut += out
	c.CostCents += cost
	m.counters[key{org, p}] = c
	return c, nil
}

func (m *memStore) GetUsage(_ context.Context, org uuid.UUID, p model.Period) (model.UsageCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key{org, p}], nil
}

func (m *memStore) CountRunsBetween(_ context.Context, _ uuid.UUID, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.runs {
		if !t.Before(from) && t.Before(to) {
			n++
		}
	}
	return n, nil
}

func TestCostModel(t *testing.T) {
	t.Parallel()

	def, err := NewCostModel("")
	require.NoError(t, err)

	tests := []struct {
		tokens int64
		want   int64
	}{
		{0, 0},
		{499, 0},
		{500, 1}, // half rounds up
		{1499, 1},
		{1500, 2},
		{1_000_000, 1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, def.Cost(tt.tokens), "tokens=%d", tt.tokens)
	}

	custom, err := NewCostModel("0.01")
	require.NoError(t, err)
	assert.Equal(t, int64(15), custom.Cost(1500))

	_, err = NewCostModel("abc")
	assert.Error(t, err)
	_, err = NewCostModel("-1")
	assert.Error(t, err)
}

func TestIncrementAccumulates(t *testing.T) {
	store := &memStore{}
	clock := func() time.Time { return time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC) }
	a := NewAccountant(store, CostModel{CentsPerToken: DefaultCentsPerToken}, clock, testutil.TestLogger())
	ctx := context.Background()
	org := uuid.New()
	period := a.CurrentPeriod()
	assert.Equal(t, model.Period("2025-08"), period)

	_, err := a.Increment(ctx, org, period, model.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150})
	require.NoError(t, err)
	c, err := a.Increment(ctx, org, period, model.TokenUsage{PromptTokens: 200, CompletionTokens: 400, TotalTokens: 600})
	require.NoError(t, err)

	assert.Equal(t, int64(300), c.TokensIn)
	assert.Equal(t, int64(450), c.TokensOut)
	assert.Equal(t, int64(1), c.CostCents, "round(150*0.001)=0 plus round(600*0.001)=1")
}

func TestIncrementRejectsNegative(t *testing.T) {
	a := NewAccountant(&memStore{}, CostModel{CentsPerToken: DefaultCentsPerToken}, nil, testutil.TestLogger())
	_, err := a.Increment(context.Background(), uuid.New(), "2025-01", model.TokenUsage{PromptTokens: -1})
	assert.ErrorIs(t, err, ErrNegativeDelta)
}

func TestSummary(t *testing.T) {
	store := &memStore{runs: []time.Time{
		time.Date(2025, 8, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 9, 2, 12, 0, 0, 0, time.UTC),
	}}
	clock := func() time.Time { return time.Date(2025, 9, 3, 10, 0, 0, 0, time.UTC) }
	a := NewAccountant(store, CostModel{CentsPerToken: DefaultCentsPerToken}, clock, testutil.TestLogger())
	ctx := context.Background()
	org := uuid.New()

	_, err := a.Increment(ctx, org, "2025-09", model.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	require.NoError(t, err)

	s, err := a.Summary(ctx, org, "")
	require.NoError(t, err)
	assert.Equal(t, model.UsageSummary{Period: "2025-09", TotalRuns: 2, TokensIn: 10, TokensOut: 20}, s)

	empty, err := a.Summary(ctx, org, "2024-01")
	require.NoError(t, err)
	assert.Zero(t, empty.TokensIn)
}

func TestSummaryPastPeriodExcludesLaterRuns(t *testing.T) {
	store := &memStore{runs: []time.Time{
		time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
	}}
	clock := func() time.Time { return time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC) }
	a := NewAccountant(store, CostModel{CentsPerToken: DefaultCentsPerToken}, clock, testutil.TestLogger())
	ctx := context.Background()
	org := uuid.New()

	jan, err := a.Summary(ctx, org, "2025-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), jan.TotalRuns)

	feb, err := a.Summary(ctx, org, "2025-02")
	require.NoError(t, err)
	assert.Equal(t, int64(1), feb.TotalRuns)

	current, err := a.Summary(ctx, org, "")
	require.NoError(t, err)
	assert.Equal(t, model.Period("2025-03"), current.Period)
	assert.Equal(t, int64(2), current.TotalRuns)
}
