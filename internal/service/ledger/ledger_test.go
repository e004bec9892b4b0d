package ledger

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/lexagent/internal/model"
	"github.com/lexdesk/lexagent/internal/storage"
)

type memStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]model.AgentRun
}

func newMemStore() *memStore { return &memStore{runs: map[uuid.UUID]model.AgentRun{}} }

func (m *memStore) CreateRun(_ context.Context, run model.AgentRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *memStore) FinishRun(_ context.Context, org, id uuid.UUID, status model.RunStatus, out, reason *string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.OrgID != org || r.Status != model.RunStatusQueued {
		return storage.ErrRunNotQueued
	}
	r.Status, r.OutputPath, r.Error, r.FinishedAt = status, out, reason, &at
	m.runs[id] = r
	return nil
}

func (m *memStore) GetRun(_ context.Context, org, id uuid.UUID) (model.AgentRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.OrgID != org {
		return model.AgentRun{}, storage.ErrNotFound
	}
	return r, nil
}

func (m *memStore) ListRuns(context.Context, uuid.UUID, string, int, int) ([]model.AgentRun, error) {
	return nil, nil
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestCreateQueuedTruncatesSummary(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(store, fixedClock(now))
	org := uuid.New()

	id, err := l.CreateQueued(context.Background(), org, "peca", nil, strings.Repeat("x", 500))
	require.NoError(t, err)

	run, err := l.Get(context.Background(), org, id)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.Len(t, run.InputSummary, 200)
	assert.Equal(t, now, run.CreatedAt)
	assert.Nil(t, run.FinishedAt)
}

func TestFinishExactlyOnce(t *testing.T) {
	store := newMemStore()
	l := New(store, nil)
	ctx := context.Background()
	org := uuid.New()

	id, err := l.CreateQueued(ctx, org, "peca", nil, "in")
	require.NoError(t, err)

	out := "org/peca/x.md"
	require.NoError(t, l.Finish(ctx, org, id, model.RunStatusDone, &out, ""))

	err = l.Finish(ctx, org, id, model.RunStatusFailed, nil, "late")
	assert.ErrorIs(t, err, ErrAlreadyFinished)

	run, err := l.Get(ctx, org, id)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, run.Status)
	assert.Equal(t, out, *run.OutputPath)
	assert.NotNil(t, run.FinishedAt)
}

func TestFinishFailedDropsOutputPath(t *testing.T) {
	store := newMemStore()
	l := New(store, nil)
	ctx := context.Background()
	org := uuid.New()

	id, err := l.CreateQueued(ctx, org, "peca", nil, "in")
	require.NoError(t, err)

	out := "ignored.md"
	require.NoError(t, l.Finish(ctx, org, id, model.RunStatusFailed, &out, "provider error"))

	run, err := l.Get(ctx, org, id)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Nil(t, run.OutputPath)
	require.NotNil(t, run.Error)
	assert.Equal(t, "provider error", *run.Error)
}

func TestFinishRejectsQueued(t *testing.T) {
	l := New(newMemStore(), nil)
	err := l.Finish(context.Background(), uuid.New(), uuid.New(), model.RunStatusQueued, nil, "")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyFinished)
}
