package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/lexagent/internal/ctxutil"
	"github.com/lexdesk/lexagent/internal/model"
	"github.com/lexdesk/lexagent/internal/testutil"
)

type flakyStore struct {
	failures int
	calls    int
	entries  []model.AuditLogEntry
	deadline bool // whether the last insert saw a deadline
}

func (f *flakyStore) InsertAuditLog(ctx context.Context, e model.AuditLogEntry) error {
	f.calls++
	_, f.deadline = ctx.Deadline()
	if f.calls <= f.failures {
		return errors.New("connection reset")
	}
	f.entries = append(f.entries, e)
	return nil
}

func TestRecord(t *testing.T) {
	store := &flakyStore{}
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	r := NewRecorder(store, func() time.Time { return now }, testutil.TestLogger())

	org, user := uuid.New(), uuid.New()
	ctx := ctxutil.WithUserID(ctxutil.WithRequestID(context.Background(), "req-9"), user)

	require.NoError(t, r.Record(ctx, org, model.AuditActionAgentRun, map[string]any{"agentKey": "peca"}))
	require.Len(t, store.entries, 1)

	e := store.entries[0]
	assert.Equal(t, org, e.OrgID)
	assert.Equal(t, user, *e.UserID)
	assert.Equal(t, model.AuditActionAgentRun, e.Action)
	assert.Equal(t, "peca", e.Meta["agentKey"])
	assert.Equal(t, "req-9", e.Meta["request_id"])
	assert.Equal(t, now, e.CreatedAt)
}

func TestRecordWithoutActor(t *testing.T) {
	store := &flakyStore{}
	r := NewRecorder(store, nil, testutil.TestLogger())

	require.NoError(t, r.Record(context.Background(), uuid.New(), "x", nil))
	assert.Equal(t, 1, store.calls)
	assert.True(t, store.deadline, "the insert is bounded by a timeout")
	assert.Nil(t, store.entries[0].UserID)
}

func TestRecordFailsOnFirstError(t *testing.T) {
	store := &flakyStore{failures: 1}
	r := NewRecorder(store, nil, testutil.TestLogger())

	err := r.Record(context.Background(), uuid.New(), "x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, store.calls, "no retry")
	assert.Empty(t, store.entries)
}

func TestRecordHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &ctxStore{}
	r := NewRecorder(store, nil, testutil.TestLogger())

	err := r.Record(ctx, uuid.New(), "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type ctxStore struct{}

func (ctxStore) InsertAuditLog(ctx context.Context, _ model.AuditLogEntry) error {
	return ctx.Err()
}
