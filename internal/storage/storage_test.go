package storage_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/lexagent/internal/model"
	"github.com/lexdesk/lexagent/internal/storage"
	"github.com/lexdesk/lexagent/internal/testutil"
	"github.com/lexdesk/lexagent/migrations"
)

// testDB is shared by every test in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	db, err := tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		panic(err)
	}
	testDB = db

	code := m.Run()
	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func ptr[T any](v T) *T { return &v }

func TestRunMigrationsIsIdempotent(t *testing.T) {
	require.NoError(t, testDB.RunMigrations(context.Background(), migrations.FS))
}

func TestCatalogInsertAndList(t *testing.T) {
	ctx := context.Background()
	key := "cat-" + uuid.NewString()[:8]

	n, err := testDB.InsertCatalogEntries(ctx, []model.CatalogEntry{{
		Key:            key,
		Name:           "Catalog Test",
		DefaultEnabled: true,
		DefaultParams:  model.AgentParams{Temperature: ptr(0.4), MaxTokens: ptr(900)},
		SystemPrompt:   ptr("prompt"),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A second seed of the same key is a no-op.
	n, err = testDB.InsertCatalogEntries(ctx, []model.CatalogEntry{{Key: key, Name: "Renamed"}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	entries, err := testDB.ListCatalog(ctx)
	require.NoError(t, err)

	var found *model.CatalogEntry
	for i := range entries {
		if entries[i].Key == key {
			found = &entries[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "Catalog Test", found.Name)
	assert.Equal(t, model.DefaultModel, found.DefaultModel)
	require.NotNil(t, found.DefaultParams.Temperature)
	assert.InDelta(t, 0.4, *found.DefaultParams.Temperature, 1e-9)
	require.NotNil(t, found.DefaultParams.MaxTokens)
	assert.Equal(t, 900, *found.DefaultParams.MaxTokens)
}

func TestSetOverrideEnabledPreservesOtherFields(t *testing.T) {
	ctx := context.Background()
	org := uuid.New()

	require.NoError(t, testDB.UpsertOverride(ctx, model.Override{
		OrgID:       org,
		AgentKey:    "peca",
		Model:       ptr("gpt-4o"),
		Temperature: ptr(0.25),
	}))
	require.NoError(t, testDB.SetOverrideEnabled(ctx, org, "peca", false))

	overrides, err := testDB.ListOverrides(ctx, org)
	require.NoError(t, err)
	require.Len(t, overrides, 1)

	o := overrides[0]
	require.NotNil(t, o.Enabled)
	assert.False(t, *o.Enabled)
	require.NotNil(t, o.Model)
	assert.Equal(t, "gpt-4o", *o.Model)
	require.NotNil(t, o.Temperature)
	assert.InDelta(t, 0.25, *o.Temperature, 1e-9)
	assert.Nil(t, o.MaxTokens)

	// Toggling again updates in place; still one row.
	require.NoError(t, testDB.SetOverrideEnabled(ctx, org, "peca", true))
	overrides, err = testDB.ListOverrides(ctx, org)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.True(t, *overrides[0].Enabled)
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	org := uuid.New()
	run := model.AgentRun{
		ID:           uuid.New(),
		OrgID:        org,
		AgentKey:     "pesquisa",
		InputSummary: "pesquise X",
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, testDB.CreateRun(ctx, run))

	got, err := testDB.GetRun(ctx, org, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, got.Status)
	assert.Nil(t, got.FinishedAt)
	assert.Nil(t, got.OutputPath)

	finished := time.Now().UTC()
	require.NoError(t, testDB.FinishRun(ctx, org, run.ID, model.RunStatusDone, ptr("a/b.md"), nil, finished))

	got, err = testDB.GetRun(ctx, org, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, got.Status)
	require.NotNil(t, got.OutputPath)
	assert.Equal(t, "a/b.md", *got.OutputPath)
	require.NotNil(t, got.FinishedAt)

	// A terminal run cannot transition again.
	err = testDB.FinishRun(ctx, org, run.ID, model.RunStatusFailed, nil, ptr("late"), finished)
	assert.ErrorIs(t, err, storage.ErrRunNotQueued)

	// Org scoping: another org sees nothing.
	_, err = testDB.GetRun(ctx, uuid.New(), run.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = testDB.FinishRun(ctx, org, run.ID, model.RunStatusQueued, nil, nil, finished)
	assert.Error(t, err)
}

func TestListAndCountRuns(t *testing.T) {
	ctx := context.Background()
	org := uuid.New()
	base := time.Date(2025, time.March, 31, 23, 0, 0, 0, time.UTC)

	for i, key := range []string{"peca", "peca", "contrato"} {
		require.NoError(t, testDB.CreateRun(ctx, model.AgentRun{
			ID:        uuid.New(),
			OrgID:     org,
			AgentKey:  key,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	all, err := testDB.ListRuns(ctx, org, "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "contrato", all[0].AgentKey, "newest first")

	pecas, err := testDB.ListRuns(ctx, org, "peca", 10, 0)
	require.NoError(t, err)
	assert.Len(t, pecas, 2)

	april := model.Period("2025-04")
	n, err := testDB.CountRunsBetween(ctx, org, april.Start(), april.End())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	march := model.Period("2025-03")
	n, err = testDB.CountRunsBetween(ctx, org, march.Start(), march.End())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "April runs are not counted in March")
}

func TestFailStaleRuns(t *testing.T) {
	ctx := context.Background()
	org := uuid.New()
	now := time.Now().UTC()

	stale := model.AgentRun{ID: uuid.New(), OrgID: org, AgentKey: "peca", CreatedAt: now.Add(-2 * time.Hour)}
	fresh := model.AgentRun{ID: uuid.New(), OrgID: org, AgentKey: "peca", CreatedAt: now}
	require.NoError(t, testDB.CreateRun(ctx, stale))
	require.NoError(t, testDB.CreateRun(ctx, fresh))

	failed, err := testDB.FailStaleRuns(ctx, now.Add(-time.Hour), "expired", now)
	require.NoError(t, err)

	var ids []uuid.UUID
	for _, r := range failed {
		ids = append(ids, r.ID)
		assert.Equal(t, model.RunStatusFailed, r.Status)
	}
	assert.Contains(t, ids, stale.ID)
	assert.NotContains(t, ids, fresh.ID)

	got, err := testDB.GetRun(ctx, org, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, got.Status)
}

func TestIncrementUsageConcurrent(t *testing.T) {
	ctx := context.Background()
	org := uuid.New()
	period := model.Period("2025-05")

	const workers = 50
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in, out := int64(100), int64(200)
			if i%2 == 1 {
				in, out = 200, 100
			}
			_, err := testDB.IncrementUsage(ctx, org, period, in, out, 1)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := testDB.GetUsage(ctx, org, period)
	require.NoError(t, err)
	assert.Equal(t, int64(workers/2*100+workers/2*200), got.TokensIn)
	assert.Equal(t, int64(workers/2*200+workers/2*100), got.TokensOut)
	assert.Equal(t, int64(workers), got.CostCents)
}

func TestIncrementUsageSumsSequentialCalls(t *testing.T) {
	ctx := context.Background()
	org := uuid.New()

	_, err := testDB.IncrementUsage(ctx, org, "2025-06", 100, 10, 0)
	require.NoError(t, err)
	c, err := testDB.IncrementUsage(ctx, org, "2025-06", 200, 20, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(300), c.TokensIn)
	assert.Equal(t, int64(30), c.TokensOut)
	assert.Equal(t, int64(1), c.CostCents)

	// Other periods are isolated.
	empty, err := testDB.GetUsage(ctx, org, "2025-07")
	require.NoError(t, err)
	assert.Zero(t, empty.TokensIn)
}

func TestAuditLogAppendOnly(t *testing.T) {
	ctx := context.Background()
	org := uuid.New()
	user := uuid.New()

	require.NoError(t, testDB.InsertAuditLog(ctx, model.AuditLogEntry{
		OrgID:  org,
		UserID: &user,
		Action: model.AuditActionAgentRun,
		Meta:   map[string]any{"agentKey": "peca", "output_path": "x.md"},
	}))

	entries, err := testDB.ListAuditLogs(ctx, org, model.AuditActionAgentRun, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "peca", entries[0].Meta["agentKey"])
	require.NotNil(t, entries[0].UserID)
	assert.Equal(t, user, *entries[0].UserID)

	_, err = testDB.Pool().Exec(ctx, `DELETE FROM audit_logs WHERE org_id = $1`, org)
	assert.Error(t, err, "audit_logs rejects deletes")
}

func TestBlobPutOverwrites(t *testing.T) {
	ctx := context.Background()
	path := uuid.NewString() + "/doc.md"

	require.NoError(t, testDB.PutBlob(ctx, "outputs", path, "text/markdown", []byte("v1")))
	require.NoError(t, testDB.PutBlob(ctx, "outputs", path, "text/plain", []byte("v2")))

	body, ct, err := testDB.GetBlob(ctx, "outputs", path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(body))
	assert.Equal(t, "text/plain", ct)

	_, _, err = testDB.GetBlob(ctx, "outputs", "missing.md")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
