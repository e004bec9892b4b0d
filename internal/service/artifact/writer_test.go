package artifact

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/lexagent/internal/blob"
)

func newFSWriter(t *testing.T, opts ...Option) (*Writer, *blob.FSStore) {
	t.Helper()
	store, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return NewWriter(store, "https://api.example.com", opts...), store
}

func TestShouldWrite(t *testing.T) {
	t.Parallel()

	assert.False(t, ShouldWrite("prazos"))
	for _, k := range []string{"pesquisa", "peca", "contrato", "traducao", "evidencias", "audiencia", "custom"} {
		assert.True(t, ShouldWrite(k), k)
	}
}

func TestWriteOutputPathShape(t *testing.T) {
	t.Parallel()

	org := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	id := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	clock := func() time.Time { return time.Date(2025, 2, 3, 23, 30, 0, 0, time.FixedZone("X", -5*3600)) }
	w, store := newFSWriter(t, WithClock(clock), WithIDs(func() uuid.UUID { return id }))

	path, err := w.WriteOutput(context.Background(), org, "peca", "# Minuta")
	require.NoError(t, err)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111/peca/2025-02-04_22222222-2222-2222-2222-222222222222.md", path)

	obj, err := store.Get(context.Background(), DefaultBucket, path)
	require.NoError(t, err)
	assert.Equal(t, "# Minuta", string(obj.Body))
	assert.Equal(t, DefaultContentType, obj.ContentType)
}

func TestWriteOutputUniquePaths(t *testing.T) {
	t.Parallel()

	w, _ := newFSWriter(t)
	org := uuid.New()
	a, err := w.WriteOutput(context.Background(), org, "peca", "a")
	require.NoError(t, err)
	b, err := w.WriteOutput(context.Background(), org, "peca", "b")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Regexp(t, regexp.MustCompile(`^`+org.String()+`/peca/\d{4}-\d{2}-\d{2}_[0-9a-f-]{36}\.md$`), a)
}

func TestPutTextDefaultsAndOverwrite(t *testing.T) {
	t.Parallel()

	w, store := newFSWriter(t)
	ctx := context.Background()

	res, err := w.PutText(ctx, "", "notes/a.md", "one", "")
	require.NoError(t, err)
	assert.Equal(t, "notes/a.md", res.Path)
	assert.Equal(t, "outputs/notes/a.md", res.FullPath)

	_, err = w.PutText(ctx, "", "notes/a.md", "two", "text/plain")
	require.NoError(t, err)

	obj, err := store.Get(ctx, "outputs", "notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, "two", string(obj.Body))
	assert.Equal(t, "text/plain", obj.ContentType)

	_, err = w.PutText(ctx, "outputs", "../x.md", "bad", "")
	assert.ErrorIs(t, err, blob.ErrInvalidName)
}

func TestURL(t *testing.T) {
	t.Parallel()

	w, _ := newFSWriter(t)
	assert.Equal(t, "https://api.example.com/storage/v1/object/public/outputs/a/b.md", w.URL("", "a/b.md"))
	assert.Equal(t, "https://api.example.com/storage/v1/object/public/docs/a.md", w.URL("docs", "a.md"))
}
