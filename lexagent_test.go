package lexagent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/lexagent/internal/blob"
	"github.com/lexdesk/lexagent/internal/config"
	"github.com/lexdesk/lexagent/internal/ratelimit"
	"github.com/lexdesk/lexagent/internal/testutil"
)

func TestNewLimiterDisabled(t *testing.T) {
	l, err := newLimiter(context.Background(), config.Config{RateLimitEnabled: false}, testutil.TestLogger())
	require.NoError(t, err)
	assert.IsType(t, ratelimit.NoopLimiter{}, l)
}

func TestNewLimiterMemory(t *testing.T) {
	cfg := config.Config{RateLimitEnabled: true, RateLimitRPS: 1, RateLimitBurst: 2}
	l, err := newLimiter(context.Background(), cfg, testutil.TestLogger())
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	require.IsType(t, &ratelimit.MemoryLimiter{}, l)
	ctx := context.Background()
	for range 2 {
		ok, err := l.Allow(ctx, "org:x:run")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "org:x:run")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewLimiterRedisUnreachable(t *testing.T) {
	cfg := config.Config{RateLimitEnabled: true, RateLimitRPS: 1, RateLimitBurst: 2, RedisURL: "redis://127.0.0.1:1/0"}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := newLimiter(ctx, cfg, testutil.TestLogger())
	assert.Error(t, err)
}

func TestNewBlobStoreFS(t *testing.T) {
	s, err := newBlobStore(config.Config{BlobBackend: config.BlobBackendFS, BlobDir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &blob.FSStore{}, s)
}

func TestNewInvokerWithoutProviders(t *testing.T) {
	inv := newInvoker(config.Config{ModelTimeout: time.Second}, nil, testutil.TestLogger())
	assert.NotNil(t, inv)
}
