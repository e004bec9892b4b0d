package ratelimit_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/lexagent/internal/ratelimit"
	"github.com/lexdesk/lexagent/internal/testutil"
)

var testRedis *redis.Client

func TestMain(m *testing.M) {
	tc := testutil.MustStartRedis()
	testRedis = redis.NewClient(&redis.Options{Addr: tc.DSN})

	code := m.Run()

	_ = testRedis.Close()
	tc.Terminate()
	os.Exit(code)
}

func TestRedisLimiterWindow(t *testing.T) {
	// Do not Close: it would close the shared client.
	l := ratelimit.NewRedisLimiter(testRedis, 3, time.Minute)
	ctx := context.Background()
	key := "org:" + uuid.NewString() + ":run"

	for i := range 3 {
		ok, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := l.Allow(ctx, "org:"+uuid.NewString()+":run")
	require.NoError(t, err)
	assert.True(t, other)
}

func TestRedisLimiterKeysExpire(t *testing.T) {
	l := ratelimit.NewRedisLimiter(testRedis, 1, time.Second)
	ctx := context.Background()
	key := "org:" + uuid.NewString() + ":run"

	ok, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := testRedis.Keys(ctx, "lexagent:rl:"+key+":*").Result()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	ttl, err := testRedis.TTL(ctx, keys[0]).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisLimiterFromURLBadAddress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := ratelimit.NewRedisLimiterFromURL(ctx, "redis://127.0.0.1:1/0", 1, time.Second)
	assert.Error(t, err)

	_, err = ratelimit.NewRedisLimiterFromURL(ctx, "not a url", 1, time.Second)
	assert.Error(t, err)
}
