package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisBucketStore, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := time.Date(2025, 3, 14, 9, 0, 30, 0, time.UTC)
	store := NewRedisBucketStore(client)
	store.now = func() time.Time { return clock }
	return store, mr, &clock
}

func TestRedisBucketStoreCountsPerWindow(t *testing.T) {
	store, mr, clock := newRedisStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := store.Allow(ctx, "actor:1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3-i, res.Remaining)
	}

	res, err := store.Allow(ctx, "actor:1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30, res.RetryAfter)

	key := windowKey("actor:1", time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	count, err := store.GetCurrentCount(ctx, "actor:1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	*clock = clock.Add(time.Minute)
	res, err = store.Allow(ctx, "actor:1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestRedisBucketStoreExpiresWindows(t *testing.T) {
	store, mr, _ := newRedisStore(t)
	ctx := context.Background()

	_, err := store.Allow(ctx, "actor:2", 5, time.Minute)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	count, err := store.GetCurrentCount(ctx, "actor:2", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRedisBucketStoreReportsOutage(t *testing.T) {
	store, mr, _ := newRedisStore(t)
	mr.Close()

	_, err := store.Allow(context.Background(), "actor:3", 5, time.Minute)
	assert.Error(t, err)
}
