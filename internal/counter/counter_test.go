package counter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisStore_Incr(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewStoreWithClient(client)
	ctx := context.Background()

	t.Run("increments sequentially", func(t *testing.T) {
		for want := int64(1); want <= 5; want++ {
			got, err := store.Incr(ctx, "seq", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("first increment arms the TTL", func(t *testing.T) {
		_, err := store.Incr(ctx, "window", time.Minute)
		require.NoError(t, err)
		ttl := mr.TTL("window")
		assert.Equal(t, time.Minute, ttl)
	})

	t.Run("later increments do not extend the window", func(t *testing.T) {
		_, err := store.Incr(ctx, "fixed", time.Minute)
		require.NoError(t, err)

		mr.FastForward(30 * time.Second)

		_, err = store.Incr(ctx, "fixed", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, mr.TTL("fixed"))
	})

	t.Run("counter resets after the window elapses", func(t *testing.T) {
		_, err := store.Incr(ctx, "expiring", time.Second)
		require.NoError(t, err)

		mr.FastForward(1100 * time.Millisecond)

		got, err := store.Incr(ctx, "expiring", time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)
	})
}

func TestRedisStore_Reset(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewStoreWithClient(client)
	ctx := context.Background()

	_, err := store.Incr(ctx, "ratelimit:address:10.0.0.1:ingest", time.Minute)
	require.NoError(t, err)
	_, err = store.Incr(ctx, "ratelimit:address:10.0.0.1:enforce", time.Minute)
	require.NoError(t, err)
	_, err = store.Incr(ctx, "ratelimit:address:10.0.0.2:ingest", time.Minute)
	require.NoError(t, err)

	deleted, err := store.Reset(ctx, "ratelimit:address:10.0.0.1:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// Untouched identity keeps its count
	got, err := store.Incr(ctx, "ratelimit:address:10.0.0.2:ingest", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}

func TestCache(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewCache(client, "reputation:")
	ctx := context.Background()

	type entry struct {
		Malicious bool    `json:"malicious"`
		Score     float64 `json:"score"`
	}

	t.Run("miss on absent key", func(t *testing.T) {
		var e entry
		found, err := cache.Get(ctx, "http://example.com", &e)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("set then get", func(t *testing.T) {
		err := cache.Set(ctx, "http://evil.test", entry{Malicious: true, Score: 1.0}, time.Hour)
		require.NoError(t, err)

		var e entry
		found, err := cache.Get(ctx, "http://evil.test", &e)
		require.NoError(t, err)
		assert.True(t, found)
		assert.True(t, e.Malicious)
		assert.Equal(t, 1.0, e.Score)
	})

	t.Run("entry expires", func(t *testing.T) {
		err := cache.Set(ctx, "http://stale.test", entry{Score: 0.5}, time.Minute)
		require.NoError(t, err)

		mr.FastForward(2 * time.Minute)

		var e entry
		found, err := cache.Get(ctx, "http://stale.test", &e)
		require.NoError(t, err)
		assert.False(t, found)
	})
}
