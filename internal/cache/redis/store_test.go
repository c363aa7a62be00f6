package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagecrawl/internal/cache"
)

// setupTestRedis connects to a local Redis and skips when none is running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available for testing: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		_ = client.Close()
	})
	return client
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{})
	require.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer func() { _ = client.Close() }()
	store, err := New(client, Config{})
	require.NoError(t, err)
	require.Equal(t, "pagecrawl:", store.prefix)

	_, _, err = store.Get(context.Background(), "")
	require.ErrorIs(t, err, cache.ErrInvalidKey)
}

func TestStoreRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	store, err := New(client, Config{TTL: time.Minute})
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "page.html")
	require.NoError(t, err)
	require.False(t, ok)

	meta := &cache.Meta{Status: 200, RealURL: "https://wear.jp/"}
	require.NoError(t, store.Set(ctx, "page.html", []byte("<html>"), meta))

	entry, ok, err := store.Get(ctx, "page.html")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("<html>"), entry.Content)
	require.Equal(t, meta, entry.Meta)

	ttl, err := client.TTL(ctx, "pagecrawl:page.html").Result()
	require.NoError(t, err)
	require.Positive(t, ttl)
}
