package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradequery/internal/store"
)

var _ store.Cache = (*Cache)(nil)

func openCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := openCache(t)

	_, ok, err := cache.Lookup(ctx, "missing", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Save(ctx, "k", []byte(`[["a"],["1"]]`)))
	body, ok, err := cache.Lookup(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[["a"],["1"]]`, string(body))

	require.NoError(t, cache.Save(ctx, "k", []byte(`[["b"]]`)))
	body, _, err = cache.Lookup(ctx, "k", 0)
	require.NoError(t, err)
	assert.Equal(t, `[["b"]]`, string(body))

	require.NoError(t, cache.Save(ctx, "empty", nil))
	body, ok, err = cache.Lookup(ctx, "empty", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, body)
}

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	cache := openCache(t)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	require.NoError(t, cache.Save(ctx, "old", []byte("x")))

	now = now.Add(2 * time.Hour)
	require.NoError(t, cache.Save(ctx, "new", []byte("y")))

	_, ok, err := cache.Lookup(ctx, "old", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cache.Lookup(ctx, "old", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := cache.Purge(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, ok, err = cache.Lookup(ctx, "new", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	var nilCache *Cache
	assert.NoError(t, nilCache.Close())
}

func TestNopCache(t *testing.T) {
	var cache store.Cache = &store.NopCache{}
	require.NoError(t, cache.Save(context.Background(), "k", []byte("x")))
	_, ok, err := cache.Lookup(context.Background(), "k", 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, cache.Close())
}
