package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type observation struct {
	Date  string
	Value float64
}

func TestInMemoryCacheManager_SetGet_StructType(t *testing.T) {
	cache := NewInMemoryCacheManager[[]observation]("series", DefaultExpiration, DefaultCleanupInterval)
	obs := []observation{{Date: "2025-01-02", Value: 7100}}
	cache.Set(context.Background(), "fred:WALCL", obs, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "fred:WALCL")
	require.True(t, ok)
	require.Equal(t, obs, got)
}

func TestInMemoryCacheManager_Miss(t *testing.T) {
	cache := NewInMemoryCacheManager[string]("series", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.Get(context.Background(), "fred:SOFR")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_WrongStoredType(t *testing.T) {
	cache := NewInMemoryCacheManager[string]("series", DefaultExpiration, DefaultCleanupInterval)
	cache.cache.Set("fred:SOFR", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "fred:SOFR")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_GetMultiple(t *testing.T) {
	cache := NewInMemoryCacheManager[string]("series", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.GetMultiple(context.Background(), nil)
	require.False(t, ok)
	require.Nil(t, got)

	got, ok = cache.GetMultiple(context.Background(), []string{"a", "b"})
	require.False(t, ok)
	require.Nil(t, got)

	cache.cache.Set("a", "one", DefaultExpiration)
	cache.cache.Set("b", 2, DefaultExpiration)
	got, ok = cache.GetMultiple(context.Background(), []string{"a", "b", "c"})
	require.True(t, ok)
	require.Equal(t, map[string]string{"a": "one"}, got)
}

func TestInMemoryCacheManager_GetWithRefresh(t *testing.T) {
	cache := NewInMemoryCacheManager[string]("series", DefaultExpiration, DefaultCleanupInterval)

	_, ok := cache.GetWithRefresh(context.Background(), "k", time.Hour)
	require.False(t, ok)

	cache.Set(context.Background(), "k", "v", 50*time.Millisecond)
	got, ok := cache.GetWithRefresh(context.Background(), "k", time.Hour)
	require.True(t, ok)
	require.Equal(t, "v", got)

	time.Sleep(80 * time.Millisecond)
	got, ok = cache.Get(context.Background(), "k")
	require.True(t, ok, "refresh should have extended the ttl")
	require.Equal(t, "v", got)
}

func TestInMemoryCacheManager_DeleteAndFlush(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string]("series", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(ctx, "a", "1", DefaultExpiration)
	cache.Set(ctx, "b", "2", DefaultExpiration)

	require.NoError(t, cache.Delete(ctx))
	require.NoError(t, cache.Delete(ctx, "a"))
	_, ok := cache.Get(ctx, "a")
	require.False(t, ok)

	require.NoError(t, cache.Flush(ctx))
	_, ok = cache.Get(ctx, "b")
	require.False(t, ok)
}
