package cachemanager

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/macropulse/macropulse/internal/log"
)

const DefaultExpiration = 10 * time.Minute
const DefaultCleanupInterval = 30 * time.Minute

// InMemoryCacheManager is a process-local CacheManager backed by go-cache.
type InMemoryCacheManager[V any] struct {
	useCase string
	cache   *gocache.Cache
}

// NewInMemoryCacheManager creates an in-memory cache. useCase tags log entries.
func NewInMemoryCacheManager[V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *InMemoryCacheManager[V] {
	return &InMemoryCacheManager[V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Get retrieves an item from the cache by its key.
func (c *InMemoryCacheManager[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V

	value, found := c.cache.Get(key)
	if !found {
		return zero, false
	}

	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type assertion when getting value", "cache", c.useCase, "key", key)
		return zero, false
	}

	log.Debug(log.CatCache, "memory cache hit", "cache", c.useCase, "key", key)
	return v, true
}

// GetMultiple returns every present key. ok is false when none were found.
func (c *InMemoryCacheManager[V]) GetMultiple(ctx context.Context, keys []string) (map[string]V, bool) {
	if len(keys) == 0 {
		return nil, false
	}

	values := make(map[string]V, len(keys))
	var missing []string
	for _, key := range keys {
		v, ok := c.Get(ctx, key)
		if !ok {
			missing = append(missing, key)
			continue
		}
		values[key] = v
	}

	if len(values) == 0 {
		return nil, false
	}
	if len(missing) > 0 {
		log.Debug(log.CatCache, "partial cache miss", "cache", c.useCase, "missing", missing)
	}
	return values, true
}

// GetWithRefresh retrieves an item and, when found, extends its TTL.
func (c *InMemoryCacheManager[V]) GetWithRefresh(ctx context.Context, key string, ttl time.Duration) (V, bool) {
	value, found := c.Get(ctx, key)
	if !found {
		return value, false
	}
	c.Set(ctx, key, value, ttl)
	return value, true
}

// Set stores value under key for ttl.
func (c *InMemoryCacheManager[V]) Set(_ context.Context, key string, value V, ttl time.Duration) {
	c.cache.Set(key, value, ttl)
}

// Delete removes keys from the cache.
func (c *InMemoryCacheManager[V]) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.cache.Delete(key)
	}
	return nil
}

// Flush empties the cache.
func (c *InMemoryCacheManager[V]) Flush(_ context.Context) error {
	c.cache.Flush()
	log.Debug(log.CatCache, "memory cache flushed", "cache", c.useCase)
	return nil
}
