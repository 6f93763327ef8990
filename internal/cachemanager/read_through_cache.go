package cachemanager

import (
	"context"
	"time"

	"github.com/macropulse/macropulse/internal/log"
)

// ReadThroughCache loads missing values through fn and stores successful results.
// Failed loads are never cached.
type ReadThroughCache[K comparable, V any, I any] struct {
	cache  CacheManager[K, V]
	fn     func(ctx context.Context, input I) (V, error)
	bypass bool
}

// NewReadThroughCache wraps cache with loader fn. When bypass is true every
// call goes to fn and nothing is stored.
func NewReadThroughCache[K comparable, V any, I any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, input I) (V, error),
	bypass bool,
) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{
		cache:  cache,
		fn:     fn,
		bypass: bypass,
	}
}

// Get returns the cached value for key, loading it with input on a miss.
func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	return r.get(ctx, key, input, ttl, r.cache.Get)
}

// GetWithRefresh is Get but extends the TTL of a hit.
func (r *ReadThroughCache[K, V, I]) GetWithRefresh(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	return r.get(ctx, key, input, ttl, func(ctx context.Context, key K) (V, bool) {
		return r.cache.GetWithRefresh(ctx, key, ttl)
	})
}

func (r *ReadThroughCache[K, V, I]) get(ctx context.Context, key K, input I, ttl time.Duration, lookup func(context.Context, K) (V, bool)) (V, error) {
	if r.bypass {
		return r.fn(ctx, input)
	}

	if value, ok := lookup(ctx, key); ok {
		return value, nil
	}

	value, err := r.fn(ctx, input)
	if err != nil {
		log.Debug(log.CatCache, "read-through load failed", "key", key, "error", err.Error())
		return value, err
	}

	r.cache.Set(ctx, key, value, ttl)
	return value, nil
}

// Flush empties the underlying cache.
func (r *ReadThroughCache[K, V, I]) Flush(ctx context.Context) error {
	return r.cache.Flush(ctx)
}
