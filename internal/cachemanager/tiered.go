package cachemanager

import (
	"context"
	"errors"
	"time"
)

// TieredCacheManager reads through a fast front cache to a durable back cache
// and promotes back-cache hits into the front.
type TieredCacheManager[K comparable, V any] struct {
	front    CacheManager[K, V]
	back     CacheManager[K, V]
	frontTTL time.Duration
}

// NewTieredCacheManager layers front over back. Promoted entries live in the
// front cache for frontTTL.
func NewTieredCacheManager[K comparable, V any](front, back CacheManager[K, V], frontTTL time.Duration) *TieredCacheManager[K, V] {
	return &TieredCacheManager[K, V]{front: front, back: back, frontTTL: frontTTL}
}

func (t *TieredCacheManager[K, V]) Get(ctx context.Context, key K) (V, bool) {
	if v, ok := t.front.Get(ctx, key); ok {
		return v, true
	}
	v, ok := t.back.Get(ctx, key)
	if ok {
		t.front.Set(ctx, key, v, t.frontTTL)
	}
	return v, ok
}

func (t *TieredCacheManager[K, V]) GetMultiple(ctx context.Context, keys []K) (map[K]V, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	values := make(map[K]V, len(keys))
	for _, key := range keys {
		if v, ok := t.Get(ctx, key); ok {
			values[key] = v
		}
	}
	if len(values) == 0 {
		return nil, false
	}
	return values, true
}

func (t *TieredCacheManager[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	v, ok := t.back.GetWithRefresh(ctx, key, ttl)
	if ok {
		t.front.Set(ctx, key, v, t.frontTTL)
	}
	return v, ok
}

func (t *TieredCacheManager[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	t.back.Set(ctx, key, value, ttl)
	frontTTL := t.frontTTL
	if ttl > 0 && ttl < frontTTL {
		frontTTL = ttl
	}
	t.front.Set(ctx, key, value, frontTTL)
}

func (t *TieredCacheManager[K, V]) Delete(ctx context.Context, keys ...K) error {
	return errors.Join(t.front.Delete(ctx, keys...), t.back.Delete(ctx, keys...))
}

func (t *TieredCacheManager[K, V]) Flush(ctx context.Context) error {
	return errors.Join(t.front.Flush(ctx), t.back.Flush(ctx))
}
