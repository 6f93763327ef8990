package cachemanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/macropulse/macropulse/internal/log"
)

// DiskCacheManager persists entries as JSON files in a directory so that the
// cache survives between runs. Each entry carries its own expiry.
type DiskCacheManager[V any] struct {
	dir        string
	defaultTTL time.Duration
	now        func() time.Time
}

type diskEntry[V any] struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
	Value     V         `json:"value"`
}

// NewDiskCacheManager creates a disk cache rooted at dir. A ttl of zero on Set
// uses defaultTTL.
func NewDiskCacheManager[V any](dir string, defaultTTL time.Duration) *DiskCacheManager[V] {
	return &DiskCacheManager[V]{dir: dir, defaultTTL: defaultTTL, now: time.Now}
}

// Dir returns the cache directory.
func (c *DiskCacheManager[V]) Dir() string { return c.dir }

func (c *DiskCacheManager[V]) path(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return filepath.Join(c.dir, b.String()+".json")
}

func (c *DiskCacheManager[V]) load(key string) (diskEntry[V], bool) {
	var entry diskEntry[V]
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn(log.CatCache, "failed to read cache entry", "key", key, "error", err.Error())
		}
		return entry, false
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Warn(log.CatCache, "discarding corrupt cache entry", "key", key, "error", err.Error())
		_ = os.Remove(c.path(key))
		return entry, false
	}
	// Two keys can sanitize to the same file name.
	if entry.Key != key {
		return entry, false
	}
	return entry, true
}

// Get returns the value if present and not expired.
func (c *DiskCacheManager[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V
	entry, ok := c.load(key)
	if !ok {
		return zero, false
	}
	if !c.now().Before(entry.ExpiresAt) {
		log.Debug(log.CatCache, "disk cache entry expired", "key", key, "expired_at", entry.ExpiresAt)
		return zero, false
	}
	log.Debug(log.CatCache, "disk cache hit", "key", key)
	return entry.Value, true
}

// GetMultiple returns every present key. ok is false when none were found.
func (c *DiskCacheManager[V]) GetMultiple(ctx context.Context, keys []string) (map[string]V, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	values := make(map[string]V, len(keys))
	for _, key := range keys {
		if v, ok := c.Get(ctx, key); ok {
			values[key] = v
		}
	}
	if len(values) == 0 {
		return nil, false
	}
	return values, true
}

// GetWithRefresh returns the value and rewrites it with a fresh TTL.
func (c *DiskCacheManager[V]) GetWithRefresh(ctx context.Context, key string, ttl time.Duration) (V, bool) {
	v, ok := c.Get(ctx, key)
	if ok {
		c.Set(ctx, key, v, ttl)
	}
	return v, ok
}

// Set writes the entry atomically. Failures are logged, not returned; a cache
// write never fails a run.
func (c *DiskCacheManager[V]) Set(_ context.Context, key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.write(key, diskEntry[V]{Key: key, ExpiresAt: c.now().Add(ttl), Value: value}); err != nil {
		log.Warn(log.CatCache, "failed to write cache entry", "key", key, "error", err.Error())
	}
}

func (c *DiskCacheManager[V]) write(key string, entry diskEntry[V]) error {
	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".entry.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Delete removes entries. Missing entries are ignored.
func (c *DiskCacheManager[V]) Delete(_ context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush removes every entry in the cache directory.
func (c *DiskCacheManager[V]) Flush(_ context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading cache directory: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", e.Name(), err)
		}
		removed++
	}
	log.Info(log.CatCache, "disk cache cleared", "dir", c.dir, "entries", removed)
	return nil
}
