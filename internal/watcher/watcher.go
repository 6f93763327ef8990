// Package watcher reports replacements of a published file. Atomic publishes
// rename a temp file over the target, so the parent directory is watched and
// events are filtered by name.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/macropulse/macropulse/internal/log"
)

// DefaultDebounce coalesces the write, chmod and rename of one publish.
const DefaultDebounce = 500 * time.Millisecond

// Watcher signals after the watched file settles.
type Watcher struct {
	fs       *fsnotify.Watcher
	path     string
	debounce time.Duration
}

// New creates a watcher for path. A debounce of zero uses DefaultDebounce.
func New(path string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{fs: fsw, path: filepath.Clean(path), debounce: debounce}, nil
}

// Watch starts watching. The returned channel receives one signal per
// settled change and closes when ctx ends.
func (w *Watcher) Watch(ctx context.Context) (<-chan struct{}, error) {
	dir := filepath.Dir(w.path)
	if err := w.fs.Add(dir); err != nil {
		_ = w.fs.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	out := make(chan struct{}, 1)
	go w.loop(ctx, out)
	return out, nil
}

func (w *Watcher) loop(ctx context.Context, out chan<- struct{}) {
	defer close(out)
	defer func() { _ = w.fs.Close() }()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				timer.Reset(w.debounce)
			}

		case <-timer.C:
			select {
			case out <- struct{}{}:
			default:
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatPublish, "File watch error", "path", w.path, "error", err.Error())
		}
	}
}

// relevant reports a write to, or a rename onto, the watched file.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	return filepath.Clean(ev.Name) == w.path
}
