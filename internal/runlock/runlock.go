// Package runlock guarantees at most one pipeline run per lock path.
package runlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/macropulse/macropulse/internal/log"
)

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("another run holds the lock")

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID       int       `json:"pid"`
	Host      string    `json:"host"`
	Token     string    `json:"token"`
	StartedAt time.Time `json:"started_at"`
}

// LockedError carries the current holder of a contended lock.
type LockedError struct {
	Path   string
	Holder Holder
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s: held by pid %d on %s since %s", ErrLocked, e.Holder.PID, e.Holder.Host, e.Holder.StartedAt.Format(time.RFC3339))
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// Lock is an acquired run lock.
type Lock struct {
	path   string
	holder Holder
}

// processAlive is replaced in tests.
var processAlive = func(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Acquire takes the lock at path. A lock left by a dead process on this host
// is taken over; a lock held by a live process returns a *LockedError.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	host, _ := os.Hostname()
	holder := Holder{
		PID:       os.Getpid(),
		Host:      host,
		Token:     uuid.NewString(),
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}

	// One retry after clearing a stale lock.
	for attempt := 0; attempt < 2; attempt++ {
		err := create(path, holder)
		if err == nil {
			log.Debug(log.CatLock, "Acquired run lock", "path", path, "pid", holder.PID)
			return &Lock{path: path, holder: holder}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("creating lock file: %w", err)
		}

		current, rerr := read(path)
		if rerr != nil {
			// Unreadable: either being written right now or corrupt. Age decides.
			info, serr := os.Stat(path)
			if serr == nil && time.Since(info.ModTime()) > time.Minute {
				log.Warn(log.CatLock, "Removing unreadable lock file", "path", path, "error", rerr.Error())
				if err := clearStale(path, ""); err != nil {
					if errors.Is(err, errTakeoverBusy) {
						return nil, &LockedError{Path: path}
					}
					return nil, err
				}
				continue
			}
			return nil, &LockedError{Path: path}
		}
		if current.Host == host && !processAlive(current.PID) {
			log.Warn(log.CatLock, "Taking over stale run lock", "path", path, "stale_pid", current.PID)
			if err := clearStale(path, current.Token); err != nil {
				if errors.Is(err, errTakeoverBusy) {
					return nil, &LockedError{Path: path, Holder: current}
				}
				return nil, err
			}
			continue
		}
		return nil, &LockedError{Path: path, Holder: current}
	}
	return nil, &LockedError{Path: path}
}

var errTakeoverBusy = errors.New("lock takeover in progress")

// guardMaxAge is how long a takeover guard may live before it counts as
// abandoned.
const guardMaxAge = time.Minute

// clearStale removes the lock file only while it still records staleToken.
// An empty token matches an unreadable file. Takeovers are serialized by an
// exclusive guard file beside the lock, so a contender cannot remove a lock
// that another contender has just created.
func clearStale(path, staleToken string) error {
	guard := path + ".takeover"
	f, err := os.OpenFile(guard, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // G304: configured lock path
	if err != nil {
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("creating takeover guard: %w", err)
		}
		if info, serr := os.Stat(guard); serr == nil && time.Since(info.ModTime()) > guardMaxAge {
			log.Warn(log.CatLock, "Removing abandoned takeover guard", "path", guard)
			_ = os.Remove(guard)
		}
		return errTakeoverBusy
	}
	_ = f.Close()
	defer func() { _ = os.Remove(guard) }()

	current, err := read(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		if staleToken != "" {
			return nil
		}
	case current.Token != staleToken || staleToken == "":
		log.Debug(log.CatLock, "Lock changed hands during takeover", "path", path, "pid", current.PID)
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale lock: %w", err)
	}
	return nil
}

func create(path string, h Holder) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // G304: configured lock path
	if err != nil {
		return err
	}
	data, err := json.Marshal(h)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func read(path string) (Holder, error) {
	var h Holder
	data, err := os.ReadFile(path) //nolint:gosec // G304: configured lock path
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, err
	}
	return h, nil
}

// Holder returns the holder recorded by this lock.
func (l *Lock) Holder() Holder { return l.holder }

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release removes the lock file if this lock still owns it.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	current, err := read(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading lock file: %w", err)
	}
	if current.Token != l.holder.Token {
		log.Warn(log.CatLock, "Lock file owned by another run, leaving it", "path", l.path, "pid", current.PID)
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	log.Debug(log.CatLock, "Released run lock", "path", l.path)
	return nil
}
