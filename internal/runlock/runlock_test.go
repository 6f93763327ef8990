package runlock

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func stubAlive(t *testing.T, alive func(int) bool) {
	t.Helper()
	orig := processAlive
	processAlive = alive
	t.Cleanup(func() { processAlive = orig })
}

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "run.lock")

	l, err := Acquire(path)
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), l.Holder().PID)
	require.FileExists(t, path)

	require.NoError(t, l.Release())
	require.NoFileExists(t, path)

	l2, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestAcquire_HeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	l, err := Acquire(path)
	require.NoError(t, err)
	defer func() { _ = l.Release() }()

	_, err = Acquire(path)
	require.ErrorIs(t, err, ErrLocked)

	var locked *LockedError
	require.True(t, errors.As(err, &locked))
	require.Equal(t, os.Getpid(), locked.Holder.PID)
}

func TestAcquire_TakesOverStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	host, _ := os.Hostname()
	stale, err := json.Marshal(Holder{PID: 999999, Host: host, Token: "old", StartedAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, stale, 0o600))

	stubAlive(t, func(pid int) bool { return pid != 999999 })

	l, err := Acquire(path)
	require.NoError(t, err)
	require.NotEqual(t, "old", l.Holder().Token)
	require.NoError(t, l.Release())
}

func TestClearStale_KeepsLockThatChangedHands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	fresh, err := json.Marshal(Holder{PID: os.Getpid(), Token: "fresh", StartedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, fresh, 0o600))

	// The caller saw a stale holder "old", but a new run has since replaced it.
	require.NoError(t, clearStale(path, "old"))
	h, err := read(path)
	require.NoError(t, err)
	require.Equal(t, "fresh", h.Token)
	require.NoFileExists(t, path+".takeover")

	require.NoError(t, clearStale(path, "fresh"))
	require.NoFileExists(t, path)
}

func TestAcquire_StaleTakeoverWaitsForGuard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	host, _ := os.Hostname()
	stale, err := json.Marshal(Holder{PID: 999999, Host: host, Token: "old", StartedAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, stale, 0o600))
	require.NoError(t, os.WriteFile(path+".takeover", nil, 0o600))
	stubAlive(t, func(pid int) bool { return pid != 999999 })

	_, err = Acquire(path)
	require.ErrorIs(t, err, ErrLocked)
	h, err := read(path)
	require.NoError(t, err)
	require.Equal(t, "old", h.Token, "lock untouched while another takeover runs")

	old := time.Now().Add(-2 * guardMaxAge)
	require.NoError(t, os.Chtimes(path+".takeover", old, old))
	_, err = Acquire(path)
	require.ErrorIs(t, err, ErrLocked, "abandoned guard is cleared first")

	l, err := Acquire(path)
	require.NoError(t, err)
	require.NotEqual(t, "old", l.Holder().Token)
	require.NoError(t, l.Release())
}

func TestAcquire_OtherHostIsNeverStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	data, err := json.Marshal(Holder{PID: 999999, Host: "some-other-host", Token: "x", StartedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	stubAlive(t, func(int) bool { return false })

	_, err = Acquire(path)
	require.ErrorIs(t, err, ErrLocked)
}

func TestRelease_LeavesForeignLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	l, err := Acquire(path)
	require.NoError(t, err)

	data, err := json.Marshal(Holder{PID: 1, Host: "elsewhere", Token: "theirs"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	require.NoError(t, l.Release())
	require.FileExists(t, path)
}

func TestRelease_Nil(t *testing.T) {
	var l *Lock
	require.NoError(t, l.Release())
}

func TestAcquire_ConcurrentOnlyOneWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	const n = 8
	var wg sync.WaitGroup
	results := make(chan *Lock, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l, err := Acquire(path); err == nil {
				results <- l
			}
		}()
	}
	wg.Wait()
	close(results)

	var won []*Lock
	for l := range results {
		won = append(won, l)
	}
	require.Len(t, won, 1)
	require.NoError(t, won[0].Release())
}

func TestAcquire_ConcurrentStaleTakeoverOneWins(t *testing.T) {
	host, _ := os.Hostname()
	stale, err := json.Marshal(Holder{PID: 999999, Host: host, Token: "old", StartedAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	stubAlive(t, func(pid int) bool { return pid != 999999 })

	for iter := 0; iter < 50; iter++ {
		path := filepath.Join(t.TempDir(), "run.lock")
		require.NoError(t, os.WriteFile(path, stale, 0o600))

		const n = 4
		var wg sync.WaitGroup
		results := make(chan *Lock, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l, err := Acquire(path); err == nil {
					results <- l
				}
			}()
		}
		wg.Wait()
		close(results)

		var won []*Lock
		for l := range results {
			won = append(won, l)
		}
		require.Len(t, won, 1, "iteration %d", iter)
		require.NoError(t, won[0].Release())
		require.NoFileExists(t, path+".takeover")
	}
}
