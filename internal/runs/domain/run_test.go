package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunState_IsValid(t *testing.T) {
	tests := []struct {
		state    RunState
		valid    bool
		terminal bool
	}{
		{RunStateRunning, true, false},
		{RunStatePublished, true, true},
		{RunStateUnchanged, true, true},
		{RunStateFailed, true, true},
		{RunState("invalid"), false, false},
		{RunState(""), false, false},
		{RunState("FAILED"), false, false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			require.Equal(t, tt.valid, tt.state.IsValid())
			require.Equal(t, tt.terminal, tt.state.IsTerminal())
		})
	}
}

func TestNewRun(t *testing.T) {
	before := time.Now()
	run := NewRun("guid-1", "full")
	after := time.Now()

	require.Equal(t, int64(0), run.ID(), "ID should be 0 for new runs")
	require.Equal(t, "guid-1", run.GUID())
	require.Equal(t, "full", run.Mode())
	require.Equal(t, RunStateRunning, run.State())
	require.Nil(t, run.FinishedAt())
	require.False(t, run.StartedAt().Before(before))
	require.False(t, run.StartedAt().After(after))
	require.False(t, run.Distributed())
	require.Empty(t, run.Phases())
}

func TestRun_Transitions(t *testing.T) {
	t.Run("published then distributed", func(t *testing.T) {
		run := NewRun("g", "full")
		run.MarkPublished("new", "old")
		run.MarkDistributed("new")

		require.Equal(t, RunStatePublished, run.State())
		require.Equal(t, "new", run.PublishedDigest())
		require.Equal(t, "old", run.PreviousDigest())
		require.True(t, run.Distributed())
		require.NotNil(t, run.FinishedAt())
	})

	t.Run("unchanged", func(t *testing.T) {
		run := NewRun("g", "full")
		run.MarkUnchanged("same")

		require.Equal(t, RunStateUnchanged, run.State())
		require.Empty(t, run.PublishedDigest())
		require.Equal(t, "same", run.PreviousDigest())
	})

	t.Run("failed after publish keeps digest", func(t *testing.T) {
		run := NewRun("g", "full")
		run.MarkPublished("new", "old")
		run.MarkFailed("distribute", errors.New("push rejected"))

		require.Equal(t, RunStateFailed, run.State())
		require.Equal(t, "new", run.PublishedDigest())
		require.False(t, run.Distributed())
		require.Equal(t, "distribute", run.FailedPhase())
		require.Equal(t, "push rejected", run.ErrorMessage())
	})

	t.Run("failed without error", func(t *testing.T) {
		run := NewRun("g", "brief")
		run.MarkFailed("fetch", nil)

		require.Empty(t, run.ErrorMessage())
	})
}

func TestRun_Phases(t *testing.T) {
	run := NewRun("g", "full")
	run.RecordPhase("transform", 2*time.Second)
	run.RecordPhase("fetch", time.Second)

	require.Equal(t, []string{"fetch", "transform"}, run.PhaseNames())

	phases := run.Phases()
	phases["fetch"] = 0
	require.Equal(t, time.Second, run.Phases()["fetch"], "Phases returns a copy")
}

func TestReconstituteRun(t *testing.T) {
	started := time.Unix(1700000000, 0)
	finished := started.Add(90 * time.Second)

	run := ReconstituteRun(7, "g", "full", RunStateFailed, "p", "q", "", "boom", "distribute",
		nil, started, &finished, finished)

	require.Equal(t, int64(7), run.ID())
	require.Equal(t, 90*time.Second, run.Duration())
	require.NotNil(t, run.Phases())
	require.Equal(t, "boom", run.ErrorMessage())
}

func TestRunNotFoundError(t *testing.T) {
	var target *RunNotFoundError
	err := error(&RunNotFoundError{GUID: "abc"})

	require.ErrorAs(t, err, &target)
	require.Equal(t, "run not found: abc", err.Error())
	require.Equal(t, "run not found", (&RunNotFoundError{}).Error())
}
