package testutil

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/macropulse/macropulse/internal/runs/domain"
)

// runData holds a run to be seeded.
type runData struct {
	guid        string
	mode        string
	state       domain.RunState
	published   string
	previous    string
	distributed string
	failedPhase string
	err         string
	startedAt   time.Time
	took        time.Duration
}

// RunOption configures a seeded run.
type RunOption func(*runData)

// Mode sets the run mode. The default is full.
func Mode(mode string) RunOption {
	return func(r *runData) { r.mode = mode }
}

// Published marks the run as having written digest over previous.
func Published(digest, previous string) RunOption {
	return func(r *runData) {
		r.state = domain.RunStatePublished
		r.published = digest
		r.previous = previous
	}
}

// Unchanged marks the run as having matched digest.
func Unchanged(digest string) RunOption {
	return func(r *runData) {
		r.state = domain.RunStateUnchanged
		r.previous = digest
	}
}

// Distributed records a delivery of digest.
func Distributed(digest string) RunOption {
	return func(r *runData) { r.distributed = digest }
}

// Failed marks the run failed in phase.
func Failed(phase, msg string) RunOption {
	return func(r *runData) {
		r.state = domain.RunStateFailed
		r.failedPhase = phase
		r.err = msg
	}
}

// StartedAt sets the start time.
func StartedAt(t time.Time) RunOption {
	return func(r *runData) { r.startedAt = t }
}

// RunBuilder seeds runs into a repository in order.
type RunBuilder struct {
	t    *testing.T
	repo domain.RunRepository
	runs []runData
}

// NewRunBuilder creates a builder for repo.
func NewRunBuilder(t *testing.T, repo domain.RunRepository) *RunBuilder {
	t.Helper()
	return &RunBuilder{t: t, repo: repo}
}

// WithRun adds a run. Runs start one minute apart unless StartedAt is given.
func (b *RunBuilder) WithRun(guid string, opts ...RunOption) *RunBuilder {
	r := runData{
		guid:      guid,
		mode:      "full",
		state:     domain.RunStateUnchanged,
		startedAt: time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC).Add(time.Duration(len(b.runs)) * time.Minute),
		took:      12 * time.Second,
	}
	for _, opt := range opts {
		opt(&r)
	}
	b.runs = append(b.runs, r)
	return b
}

// Build saves every run and returns them in insertion order.
func (b *RunBuilder) Build() []*domain.Run {
	b.t.Helper()
	out := make([]*domain.Run, 0, len(b.runs))
	for _, r := range b.runs {
		finished := r.startedAt.Add(r.took)
		run := domain.ReconstituteRun(0, r.guid, r.mode, r.state,
			r.published, r.previous, r.distributed, r.err, r.failedPhase,
			map[string]time.Duration{"fetch": r.took / 2, "publish": time.Second},
			r.startedAt, &finished, finished)
		require.NoError(b.t, b.repo.Save(context.Background(), run), "seeding %s", r.guid)
		out = append(out, run)
	}
	return out
}

// RequireRun loads a run by GUID and fails the test if it is missing.
func RequireRun(t *testing.T, repo domain.RunRepository, guid string) *domain.Run {
	t.Helper()
	run, err := repo.FindByGUID(context.Background(), guid)
	var nf *domain.RunNotFoundError
	if errors.As(err, &nf) {
		require.FailNow(t, fmt.Sprintf("run %s not recorded", guid))
	}
	require.NoError(t, err)
	return run
}
