// Package domain provides the pure domain layer for pipeline runs with no
// infrastructure dependencies.
//
// A Run records one execution of the pipeline: its mode, its outcome, the
// digest it published and the digest it distributed. The run store answers
// the one question the pipeline cannot answer from the filesystem: was the
// currently published artifact ever delivered.
package domain

import (
	"sort"
	"time"
)

// RunState represents the lifecycle state of a run.
type RunState string

const (
	// RunStateRunning indicates the run is in progress.
	RunStateRunning RunState = "running"

	// RunStatePublished indicates the run replaced the artifact.
	RunStatePublished RunState = "published"

	// RunStateUnchanged indicates the computed artifact equaled the published one.
	RunStateUnchanged RunState = "unchanged"

	// RunStateFailed indicates the run failed. The artifact may still have
	// been published if only distribution failed.
	RunStateFailed RunState = "failed"
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	return string(s)
}

// IsValid returns true if the state is a recognized run state.
func (s RunState) IsValid() bool {
	switch s {
	case RunStateRunning, RunStatePublished, RunStateUnchanged, RunStateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the run has finished.
func (s RunState) IsTerminal() bool {
	return s.IsValid() && s != RunStateRunning
}

// Run is a domain entity for one pipeline execution.
// All fields are unexported to enforce encapsulation; use the constructor
// and getter methods to access data.
type Run struct {
	id    int64
	guid  string
	mode  string
	state RunState

	// publishedDigest is set when this run wrote the artifact.
	publishedDigest string
	// previousDigest is the artifact digest this run replaced or matched.
	previousDigest string
	// distributedDigest is set when this run delivered an artifact.
	distributedDigest string

	errorMessage string
	failedPhase  string
	phases       map[string]time.Duration

	startedAt  time.Time
	finishedAt *time.Time
	updatedAt  time.Time
}

// NewRun creates a running Run. The ID is left as zero; it is assigned by
// the persistence layer.
func NewRun(guid, mode string) *Run {
	now := time.Now()
	return &Run{
		guid:      guid,
		mode:      mode,
		state:     RunStateRunning,
		phases:    map[string]time.Duration{},
		startedAt: now,
		updatedAt: now,
	}
}

// ReconstituteRun creates a Run from stored data.
func ReconstituteRun(
	id int64,
	guid, mode string,
	state RunState,
	publishedDigest, previousDigest, distributedDigest string,
	errorMessage, failedPhase string,
	phases map[string]time.Duration,
	startedAt time.Time,
	finishedAt *time.Time,
	updatedAt time.Time,
) *Run {
	if phases == nil {
		phases = map[string]time.Duration{}
	}
	return &Run{
		id:                id,
		guid:              guid,
		mode:              mode,
		state:             state,
		publishedDigest:   publishedDigest,
		previousDigest:    previousDigest,
		distributedDigest: distributedDigest,
		errorMessage:      errorMessage,
		failedPhase:       failedPhase,
		phases:            phases,
		startedAt:         startedAt,
		finishedAt:        finishedAt,
		updatedAt:         updatedAt,
	}
}

func (r *Run) ID() int64                 { return r.id }
func (r *Run) GUID() string              { return r.guid }
func (r *Run) Mode() string              { return r.mode }
func (r *Run) State() RunState           { return r.state }
func (r *Run) PublishedDigest() string   { return r.publishedDigest }
func (r *Run) PreviousDigest() string    { return r.previousDigest }
func (r *Run) DistributedDigest() string { return r.distributedDigest }
func (r *Run) ErrorMessage() string      { return r.errorMessage }
func (r *Run) FailedPhase() string       { return r.failedPhase }
func (r *Run) StartedAt() time.Time      { return r.startedAt }
func (r *Run) FinishedAt() *time.Time    { return r.finishedAt }
func (r *Run) UpdatedAt() time.Time      { return r.updatedAt }

// Phases returns a copy of the recorded phase durations.
func (r *Run) Phases() map[string]time.Duration {
	out := make(map[string]time.Duration, len(r.phases))
	for k, v := range r.phases {
		out[k] = v
	}
	return out
}

// PhaseNames returns recorded phase names in sorted order.
func (r *Run) PhaseNames() []string {
	names := make([]string, 0, len(r.phases))
	for k := range r.phases {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Duration returns the elapsed run time, up to now for an unfinished run.
func (r *Run) Duration() time.Duration {
	if r.finishedAt == nil {
		return time.Since(r.startedAt)
	}
	return r.finishedAt.Sub(r.startedAt)
}

// Distributed reports whether this run delivered an artifact.
func (r *Run) Distributed() bool { return r.distributedDigest != "" }

// SetID sets the ID after the first save.
func (r *Run) SetID(id int64) {
	r.id = id
}

// RecordPhase stores how long a phase took.
func (r *Run) RecordPhase(name string, d time.Duration) {
	r.phases[name] = d
	r.updatedAt = time.Now()
}

// MarkPublished records that this run replaced the artifact.
func (r *Run) MarkPublished(digest, previous string) {
	r.publishedDigest = digest
	r.previousDigest = previous
	r.finish(RunStatePublished)
}

// MarkUnchanged records that the computed artifact matched the published one.
func (r *Run) MarkUnchanged(digest string) {
	r.previousDigest = digest
	r.finish(RunStateUnchanged)
}

// MarkDistributed records a successful delivery of digest. It does not change
// the state.
func (r *Run) MarkDistributed(digest string) {
	r.distributedDigest = digest
	r.updatedAt = time.Now()
}

// MarkFailed records a failure in phase. A digest already published by this
// run is kept so the artifact stays pending distribution.
func (r *Run) MarkFailed(phase string, err error) {
	r.failedPhase = phase
	if err != nil {
		r.errorMessage = err.Error()
	}
	r.finish(RunStateFailed)
}

func (r *Run) finish(state RunState) {
	now := time.Now()
	r.state = state
	r.finishedAt = &now
	r.updatedAt = now
}
