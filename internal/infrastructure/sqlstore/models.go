// Package sqlstore implements the run and snapshot repositories over
// database/sql. The sqlite and postgres packages open the connection, run
// their own migrations and hand it to these repositories.
package sqlstore

import (
	"encoding/json"
	"time"

	"github.com/macropulse/macropulse/internal/runs/domain"
)

// RunModel represents the database row for the runs table.
// Fields map directly to SQL columns with Unix timestamps for time values.
type RunModel struct {
	ID                int64
	GUID              string
	Mode              string
	State             string
	PublishedDigest   *string // nullable
	PreviousDigest    *string // nullable
	DistributedDigest *string // nullable
	ErrorMessage      *string // nullable
	FailedPhase       *string // nullable
	Phases            *string // nullable, JSON {phase: milliseconds}

	StartedAt  int64  // Unix timestamp
	FinishedAt *int64 // Unix timestamp, nullable
	UpdatedAt  int64  // Unix timestamp
}

// toRunModel converts a domain Run entity to a database RunModel.
func toRunModel(r *domain.Run) *RunModel {
	m := &RunModel{
		ID:                r.ID(),
		GUID:              r.GUID(),
		Mode:              r.Mode(),
		State:             string(r.State()),
		PublishedDigest:   nullable(r.PublishedDigest()),
		PreviousDigest:    nullable(r.PreviousDigest()),
		DistributedDigest: nullable(r.DistributedDigest()),
		ErrorMessage:      nullable(r.ErrorMessage()),
		FailedPhase:       nullable(r.FailedPhase()),
		StartedAt:         r.StartedAt().Unix(),
		UpdatedAt:         r.UpdatedAt().Unix(),
	}
	if phases := r.Phases(); len(phases) > 0 {
		ms := make(map[string]int64, len(phases))
		for k, v := range phases {
			ms[k] = v.Milliseconds()
		}
		if data, err := json.Marshal(ms); err == nil {
			s := string(data)
			m.Phases = &s
		}
	}
	if r.FinishedAt() != nil {
		finishedAt := r.FinishedAt().Unix()
		m.FinishedAt = &finishedAt
	}
	return m
}

// toDomain converts a database RunModel to a domain Run entity.
func (m *RunModel) toDomain() *domain.Run {
	var phases map[string]time.Duration
	if m.Phases != nil {
		var ms map[string]int64
		if err := json.Unmarshal([]byte(*m.Phases), &ms); err == nil {
			phases = make(map[string]time.Duration, len(ms))
			for k, v := range ms {
				phases[k] = time.Duration(v) * time.Millisecond
			}
		}
	}
	var finishedAt *time.Time
	if m.FinishedAt != nil {
		t := time.Unix(*m.FinishedAt, 0)
		finishedAt = &t
	}
	return domain.ReconstituteRun(
		m.ID,
		m.GUID,
		m.Mode,
		domain.RunState(m.State),
		deref(m.PublishedDigest),
		deref(m.PreviousDigest),
		deref(m.DistributedDigest),
		deref(m.ErrorMessage),
		deref(m.FailedPhase),
		phases,
		time.Unix(m.StartedAt, 0),
		finishedAt,
		time.Unix(m.UpdatedAt, 0),
	)
}

// SnapshotModel represents the database row for the snapshots table.
type SnapshotModel struct {
	ID        int64
	RunGUID   *string // nullable
	Type      string
	Payload   string
	CreatedAt int64 // Unix timestamp
}

func (m *SnapshotModel) toDomain() *domain.Snapshot {
	return &domain.Snapshot{
		ID:        m.ID,
		RunGUID:   deref(m.RunGUID),
		Type:      m.Type,
		Payload:   []byte(m.Payload),
		CreatedAt: time.Unix(m.CreatedAt, 0),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
