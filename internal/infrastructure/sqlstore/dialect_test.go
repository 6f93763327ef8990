package sqlstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/macropulse/macropulse/internal/runs/domain"
)

func TestDialect_Rebind(t *testing.T) {
	q := `UPDATE runs SET state = ?, phases = ? WHERE id = ?`

	require.Equal(t, q, SQLite.Rebind(q))
	require.Equal(t, `UPDATE runs SET state = $1, phases = $2 WHERE id = $3`, Postgres.Rebind(q))
	require.Equal(t, "SELECT 1", Postgres.Rebind("SELECT 1"))
}

func TestRunModel_RoundTrip(t *testing.T) {
	run := domain.NewRun("g", "full")
	run.RecordPhase("fetch", 1500*time.Millisecond)
	run.MarkPublished("new", "")
	run.SetID(3)

	m := toRunModel(run)
	require.Nil(t, m.PreviousDigest, "empty strings are stored as NULL")
	require.Nil(t, m.DistributedDigest)
	require.NotNil(t, m.FinishedAt)

	back := m.toDomain()
	require.Equal(t, int64(3), back.ID())
	require.Equal(t, domain.RunStatePublished, back.State())
	require.Equal(t, "new", back.PublishedDigest())
	require.Equal(t, 1500*time.Millisecond, back.Phases()["fetch"])
}

func TestRunModel_BadPhasesJSON(t *testing.T) {
	bad := "{"
	m := &RunModel{GUID: "g", State: "running", Phases: &bad}

	require.Empty(t, m.toDomain().Phases())
}
