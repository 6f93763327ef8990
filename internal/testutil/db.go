package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/macropulse/macropulse/internal/infrastructure/sqlite"
)

// NewStore opens a migrated SQLite run store in a temp directory. It is
// closed when the test ends.
func NewStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
