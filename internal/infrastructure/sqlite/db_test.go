package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/macropulse/macropulse/internal/runs/domain"
)

// TestNewDB_CreatesDirectory verifies that NewDB creates the parent directory if missing.
func TestNewDB_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err, "NewDB should succeed even with nested non-existent directories")
	defer db.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err, "Directory should exist after NewDB")
	require.True(t, info.IsDir(), "Should be a directory")

	// Verify directory permissions are 0700 (Unix only - Windows doesn't support Unix permissions)
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0700), info.Mode().Perm(), "Directory should have 0700 permissions")
	}
}

// TestNewDB_RunsMigrations verifies that NewDB creates the runs and snapshots tables.
func TestNewDB_RunsMigrations(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "NewDB should succeed")
	defer db.Close()

	for _, table := range []string{"runs", "snapshots"} {
		var name string
		err = db.conn.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "%s table should exist after migrations", table)
		require.Equal(t, table, name)
	}
}

// TestNewDB_PreMigrationBackup verifies that a .bak file is created before migrations
// when an existing database file is present.
func TestNewDB_PreMigrationBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db1, err := NewDB(dbPath)
	require.NoError(t, err, "First NewDB should succeed")
	_, err = db1.conn.Exec(
		"INSERT INTO runs (guid, mode, state, started_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		"test-guid", "full", "published", 1000, 1000,
	)
	require.NoError(t, err, "Should be able to insert test data")
	require.NoError(t, db1.Close())

	_, err = os.Stat(dbPath + ".bak")
	require.ErrorIs(t, err, os.ErrNotExist, "a fresh database is not backed up")

	db2, err := NewDB(dbPath)
	require.NoError(t, err, "Second NewDB should succeed")
	defer db2.Close()

	info, err := os.Stat(dbPath + ".bak")
	require.NoError(t, err, "Backup file should exist after second NewDB")
	require.Greater(t, info.Size(), int64(0), "Backup file should have content")

	// Data survives reopening.
	_, err = db2.Runs().FindByGUID(t.Context(), "test-guid")
	require.NoError(t, err)
}

// TestNewDB_Pragmas verifies WAL mode, foreign keys and the busy timeout.
func TestNewDB_Pragmas(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "NewDB should succeed")
	defer db.Close()

	var journalMode string
	require.NoError(t, db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode, "Journal mode should be WAL")

	var foreignKeys int
	require.NoError(t, db.conn.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	require.Equal(t, 1, foreignKeys, "Foreign keys should be enabled (1)")

	var busyTimeout int
	require.NoError(t, db.conn.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, 5000, busyTimeout, "Busy timeout should be 5000ms")
}

// TestDB_Close verifies that connection closes cleanly.
func TestDB_Close(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "NewDB should succeed")

	require.NoError(t, db.Close(), "Close should succeed")
	require.Error(t, db.conn.Ping(), "Ping should fail after Close")
}

// TestDB_Store verifies the repositories and connection accessors.
func TestDB_Store(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "NewDB should succeed")
	defer db.Close()

	var store domain.Store = db
	require.NotNil(t, store.Runs())
	require.NotNil(t, store.Snapshots())

	conn := db.Connection()
	require.IsType(t, (*sql.DB)(nil), conn, "Connection should return *sql.DB")
	require.NoError(t, conn.Ping(), "Connection should be pingable")
}

// TestNewDB_MultipleCalls verifies that opening the same database twice is safe.
func TestNewDB_MultipleCalls(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db1, err := NewDB(dbPath)
	require.NoError(t, err, "First NewDB should succeed")
	defer db1.Close()

	db2, err := NewDB(dbPath)
	require.NoError(t, err, "Second NewDB should succeed (WAL mode allows concurrent access)")
	defer db2.Close()

	var count1, count2 int
	require.NoError(t, db1.conn.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count1))
	require.NoError(t, db2.conn.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count2))
}

// TestNewDB_PathIsDirectory verifies that NewDB fails when the path is a directory.
func TestNewDB_PathIsDirectory(t *testing.T) {
	dir := t.TempDir()

	_, err := NewDB(dir)
	require.Error(t, err)
}
