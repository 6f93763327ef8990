// Package sqlite provides the default run store: a local SQLite database
// with versioned migrations.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver" // registers the "sqlite3" database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // bundles the SQLite build

	"github.com/macropulse/macropulse/internal/infrastructure/sqlstore"
	"github.com/macropulse/macropulse/internal/log"
	"github.com/macropulse/macropulse/internal/runs/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB owns the SQLite connection and hands out repositories.
type DB struct {
	conn      *sql.DB
	runs      *sqlstore.RunRepository
	snapshots *sqlstore.SnapshotRepository
}

var _ domain.Store = (*DB)(nil)

// NewDB opens (creating if needed) the database at path and migrates it.
// The parent directory is created with 0700 permissions. An existing
// database is copied to <path>.bak before migrations run.
func NewDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := backup(path, path+".bak"); err != nil {
			return nil, fmt.Errorf("failed to back up database: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrateUp(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Debug(log.CatDB, "Opened run store", "path", path)

	return &DB{
		conn:      conn,
		runs:      sqlstore.NewRunRepository(conn, sqlstore.SQLite),
		snapshots: sqlstore.NewSnapshotRepository(conn, sqlstore.SQLite),
	}, nil
}

// dsn enables WAL, foreign keys and a 5s busy timeout on every connection.
func dsn(path string) string {
	u := url.URL{Scheme: "file", OmitHost: true, Path: filepath.ToSlash(path)}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(wal)")
	u.RawQuery = q.Encode()
	return u.String()
}

func migrateUp(conn *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	// m.Close would close conn, which the DB keeps using.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func backup(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // path is configuration
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) //nolint:gosec // path is configuration
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Runs returns the run repository.
func (db *DB) Runs() domain.RunRepository { return db.runs }

// Snapshots returns the snapshot repository.
func (db *DB) Snapshots() domain.SnapshotRepository { return db.snapshots }

// Connection returns the underlying *sql.DB.
func (db *DB) Connection() *sql.DB { return db.conn }

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
