// Package postgres provides a PostgreSQL run store for deployments where
// several hosts share run history.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/macropulse/macropulse/internal/infrastructure/sqlstore"
	"github.com/macropulse/macropulse/internal/log"
	"github.com/macropulse/macropulse/internal/runs/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB owns the PostgreSQL connection pool and hands out repositories.
type DB struct {
	conn      *sql.DB
	runs      *sqlstore.RunRepository
	snapshots *sqlstore.SnapshotRepository
}

var _ domain.Store = (*DB)(nil)

// ParseDSN validates dsn and returns the parsed config.
func ParseDSN(dsn string) (*pgx.ConnConfig, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		// pgx errors can echo the DSN, which may hold a password.
		return nil, errors.New("invalid postgres dsn")
	}
	return cfg, nil
}

// NewDB connects to dsn and migrates the schema.
func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	conn := stdlib.OpenDB(*cfg)
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to postgres %s/%s: %w", cfg.Host, cfg.Database, err)
	}
	if err := migrateUp(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Debug(log.CatDB, "Opened run store", "host", cfg.Host, "database", cfg.Database)

	return &DB{
		conn:      conn,
		runs:      sqlstore.NewRunRepository(conn, sqlstore.Postgres),
		snapshots: sqlstore.NewSnapshotRepository(conn, sqlstore.Postgres),
	}, nil
}

func migrateUp(conn *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratepgx.WithInstance(conn, &migratepgx.Config{MigrationsTable: "macropulse_schema_migrations"})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Runs returns the run repository.
func (db *DB) Runs() domain.RunRepository { return db.runs }

// Snapshots returns the snapshot repository.
func (db *DB) Snapshots() domain.SnapshotRepository { return db.snapshots }

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}
