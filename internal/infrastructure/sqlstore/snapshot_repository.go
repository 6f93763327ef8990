package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/macropulse/macropulse/internal/runs/domain"
)

// SnapshotRepository implements domain.SnapshotRepository over database/sql.
type SnapshotRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSnapshotRepository creates a SnapshotRepository on db.
func NewSnapshotRepository(db *sql.DB, dialect Dialect) *SnapshotRepository {
	return &SnapshotRepository{db: db, dialect: dialect}
}

var _ domain.SnapshotRepository = (*SnapshotRepository)(nil)

// SaveSnapshot inserts a snapshot and sets its ID.
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, s *domain.Snapshot) error {
	if s.Type == "" {
		return fmt.Errorf("snapshot type is required")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	payload := string(s.Payload)
	if payload == "" {
		payload = "null"
	}
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(
		`INSERT INTO snapshots (run_guid, type, payload, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		nullable(s.RunGUID), s.Type, payload, s.CreatedAt.Unix(),
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns the newest snapshots of a type, newest first.
func (r *SnapshotRepository) ListSnapshots(ctx context.Context, snapshotType string, limit int) ([]*domain.Snapshot, error) {
	query := `SELECT id, run_guid, type, payload, created_at FROM snapshots WHERE type = ? ORDER BY id DESC`
	args := []any{snapshotType}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.Snapshot
	for rows.Next() {
		var m SnapshotModel
		if err := rows.Scan(&m.ID, &m.RunGUID, &m.Type, &m.Payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		out = append(out, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	return out, nil
}

// PruneSnapshots deletes all but the newest keep snapshots of a type.
func (r *SnapshotRepository) PruneSnapshots(ctx context.Context, snapshotType string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`DELETE FROM snapshots WHERE type = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE type = ? ORDER BY id DESC LIMIT ?
		)`),
		snapshotType, snapshotType, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
