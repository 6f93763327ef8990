package domain

import "context"

// RunRepository defines the persistence interface for Run entities.
// Implementations use SQLite or PostgreSQL.
type RunRepository interface {
	// Save persists a run.
	// For new runs (ID == 0), this creates a new record and sets the ID.
	// For existing runs (ID > 0), this updates the existing record.
	Save(ctx context.Context, run *Run) error

	// FindByGUID retrieves a run by its GUID.
	// Returns RunNotFoundError if no matching run exists.
	FindByGUID(ctx context.Context, guid string) (*Run, error)

	// List returns the most recent runs, newest first. A limit of 0 means no limit.
	List(ctx context.Context, limit int) ([]*Run, error)

	// LastPublishedDigest returns the digest most recently written by a run,
	// or "" if none.
	LastPublishedDigest(ctx context.Context) (string, error)

	// LastDistributedDigest returns the digest most recently delivered by a
	// run, or "" if none.
	LastDistributedDigest(ctx context.Context) (string, error)
}

// SnapshotRepository stores audit snapshots.
type SnapshotRepository interface {
	// SaveSnapshot inserts a snapshot and sets its ID.
	SaveSnapshot(ctx context.Context, s *Snapshot) error

	// ListSnapshots returns the newest snapshots of a type, newest first.
	ListSnapshots(ctx context.Context, snapshotType string, limit int) ([]*Snapshot, error)

	// PruneSnapshots deletes all but the newest keep snapshots of a type and
	// returns how many were removed.
	PruneSnapshots(ctx context.Context, snapshotType string, keep int) (int64, error)
}

// Store is a run store backend.
type Store interface {
	Runs() RunRepository
	Snapshots() SnapshotRepository
	Close() error
}
