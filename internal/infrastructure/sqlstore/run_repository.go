package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/macropulse/macropulse/internal/runs/domain"
)

// runColumns is the list of columns to select for run queries.
const runColumns = `id, guid, mode, state, published_digest, previous_digest, distributed_digest,
	error_message, failed_phase, phases, started_at, finished_at, updated_at`

// RunRepository implements domain.RunRepository over database/sql.
type RunRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewRunRepository creates a RunRepository on db.
func NewRunRepository(db *sql.DB, dialect Dialect) *RunRepository {
	return &RunRepository{db: db, dialect: dialect}
}

// Ensure RunRepository implements domain.RunRepository.
var _ domain.RunRepository = (*RunRepository)(nil)

// scanRun scans a row into a RunModel.
func scanRun(scanner interface{ Scan(...any) error }) (*RunModel, error) {
	var model RunModel
	err := scanner.Scan(
		&model.ID, &model.GUID, &model.Mode, &model.State,
		&model.PublishedDigest, &model.PreviousDigest, &model.DistributedDigest,
		&model.ErrorMessage, &model.FailedPhase, &model.Phases,
		&model.StartedAt, &model.FinishedAt, &model.UpdatedAt,
	)
	return &model, err
}

// Save persists a run.
// For new runs (ID == 0), inserts a new row and sets the run ID.
// For existing runs (ID > 0), updates the existing row.
func (r *RunRepository) Save(ctx context.Context, run *domain.Run) error {
	model := toRunModel(run)

	if run.ID() == 0 {
		var id int64
		err := r.db.QueryRowContext(ctx, r.dialect.Rebind(
			`INSERT INTO runs (
				guid, mode, state, published_digest, previous_digest, distributed_digest,
				error_message, failed_phase, phases, started_at, finished_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			model.GUID, model.Mode, model.State, model.PublishedDigest, model.PreviousDigest, model.DistributedDigest,
			model.ErrorMessage, model.FailedPhase, model.Phases, model.StartedAt, model.FinishedAt, model.UpdatedAt,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		run.SetID(id)
		return nil
	}

	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`UPDATE runs SET
			state = ?, published_digest = ?, previous_digest = ?, distributed_digest = ?,
			error_message = ?, failed_phase = ?, phases = ?, finished_at = ?, updated_at = ?
		WHERE id = ?`),
		model.State, model.PublishedDigest, model.PreviousDigest, model.DistributedDigest,
		model.ErrorMessage, model.FailedPhase, model.Phases, model.FinishedAt, model.UpdatedAt,
		model.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// FindByGUID retrieves a run by its GUID.
// Returns RunNotFoundError if no matching run exists.
func (r *RunRepository) FindByGUID(ctx context.Context, guid string) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+runColumns+` FROM runs WHERE guid = ?`), guid)
	model, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.RunNotFoundError{GUID: guid}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find run by guid: %w", err)
	}
	return model.toDomain(), nil
}

// List retrieves the most recent runs, newest first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*domain.Run
	for rows.Next() {
		model, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

// LastPublishedDigest returns the digest most recently written by a run.
func (r *RunRepository) LastPublishedDigest(ctx context.Context) (string, error) {
	return r.lastDigest(ctx, "published_digest")
}

// LastDistributedDigest returns the digest most recently delivered by a run.
func (r *RunRepository) LastDistributedDigest(ctx context.Context) (string, error) {
	return r.lastDigest(ctx, "distributed_digest")
}

// lastDigest reads the newest non-null value of column. column is never
// user input.
func (r *RunRepository) lastDigest(ctx context.Context, column string) (string, error) {
	var digest string
	err := r.db.QueryRowContext(ctx,
		`SELECT `+column+` FROM runs WHERE `+column+` IS NOT NULL ORDER BY id DESC LIMIT 1`,
	).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", column, err)
	}
	return digest, nil
}
