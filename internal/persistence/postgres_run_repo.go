package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"briefly/internal/core"
)

type postgresRunRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresRunRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresRunRepo) Create(ctx context.Context, run *core.DiscoveryRun) error {
	query := `
		INSERT INTO discovery_run (id, patch_id, status, started_at, deadline_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.query().ExecContext(ctx, query, run.ID, run.PatchID, string(run.Status), run.StartedAt, run.DeadlineAt)
	return err
}

func (r *postgresRunRepo) Get(ctx context.Context, id string) (*core.DiscoveryRun, error) {
	query := `
		SELECT id, patch_id, status, processed_count, saved_count, denied_count, failed_count,
		       started_at, deadline_at, completed_at, error_message
		FROM discovery_run WHERE id = $1
	`
	return scanRun(r.query().QueryRowContext(ctx, query, id))
}

// GetActiveForPatch backs "exactly one run per patch may be active"
// (§4.10) together with the partial unique index on (patch_id) WHERE
// status='running', which makes a second concurrent Create for the same
// patch fail instead of starting a duplicate run.
func (r *postgresRunRepo) GetActiveForPatch(ctx context.Context, patchID string) (*core.DiscoveryRun, error) {
	query := `
		SELECT id, patch_id, status, processed_count, saved_count, denied_count, failed_count,
		       started_at, deadline_at, completed_at, error_message
		FROM discovery_run WHERE patch_id = $1 AND status = 'running'
	`
	var run core.DiscoveryRun
	var status string
	row := r.query().QueryRowContext(ctx, query, patchID)
	err := row.Scan(
		&run.ID, &run.PatchID, &status, &run.ProcessedCount, &run.SavedCount, &run.DeniedCount, &run.FailedCount,
		&run.StartedAt, &run.DeadlineAt, &run.CompletedAt, &run.ErrorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.Status = core.DiscoveryRunStatus(status)
	return &run, nil
}

func (r *postgresRunRepo) UpdateMetrics(ctx context.Context, id string, processed, saved, denied, failed int) error {
	query := `
		UPDATE discovery_run
		SET processed_count = $2, saved_count = $3, denied_count = $4, failed_count = $5
		WHERE id = $1
	`
	_, err := r.query().ExecContext(ctx, query, id, processed, saved, denied, failed)
	return err
}

func (r *postgresRunRepo) Complete(ctx context.Context, id string, status core.DiscoveryRunStatus, errorMessage *string) error {
	query := `
		UPDATE discovery_run SET status = $2, completed_at = $3, error_message = $4 WHERE id = $1
	`
	_, err := r.query().ExecContext(ctx, query, id, string(status), time.Now().UTC(), errorMessage)
	return err
}

func scanRun(row *sql.Row) (*core.DiscoveryRun, error) {
	var run core.DiscoveryRun
	var status string
	err := row.Scan(
		&run.ID, &run.PatchID, &status, &run.ProcessedCount, &run.SavedCount, &run.DeniedCount, &run.FailedCount,
		&run.StartedAt, &run.DeadlineAt, &run.CompletedAt, &run.ErrorMessage,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("discovery run not found")
		}
		return nil, err
	}
	run.Status = core.DiscoveryRunStatus(status)
	return &run, nil
}
