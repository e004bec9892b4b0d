package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexdesk/lexagent/internal/model"
)

const runColumns = `id, org_id, agent_key, client_id, input_summary, status, output_path, error, created_at, finished_at`

func scanRun(row pgx.Row) (model.AgentRun, error) {
	var r model.AgentRun
	err := row.Scan(
		&r.ID, &r.OrgID, &r.AgentKey, &r.ClientID, &r.InputSummary,
		&r.Status, &r.OutputPath, &r.Error, &r.CreatedAt, &r.FinishedAt,
	)
	return r, err
}

// CreateRun inserts a queued run. ID and CreatedAt must be set by the caller.
func (db *DB) CreateRun(ctx context.Context, run model.AgentRun) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO agent_runs (id, org_id, agent_key, client_id, input_summary, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, 'queued', $6)`,
		run.ID, run.OrgID, run.AgentKey, run.ClientID, run.InputSummary, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create run: %w", err)
	}
	return nil
}

// FinishRun moves a queued run to a terminal status. The status guard makes
// the transition happen at most once: a second call returns ErrRunNotQueued.
func (db *DB) FinishRun(ctx context.Context, orgID, id uuid.UUID, status model.RunStatus, outputPath, reason *string, finishedAt time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("storage: finish run: %q is not a terminal status", status)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE agent_runs SET status = $1, output_path = $2, error = $3, finished_at = $4
		 WHERE id = $5 AND org_id = $6 AND status = 'queued'`,
		string(status), outputPath, reason, finishedAt, id, orgID,
	)
	if err != nil {
		return fmt.Errorf("storage: finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: finish run %s: %w", id, ErrRunNotQueued)
	}
	return nil
}

// GetRun retrieves a run by ID, scoped to the given org.
func (db *DB) GetRun(ctx context.Context, orgID, id uuid.UUID) (model.AgentRun, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM agent_runs WHERE id = $1 AND org_id = $2`, id, orgID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AgentRun{}, fmt.Errorf("storage: run %s: %w", id, ErrNotFound)
		}
		return model.AgentRun{}, fmt.Errorf("storage: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns an org's runs, newest first. An empty agentKey lists all agents.
func (db *DB) ListRuns(ctx context.Context, orgID uuid.UUID, agentKey string, limit, offset int) ([]model.AgentRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM agent_runs
		 WHERE org_id = $1 AND ($2 = '' OR agent_key = $2)
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`,
		orgID, agentKey, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.AgentRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountRunsBetween counts runs an org created in [from, to).
func (db *DB) CountRunsBetween(ctx context.Context, orgID uuid.UUID, from, to time.Time) (int64, error) {
	var n int64
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM agent_runs
		 WHERE org_id = $1 AND created_at >= $2 AND created_at < $3`, orgID, from, to,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count runs: %w", err)
	}
	return n, nil
}

// FailStaleRuns finalizes every run still queued before cutoff as failed and
// returns the rows it changed.
func (db *DB) FailStaleRuns(ctx context.Context, cutoff time.Time, reason string, finishedAt time.Time) ([]model.AgentRun, error) {
	rows, err := db.pool.Query(ctx,
		`UPDATE agent_runs SET status = 'failed', error = $1, finished_at = $2
		 WHERE status = 'queued' AND created_at < $3
		 RETURNING `+runColumns,
		reason, finishedAt, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: fail stale runs: %w", err)
	}
	defer rows.Close()

	var out []model.AgentRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan stale run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
