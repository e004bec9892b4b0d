package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lexdesk/lexagent/internal/model"
)

// InsertAuditLog appends an audit entry. The table rejects updates and deletes.
func (db *DB) InsertAuditLog(ctx context.Context, e model.AuditLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("storage: marshal audit meta: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, org_id, user_id, action, meta, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		e.ID, e.OrgID, e.UserID, e.Action, meta, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns an org's audit entries, newest first.
func (db *DB) ListAuditLogs(ctx context.Context, orgID uuid.UUID, action string, limit int) ([]model.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, org_id, user_id, action, meta, created_at FROM audit_logs
		 WHERE org_id = $1 AND ($2 = '' OR action = $2)
		 ORDER BY created_at DESC LIMIT $3`,
		orgID, action, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list audit logs: %w", err)
	}
	defer rows.Close()

	var out []model.AuditLogEntry
	for rows.Next() {
		var e model.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.OrgID, &e.UserID, &e.Action, &e.Meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan audit log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
