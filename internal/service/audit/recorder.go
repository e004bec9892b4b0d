// Package audit appends entries to the org audit trail.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lexdesk/lexagent/internal/ctxutil"
	"github.com/lexdesk/lexagent/internal/model"
)

// Store appends audit rows.
type Store interface {
	InsertAuditLog(ctx context.Context, e model.AuditLogEntry) error
}

// writeTimeout bounds the single insert.
const writeTimeout = 5 * time.Second

// Recorder writes audit entries. Entries are never updated or deleted.
type Recorder struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewRecorder creates a Recorder. now defaults to time.Now.
func NewRecorder(store Store, now func() time.Time, logger *slog.Logger) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{store: store, now: now, logger: logger}
}

// Record appends one entry for orgID. The acting user and request ID are
// taken from ctx when present. The insert is attempted once; callers decide
// whether a failure matters.
func (r *Recorder) Record(ctx context.Context, orgID uuid.UUID, action string, meta map[string]any) error {
	if meta == nil {
		meta = map[string]any{}
	}
	if reqID := ctxutil.RequestIDFromContext(ctx); reqID != "" {
		if _, ok := meta["request_id"]; !ok {
			meta["request_id"] = reqID
		}
	}
	entry := model.AuditLogEntry{
		ID:        uuid.New(),
		OrgID:     orgID,
		UserID:    ctxutil.UserIDFromContext(ctx),
		Action:    action,
		Meta:      meta,
		CreatedAt: r.now().UTC(),
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := r.store.InsertAuditLog(wctx, entry); err != nil {
		r.logger.Warn("audit: write failed", "action", action, "org_id", orgID, "error", err)
		return fmt.Errorf("audit: record %s: %w", action, err)
	}
	return nil
}
