package model

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions written by the dispatch service.
const (
	AuditActionAgentRun    = "agents.run"
	AuditActionAgentToggle = "agents.toggle"
	AuditActionRunExpired  = "agents.run.expired"
)

// AuditLogEntry is an immutable record of a state-changing action.
type AuditLogEntry struct {
	ID        uuid.UUID      `json:"id"`
	OrgID     uuid.UUID      `json:"org_id"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	Action    string         `json:"action"`
	Meta      map[string]any `json:"meta"`
	CreatedAt time.Time      `json:"created_at"`
}
