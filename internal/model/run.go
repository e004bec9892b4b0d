package model

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of an agent run.
type RunStatus string

const (
	RunStatusQueued RunStatus = "queued"
	RunStatusDone   RunStatus = "done"
	RunStatusFailed RunStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s RunStatus) Terminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

// MaxInputSummaryLen bounds the input_summary column, in characters.
const MaxInputSummaryLen = 200

// AgentRun records one invocation of an agent. Runs are never deleted.
type AgentRun struct {
	ID           uuid.UUID  `json:"id"`
	OrgID        uuid.UUID  `json:"org_id"`
	AgentKey     string     `json:"agent_key"`
	ClientID     *uuid.UUID `json:"client_id,omitempty"`
	InputSummary string     `json:"input_summary"`
	Status       RunStatus  `json:"status"`
	OutputPath   *string    `json:"output_path,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// SummarizeInput truncates s to MaxInputSummaryLen characters without
// splitting a multi-byte rune.
func SummarizeInput(s string) string {
	if utf8.RuneCountInString(s) <= MaxInputSummaryLen {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxInputSummaryLen {
			return s[:i]
		}
		n++
	}
	return s
}
