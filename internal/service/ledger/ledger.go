// Package ledger records the lifecycle of agent runs: a run is created
// queued before the model is called and is finalized exactly once.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lexdesk/lexagent/internal/model"
	"github.com/lexdesk/lexagent/internal/storage"
)

// ErrAlreadyFinished is returned when finishing a run that is no longer queued.
var ErrAlreadyFinished = errors.New("ledger: run already finished")

// Store is the run persistence the ledger needs.
type Store interface {
	CreateRun(ctx context.Context, run model.AgentRun) error
	FinishRun(ctx context.Context, orgID, id uuid.UUID, status model.RunStatus, outputPath, reason *string, finishedAt time.Time) error
	GetRun(ctx context.Context, orgID, id uuid.UUID) (model.AgentRun, error)
	ListRuns(ctx context.Context, orgID uuid.UUID, agentKey string, limit, offset int) ([]model.AgentRun, error)
}

// Ledger creates and finalizes runs.
type Ledger struct {
	store Store
	now   func() time.Time
}

// New creates a Ledger. now defaults to time.Now.
func New(store Store, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, now: now}
}

// CreateQueued inserts a queued run and returns its ID. The input is stored
// as a summary truncated to model.MaxInputSummaryLen characters.
func (l *Ledger) CreateQueued(ctx context.Context, orgID uuid.UUID, agentKey string, clientID *uuid.UUID, input string) (uuid.UUID, error) {
	run := model.AgentRun{
		ID:           uuid.New(),
		OrgID:        orgID,
		AgentKey:     agentKey,
		ClientID:     clientID,
		InputSummary: model.SummarizeInput(input),
		Status:       model.RunStatusQueued,
		CreatedAt:    l.now().UTC(),
	}
	if err := l.store.CreateRun(ctx, run); err != nil {
		return uuid.Nil, fmt.Errorf("ledger: create run: %w", err)
	}
	return run.ID, nil
}

// Finish moves a queued run to done or failed. reason is stored only for
// failed runs; outputPath only for done runs.
func (l *Ledger) Finish(ctx context.Context, orgID, runID uuid.UUID, status model.RunStatus, outputPath *string, reason string) error {
	if !status.Terminal() {
		return fmt.Errorf("ledger: finish run: %q is not a terminal status", status)
	}
	var why *string
	if status == model.RunStatusFailed {
		outputPath = nil
		if reason != "" {
			why = &reason
		}
	}
	err := l.store.FinishRun(ctx, orgID, runID, status, outputPath, why, l.now().UTC())
	if errors.Is(err, storage.ErrRunNotQueued) {
		return fmt.Errorf("%w: %s", ErrAlreadyFinished, runID)
	}
	if err != nil {
		return fmt.Errorf("ledger: finish run: %w", err)
	}
	return nil
}

// Get returns one run of orgID.
func (l *Ledger) Get(ctx context.Context, orgID, runID uuid.UUID) (model.AgentRun, error) {
	run, err := l.store.GetRun(ctx, orgID, runID)
	if err != nil {
		return model.AgentRun{}, fmt.Errorf("ledger: get run: %w", err)
	}
	return run, nil
}

// List returns orgID's runs newest first, optionally filtered by agent key.
func (l *Ledger) List(ctx context.Context, orgID uuid.UUID, agentKey string, limit, offset int) ([]model.AgentRun, error) {
	runs, err := l.store.ListRuns(ctx, orgID, agentKey, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ledger: list runs: %w", err)
	}
	return runs, nil
}
