// Package sweeper fails runs left in queued past a deadline, for example when
// the process died between recording a run and finishing it.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/lexdesk/lexagent/internal/model"
)

// DefaultSchedule runs a sweep every five minutes.
const DefaultSchedule = "@every 5m"

const sweepTimeout = 30 * time.Second

// Store finalizes stale runs in one statement and returns them.
type Store interface {
	FailStaleRuns(ctx context.Context, cutoff time.Time, reason string, finishedAt time.Time) ([]model.AgentRun, error)
}

// AuditRecorder appends to the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, orgID uuid.UUID, action string, meta map[string]any) error
}

// Sweeper marks queued runs older than staleAfter as failed.
type Sweeper struct {
	store      Store
	audit      AuditRecorder
	staleAfter time.Duration
	schedule   cron.Schedule
	now        func() time.Time
	logger     *slog.Logger
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a Sweeper. spec is a five-field cron expression or a
// descriptor such as "@every 1m"; empty selects DefaultSchedule.
func New(store Store, audit AuditRecorder, spec string, staleAfter time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("sweeper: invalid schedule %q: %w", spec, err)
	}
	if staleAfter <= 0 {
		return nil, fmt.Errorf("sweeper: stale-after must be positive, got %s", staleAfter)
	}
	return &Sweeper{
		store:      store,
		audit:      audit,
		staleAfter: staleAfter,
		schedule:   sched,
		now:        time.Now,
		logger:     logger,
	}, nil
}

// Sweep fails every run queued before now minus staleAfter and audits each
// one. It returns the number of runs failed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	reason := fmt.Sprintf("expired: still queued after %s", s.staleAfter)

	runs, err := s.store.FailStaleRuns(ctx, now.Add(-s.staleAfter), reason, now)
	if err != nil {
		return 0, fmt.Errorf("sweeper: fail stale runs: %w", err)
	}
	for _, r := range runs {
		meta := map[string]any{"agentKey": r.AgentKey, "run_id": r.ID.String()}
		if err := s.audit.Record(ctx, r.OrgID, model.AuditActionRunExpired, meta); err != nil {
			s.logger.Warn("sweeper: audit expired run", "error", err, "org_id", r.OrgID, "run_id", r.ID)
		}
	}
	return len(runs), nil
}

// Start runs Sweep on the schedule until ctx is cancelled. It blocks.
func (s *Sweeper) Start(ctx context.Context) {
	c := cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		opCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()
		n, err := s.Sweep(opCtx)
		if err != nil {
			s.logger.Warn("sweeper: sweep failed", "error", err)
			return
		}
		if n > 0 {
			s.logger.Info("sweeper: failed stale runs", "count", n)
		}
	}))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}
