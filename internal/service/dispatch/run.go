package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lexdesk/lexagent/internal/model"
	"github.com/lexdesk/lexagent/internal/service/agents"
	"github.com/lexdesk/lexagent/internal/service/artifact"
	"github.com/lexdesk/lexagent/internal/service/llm"
)

// RunInput is one agents.run request.
type RunInput struct {
	OrgID    uuid.UUID
	AgentKey string
	ClientID *uuid.UUID
	Input    any
}

// Run executes an agent for an org. A disabled or unknown agent fails with
// ErrAgentDisabled before anything is recorded. Once the run exists, any
// error marks it failed; steps that already committed (artifact, usage,
// audit) are not undone.
func (d *Dispatcher) Run(ctx context.Context, in RunInput) (res model.RunResult, err error) {
	ctx, span := tracer.Start(ctx, "dispatch.run", trace.WithAttributes(
		attribute.String("org_id", in.OrgID.String()),
		attribute.String("agent_key", in.AgentKey),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// The period is fixed here so a run straddling a month boundary is
	// billed to the month it started in.
	period := model.PeriodOf(d.Now())

	if ok, lerr := d.Limiter.Allow(ctx, "org:"+in.OrgID.String()+":run"); lerr != nil {
		d.Logger.Warn("dispatch: rate limiter failed, allowing", "error", lerr, "org_id", in.OrgID)
	} else if !ok {
		return res, ErrRateLimited
	}

	cfg, err := d.Agents.Resolve(ctx, in.OrgID, in.AgentKey)
	if errors.Is(err, agents.ErrNotFound) {
		return res, fmt.Errorf("%w: %s", ErrAgentDisabled, in.AgentKey)
	}
	if err != nil {
		return res, err
	}
	if !cfg.Enabled {
		return res, fmt.Errorf("%w: %s", ErrAgentDisabled, in.AgentKey)
	}

	summary, err := llm.SerializeInput(in.Input)
	if err != nil {
		return res, &ValidationError{Message: "input is not serializable", Details: []string{err.Error()}}
	}

	runID, err := d.Runs.CreateQueued(ctx, in.OrgID, in.AgentKey, in.ClientID, summary)
	if err != nil {
		return res, err
	}
	span.SetAttributes(attribute.String("run_id", runID.String()))
	span.AddEvent("run.queued")

	defer func() {
		if err != nil {
			d.failRun(ctx, in.OrgID, runID, in.AgentKey, err)
		}
	}()

	completion, err := d.Models.Invoke(ctx, cfg, in.Input)
	if err != nil {
		return res, err
	}
	span.AddEvent("model.completed", trace.WithAttributes(
		attribute.Int64("tokens.total", completion.Usage.TotalTokens),
	))

	var outputPath *string
	if artifact.ShouldWrite(in.AgentKey) {
		path, werr := d.Artifacts.WriteOutput(ctx, in.OrgID, in.AgentKey, completion.Content)
		if werr != nil {
			return res, werr
		}
		outputPath = &path
		span.AddEvent("artifact.written", trace.WithAttributes(attribute.String("output_path", path)))
	}

	if _, err = d.Usage.Increment(ctx, in.OrgID, period, completion.Usage); err != nil {
		return res, err
	}
	countTokens(ctx, in.AgentKey, completion.Usage)

	meta := map[string]any{
		"agentKey": in.AgentKey,
		"tokens":   completion.Usage,
		"run_id":   runID.String(),
	}
	if outputPath != nil {
		meta["output_path"] = *outputPath
	}
	if err = d.Audit.Record(ctx, in.OrgID, model.AuditActionAgentRun, meta); err != nil {
		return res, err
	}

	if err = d.Runs.Finish(ctx, in.OrgID, runID, model.RunStatusDone, outputPath, ""); err != nil {
		return res, err
	}
	countRun(ctx, in.AgentKey, model.RunStatusDone)
	d.Logger.Info("dispatch: run done",
		"org_id", in.OrgID, "agent_key", in.AgentKey, "run_id", runID,
		"total_tokens", completion.Usage.TotalTokens)

	return model.RunResult{
		Data:       completion.Content,
		OutputPath: outputPath,
		Usage:      completion.Usage,
		Run:        model.RunRef{ID: runID.String()},
	}, nil
}

// failRun finalizes a queued run as failed. It runs on a detached context
// so a cancelled request still leaves no run stuck in queued.
func (d *Dispatcher) failRun(ctx context.Context, orgID, runID uuid.UUID, agentKey string, cause error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err := d.Runs.Finish(fctx, orgID, runID, model.RunStatusFailed, nil, cause.Error()); err != nil {
		d.Logger.Error("dispatch: mark run failed",
			"error", err, "cause", cause, "org_id", orgID, "run_id", runID)
		return
	}
	countRun(ctx, agentKey, model.RunStatusFailed)
	d.Logger.Warn("dispatch: run failed",
		"error", cause, "org_id", orgID, "agent_key", agentKey, "run_id", runID)
}
