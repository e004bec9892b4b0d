// Package dispatch routes named tool calls to the agent services and runs
// the agent pipeline: resolve, record, invoke, store, meter, audit, finish.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/lexdesk/lexagent/internal/billing"
	"github.com/lexdesk/lexagent/internal/blob"
	"github.com/lexdesk/lexagent/internal/model"
	"github.com/lexdesk/lexagent/internal/ratelimit"
	"github.com/lexdesk/lexagent/internal/service/llm"
)

var (
	tracer = otel.Tracer("lexagent/dispatch")
	meter  = otel.GetMeterProvider().Meter("lexagent/dispatch")

	runCounter, _   = meter.Int64Counter("lexagent.runs", otelmetric.WithDescription("Agent runs by final status"))
	tokenCounter, _ = meter.Int64Counter("lexagent.tokens", otelmetric.WithDescription("Tokens consumed by direction"))
)

// finalizeTimeout bounds the write that marks a run failed after the
// request context is gone.
const finalizeTimeout = 5 * time.Second

// AgentService resolves and toggles per-org agent configuration.
type AgentService interface {
	List(ctx context.Context, orgID uuid.UUID) ([]model.AgentConfig, error)
	Resolve(ctx context.Context, orgID uuid.UUID, agentKey string) (model.AgentConfig, error)
	Toggle(ctx context.Context, orgID uuid.UUID, agentKey string, enabled bool) (model.AgentConfig, error)
}

// RunLedger records agent runs.
type RunLedger interface {
	CreateQueued(ctx context.Context, orgID uuid.UUID, agentKey string, clientID *uuid.UUID, input string) (uuid.UUID, error)
	Finish(ctx context.Context, orgID, runID uuid.UUID, status model.RunStatus, outputPath *string, reason string) error
	Get(ctx context.Context, orgID, runID uuid.UUID) (model.AgentRun, error)
	List(ctx context.Context, orgID uuid.UUID, agentKey string, limit, offset int) ([]model.AgentRun, error)
}

// UsageMeter accumulates token usage and cost per org and period.
type UsageMeter interface {
	Increment(ctx context.Context, orgID uuid.UUID, period model.Period, usage model.TokenUsage) (model.UsageCounter, error)
	Summary(ctx context.Context, orgID uuid.UUID, period model.Period) (model.UsageSummary, error)
}

// ModelInvoker calls the chat-completion provider for an agent.
type ModelInvoker interface {
	Invoke(ctx context.Context, cfg model.AgentConfig, input any) (llm.Completion, error)
}

// ArtifactStore writes run outputs and serves the storage tools.
type ArtifactStore interface {
	WriteOutput(ctx context.Context, orgID uuid.UUID, agentKey, content string) (string, error)
	PutText(ctx context.Context, bucket, path, text, contentType string) (model.PutTextResult, error)
	URL(bucket, path string) string
}

// AuditRecorder appends to the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, orgID uuid.UUID, action string, meta map[string]any) error
}

// Deps are the collaborators of a Dispatcher. Limiter and Now are optional.
type Deps struct {
	Agents    AgentService
	Runs      RunLedger
	Usage     UsageMeter
	Models    ModelInvoker
	Artifacts ArtifactStore
	Audit     AuditRecorder
	Limiter   ratelimit.Limiter
	Now       func() time.Time
	Logger    *slog.Logger
}

// Dispatcher executes tool calls.
type Dispatcher struct {
	Deps
	tools map[string]*tool
	order []string
}

// New creates a Dispatcher and compiles the tool schemas.
func New(deps Deps) (*Dispatcher, error) {
	if deps.Agents == nil || deps.Runs == nil || deps.Usage == nil ||
		deps.Models == nil || deps.Artifacts == nil || deps.Audit == nil {
		return nil, errors.New("dispatch: missing dependency")
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NoopLimiter{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	d := &Dispatcher{Deps: deps}
	if err := d.registerTools(); err != nil {
		return nil, err
	}
	return d, nil
}

// Tools lists the served tools in registration order.
func (d *Dispatcher) Tools() []ToolSpec {
	specs := make([]ToolSpec, 0, len(d.order))
	for _, name := range d.order {
		specs = append(specs, d.tools[name].spec)
	}
	return specs
}

// Dispatch validates params and executes the named tool.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, params map[string]any) (any, error) {
	t, ok := d.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if params == nil {
		params = map[string]any{}
	}
	if err := t.validate(params); err != nil {
		return nil, err
	}
	res, err := t.handler(ctx, params)
	if errors.Is(err, blob.ErrInvalidName) {
		return nil, &ValidationError{Message: err.Error()}
	}
	return res, err
}

func (d *Dispatcher) handleList(ctx context.Context, p map[string]any) (any, error) {
	cfgs, err := d.Agents.List(ctx, uuidParam(p, "orgId"))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cfgs, func(i, j int) bool { return cfgs[i].Key < cfgs[j].Key })
	return cfgs, nil
}

func (d *Dispatcher) handleGetConfig(ctx context.Context, p map[string]any) (any, error) {
	return d.Agents.Resolve(ctx, uuidParam(p, "orgId"), stringParam(p, "agentKey"))
}

func (d *Dispatcher) handleToggle(ctx context.Context, p map[string]any) (any, error) {
	orgID := uuidParam(p, "orgId")
	key := stringParam(p, "agentKey")
	enabled, _ := p["enabled"].(bool)

	cfg, err := d.Agents.Toggle(ctx, orgID, key, enabled)
	if err != nil {
		return nil, err
	}
	meta := map[string]any{"agentKey": key, "enabled": enabled}
	if err := d.Audit.Record(ctx, orgID, model.AuditActionAgentToggle, meta); err != nil {
		d.Logger.Warn("dispatch: toggle audit failed", "error", err, "org_id", orgID, "agent_key", key)
	}
	return cfg, nil
}

func (d *Dispatcher) handleRun(ctx context.Context, p map[string]any) (any, error) {
	var clientID *uuid.UUID
	if _, ok := p["clientId"]; ok {
		id := uuidParam(p, "clientId")
		clientID = &id
	}
	return d.Run(ctx, RunInput{
		OrgID:    uuidParam(p, "orgId"),
		AgentKey: stringParam(p, "agentKey"),
		ClientID: clientID,
		Input:    p["input"],
	})
}

func (d *Dispatcher) handlePutText(ctx context.Context, p map[string]any) (any, error) {
	return d.Artifacts.PutText(ctx,
		stringParam(p, "bucket"), stringParam(p, "path"),
		stringParam(p, "text"), stringParam(p, "contentType"))
}

func (d *Dispatcher) handleGetURL(_ context.Context, p map[string]any) (any, error) {
	bucket := stringParam(p, "bucket")
	if bucket == "" {
		bucket = "outputs"
	}
	path := stringParam(p, "path")
	if err := blob.ValidateName(bucket, path); err != nil {
		return nil, err
	}
	return model.URLResult{URL: d.Artifacts.URL(bucket, path)}, nil
}

func (d *Dispatcher) handleUsage(ctx context.Context, p map[string]any) (any, error) {
	return d.Usage.Summary(ctx, uuidParam(p, "orgId"), model.Period(stringParam(p, "period")))
}

func (d *Dispatcher) handleGetRun(ctx context.Context, p map[string]any) (any, error) {
	return d.Runs.Get(ctx, uuidParam(p, "orgId"), uuidParam(p, "runId"))
}

func (d *Dispatcher) handleListRuns(ctx context.Context, p map[string]any) (any, error) {
	runs, err := d.Runs.List(ctx, uuidParam(p, "orgId"), stringParam(p, "agentKey"),
		intParam(p, "limit"), intParam(p, "offset"))
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []model.AgentRun{}
	}
	return runs, nil
}

// stringParam returns p[key] or "" when absent. Types are already checked
// by the tool schema.
func stringParam(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

// uuidParam parses a schema-validated uuid param.
func uuidParam(p map[string]any, key string) uuid.UUID {
	id, _ := uuid.Parse(stringParam(p, key))
	return id
}

// intParam reads a schema-validated integer. HTTP params arrive as
// json.Number, MCP and CLI params as float64 or int.
func intParam(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func countRun(ctx context.Context, agentKey string, status model.RunStatus) {
	runCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("agent_key", agentKey),
		attribute.String("status", string(status)),
	))
}

func countTokens(ctx context.Context, agentKey string, u model.TokenUsage) {
	tokenCounter.Add(ctx, u.PromptTokens, otelmetric.WithAttributes(
		attribute.String("agent_key", agentKey), attribute.String("direction", "in")))
	tokenCounter.Add(ctx, u.CompletionTokens, otelmetric.WithAttributes(
		attribute.String("agent_key", agentKey), attribute.String("direction", "out")))
}

var _ UsageMeter = (*billing.Accountant)(nil)
