package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Tool names served by the dispatcher.
const (
	ToolAgentsList      = "agents.list"
	ToolAgentsGetConfig = "agents.getConfig"
	ToolAgentsToggle    = "agents.toggle"
	ToolAgentsRun       = "agents.run"
	ToolStoragePutText  = "storage.putText"
	ToolStorageGetURL   = "storage.getUrl"
	ToolUsageGet        = "usage.get"
	ToolRunsGet         = "runs.get"
	ToolRunsList        = "runs.list"
)

// ToolSpec describes a tool for clients (MCP listings, CLI help).
type ToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

type handlerFunc func(ctx context.Context, params map[string]any) (any, error)

type tool struct {
	spec    ToolSpec
	usage   string // message for missing or mistyped required params
	schema  *gojsonschema.Schema
	handler handlerFunc
}

const (
	orgIDProp    = `"orgId": {"type": "string", "minLength": 1, "format": "uuid", "description": "Organization ID"}`
	agentKeyProp = `"agentKey": {"type": "string", "minLength": 1, "description": "Agent catalog key"}`
	bucketProp   = `"bucket": {"type": "string", "description": "Bucket name (default outputs)"}`
	pathProp     = `"path": {"type": "string", "minLength": 1, "description": "Object path inside the bucket"}`
)

func objectSchema(required string, props ...string) string {
	s := `{"type": "object", "properties": {`
	for i, p := range props {
		if i > 0 {
			s += ", "
		}
		s += p
	}
	return s + `}, "required": [` + required + `]}`
}

func (d *Dispatcher) registerTools() error {
	defs := []struct {
		name, description, usage, schema string
		handler                          handlerFunc
	}{
		{
			ToolAgentsList, "List every agent with its effective configuration for an org.",
			"orgId required",
			objectSchema(`"orgId"`, orgIDProp),
			d.handleList,
		},
		{
			ToolAgentsGetConfig, "Get the effective configuration of one agent for an org.",
			"orgId and agentKey required",
			objectSchema(`"orgId", "agentKey"`, orgIDProp, agentKeyProp),
			d.handleGetConfig,
		},
		{
			ToolAgentsToggle, "Enable or disable an agent for an org.",
			"orgId, agentKey, enabled required",
			objectSchema(`"orgId", "agentKey", "enabled"`, orgIDProp, agentKeyProp,
				`"enabled": {"type": "boolean"}`),
			d.handleToggle,
		},
		{
			ToolAgentsRun, "Run an agent on an input and record the run, usage and audit trail.",
			"orgId and agentKey required",
			objectSchema(`"orgId", "agentKey"`, orgIDProp, agentKeyProp,
				`"input": {"description": "Text or structured input for the agent"}`,
				`"clientId": {"type": "string", "format": "uuid", "description": "CRM client the run is about"}`),
			d.handleRun,
		},
		{
			ToolStoragePutText, "Store a text object, overwriting any existing object at the path.",
			"path and text required",
			objectSchema(`"path", "text"`, bucketProp, pathProp,
				`"text": {"type": "string"}`,
				`"contentType": {"type": "string", "minLength": 1}`),
			d.handlePutText,
		},
		{
			ToolStorageGetURL, "Get the public URL of a stored object.",
			"path required",
			objectSchema(`"path"`, bucketProp, pathProp),
			d.handleGetURL,
		},
		{
			ToolUsageGet, "Get an org's token usage, cost and run count for a billing period.",
			"orgId required",
			objectSchema(`"orgId"`, orgIDProp,
				`"period": {"type": "string", "pattern": "^[0-9]{4}-(0[1-9]|1[0-2])$", "description": "YYYY-MM, default current"}`),
			d.handleUsage,
		},
		{
			ToolRunsGet, "Get one agent run.",
			"orgId and runId required",
			objectSchema(`"orgId", "runId"`, orgIDProp,
				`"runId": {"type": "string", "minLength": 1, "format": "uuid"}`),
			d.handleGetRun,
		},
		{
			ToolRunsList, "List an org's agent runs, newest first.",
			"orgId required",
			objectSchema(`"orgId"`, orgIDProp,
				`"agentKey": {"type": "string", "description": "Only runs of this agent"}`,
				`"limit": {"type": "integer", "minimum": 1, "maximum": 200, "description": "Page size, default 50"}`,
				`"offset": {"type": "integer", "minimum": 0}`),
			d.handleListRuns,
		},
	}

	d.tools = make(map[string]*tool, len(defs))
	for _, def := range defs {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(def.schema))
		if err != nil {
			return fmt.Errorf("dispatch: compile schema for %s: %w", def.name, err)
		}
		d.tools[def.name] = &tool{
			spec: ToolSpec{
				Name:        def.name,
				Description: def.description,
				InputSchema: json.RawMessage(def.schema),
			},
			usage:   def.usage,
			schema:  schema,
			handler: def.handler,
		}
		d.order = append(d.order, def.name)
	}
	return nil
}

// validate checks params against the tool schema. Missing, empty or
// mistyped required fields produce the tool's usage message.
func (t *tool) validate(params map[string]any) error {
	res, err := t.schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return &ValidationError{Message: t.usage, Details: []string{err.Error()}}
	}
	if res.Valid() {
		return nil
	}

	var details []string
	usage := false
	for _, e := range res.Errors() {
		switch e.Type() {
		case "required", "invalid_type", "string_gte":
			usage = true
		}
		details = append(details, e.Field()+": "+e.Description())
	}
	if usage {
		return &ValidationError{Message: t.usage}
	}
	return &ValidationError{Message: details[0], Details: details[1:]}
}
