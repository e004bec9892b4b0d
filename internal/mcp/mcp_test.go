package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/lexagent/internal/model"
	"github.com/lexdesk/lexagent/internal/service/dispatch"
	"github.com/lexdesk/lexagent/internal/testutil"
)

type call struct {
	name   string
	params map[string]any
}

type fakeDispatcher struct {
	calls []call
	out   any
	err   error
}

func (f *fakeDispatcher) Tools() []dispatch.ToolSpec {
	return []dispatch.ToolSpec{
		{
			Name:        dispatch.ToolAgentsList,
			Description: "List agents",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"orgId":{"type":"string"}},"required":["orgId"]}`),
		},
		{
			Name:        dispatch.ToolAgentsRun,
			Description: "Run an agent",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"orgId":{"type":"string"},"agentKey":{"type":"string"}}}`),
		},
	}
}

func (f *fakeDispatcher) Dispatch(_ context.Context, name string, params map[string]any) (any, error) {
	f.calls = append(f.calls, call{name, params})
	return f.out, f.err
}

func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	var req mcplib.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, res *mcplib.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcplib.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestToolHandlerReturnsJSON(t *testing.T) {
	org := uuid.New()
	d := &fakeDispatcher{out: []model.AgentConfig{{Key: "peca", Name: "Peças", Enabled: true}}}
	s := New(d, testutil.TestLogger(), "test")

	res, err := s.toolHandler(dispatch.ToolAgentsList)(context.Background(),
		callRequest(dispatch.ToolAgentsList, map[string]any{"orgId": org.String()}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var got []model.AgentConfig
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "peca", got[0].Key)

	require.Len(t, d.calls, 1)
	assert.Equal(t, org.String(), d.calls[0].params["orgId"])
}

func TestToolHandlerMapsErrorsToErrorResults(t *testing.T) {
	for _, err := range []error{
		&dispatch.ValidationError{Message: "orgId required"},
		fmt.Errorf("%w: parecer", dispatch.ErrAgentDisabled),
		errors.New("openai error: {\"error\":\"quota\"}"),
	} {
		s := New(&fakeDispatcher{err: err}, testutil.TestLogger(), "test")
		res, herr := s.toolHandler(dispatch.ToolAgentsRun)(context.Background(), callRequest(dispatch.ToolAgentsRun, nil))
		require.NoError(t, herr)
		assert.True(t, res.IsError)
		assert.Equal(t, err.Error(), textOf(t, res))
	}
}

func TestToolsAreListed(t *testing.T) {
	s := New(&fakeDispatcher{}, testutil.TestLogger(), "test")

	resp := s.MCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"agents.list"`)
	assert.Contains(t, string(data), `"agents.run"`)
}

func TestOrgAgentsResource(t *testing.T) {
	org := uuid.New()
	d := &fakeDispatcher{out: []model.AgentConfig{{Key: "contrato"}}}
	s := New(d, testutil.TestLogger(), "test")

	var req mcplib.ReadResourceRequest
	req.Params.URI = "lexagent://orgs/" + org.String() + "/agents"
	contents, err := s.handleOrgAgents(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	trc, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)
	assert.Contains(t, trc.Text, "contrato")
	require.Len(t, d.calls, 1)
	assert.Equal(t, dispatch.ToolAgentsList, d.calls[0].name)
}

func TestParseOrgAgentsURI(t *testing.T) {
	org := uuid.New()
	got, err := parseOrgAgentsURI("lexagent://orgs/" + org.String() + "/agents")
	require.NoError(t, err)
	assert.Equal(t, org, got)

	for _, bad := range []string{
		"lexagent://orgs/not-a-uuid/agents",
		"lexagent://orgs/" + org.String(),
		"other://orgs/" + org.String() + "/agents",
	} {
		_, err := parseOrgAgentsURI(bad)
		assert.Error(t, err, bad)
	}
}
