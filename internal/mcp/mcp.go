// Package mcp exposes the agent tools over the Model Context Protocol.
//
// Every tool served by the dispatcher is registered under the same name and
// JSON schema as on the HTTP tool endpoint, so MCP clients and the CRM front
// end see one surface.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/lexdesk/lexagent/internal/service/dispatch"
)

// Dispatcher executes named tool calls.
type Dispatcher interface {
	Tools() []dispatch.ToolSpec
	Dispatch(ctx context.Context, name string, params map[string]any) (any, error)
}

// Server wraps the MCP server with the tool dispatcher.
type Server struct {
	mcpServer  *mcpserver.MCPServer
	dispatcher Dispatcher
	logger     *slog.Logger
}

// New creates an MCP server with every dispatcher tool and the per-org
// agents resource registered.
func New(d Dispatcher, logger *slog.Logger, version string) *Server {
	s := &Server{dispatcher: d, logger: logger}
	s.mcpServer = mcpserver.NewMCPServer(
		"lexagent",
		version,
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	for _, spec := range s.dispatcher.Tools() {
		s.mcpServer.AddTool(
			mcplib.NewToolWithRawSchema(spec.Name, spec.Description, spec.InputSchema),
			s.toolHandler(spec.Name),
		)
	}
}

const agentsURIPrefix = "lexagent://orgs/"

func (s *Server) registerResources() {
	// lexagent://orgs/{org_id}/agents: effective agent configs for an org.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			agentsURIPrefix+"{org_id}/agents",
			"Org Agents",
			mcplib.WithTemplateDescription("Effective configuration of every agent for an organization"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleOrgAgents,
	)
}

func (s *Server) toolHandler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		out, err := s.dispatcher.Dispatch(ctx, name, request.GetArguments())
		if err != nil {
			if !isClientError(err) {
				s.logger.Error("mcp: tool failed", "tool", name, "error", err)
			}
			return errorResult(err.Error()), nil
		}
		return jsonResult(out)
	}
}

func (s *Server) handleOrgAgents(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	orgID, err := parseOrgAgentsURI(uri)
	if err != nil {
		return nil, err
	}

	out, err := s.dispatcher.Dispatch(ctx, dispatch.ToolAgentsList, map[string]any{"orgId": orgID.String()})
	if err != nil {
		return nil, fmt.Errorf("mcp: org agents: %w", err)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal agents: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func parseOrgAgentsURI(uri string) (uuid.UUID, error) {
	rest, ok := strings.CutPrefix(uri, agentsURIPrefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("mcp: invalid org agents URI: %s", uri)
	}
	raw, ok := strings.CutSuffix(rest, "/agents")
	if !ok {
		return uuid.Nil, fmt.Errorf("mcp: invalid org agents URI: %s", uri)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("mcp: invalid org id in %s: %w", uri, err)
	}
	return id, nil
}

// isClientError reports errors caused by the caller rather than the service.
func isClientError(err error) bool {
	var ve *dispatch.ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, dispatch.ErrUnknownTool) ||
		errors.Is(err, dispatch.ErrAgentDisabled) ||
		errors.Is(err, dispatch.ErrRateLimited)
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
