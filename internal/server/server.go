// Package server implements the HTTP API: the tool dispatch endpoint, usage
// reports, public object reads, health, and the MCP transport.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/lexdesk/lexagent/internal/blob"
	"github.com/lexdesk/lexagent/internal/service/dispatch"
)

// Dispatcher executes named tool calls.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, params map[string]any) (any, error)
}

// Pinger reports database reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the lexagent HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// MCPServer is optional.
type ServerConfig struct {
	Dispatcher Dispatcher
	Blobs      blob.Store
	DB         Pinger
	Logger     *slog.Logger
	MCPServer  *mcpserver.MCPServer

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := &Handlers{
		dispatcher:          cfg.Dispatcher,
		blobs:               cfg.Blobs,
		db:                  cfg.DB,
		logger:              cfg.Logger,
		version:             cfg.Version,
		maxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		startedAt:           time.Now(),
	}

	mux := http.NewServeMux()

	// Tool dispatch. Other methods get 405 from the mux.
	mux.HandleFunc("POST /v1/tools", h.HandleTool)

	mux.HandleFunc("GET /v1/orgs/{org_id}/usage", h.HandleUsage)

	// Artifact URLs handed out by storage.getUrl resolve here.
	mux.HandleFunc("GET /storage/v1/object/public/{bucket}/{path...}", h.HandleObject)

	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → CORS → tracing → logging → caller identity → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = userIDMiddleware(handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

var _ Dispatcher = (*dispatch.Dispatcher)(nil)
