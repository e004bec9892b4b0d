package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lexdesk/lexagent/internal/blob"
	"github.com/lexdesk/lexagent/internal/ctxutil"
	"github.com/lexdesk/lexagent/internal/model"
	"github.com/lexdesk/lexagent/internal/service/agents"
	"github.com/lexdesk/lexagent/internal/service/dispatch"
	"github.com/lexdesk/lexagent/internal/storage"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	dispatcher          Dispatcher
	blobs               blob.Store
	db                  Pinger
	logger              *slog.Logger
	version             string
	maxRequestBodyBytes int64
	startedAt           time.Time
}

// HandleTool handles POST /v1/tools with body {"tool": ..., "params": {...}}.
func (h *Handlers) HandleTool(w http.ResponseWriter, r *http.Request) {
	if h.maxRequestBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	}

	var req model.ToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Tool == "" {
		writeError(w, http.StatusBadRequest, "tool required")
		return
	}

	var params map[string]any
	if trimmed := bytes.TrimSpace(req.Params); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "params must be a JSON object")
			return
		}
	}

	out, err := h.dispatcher.Dispatch(r.Context(), req.Tool, params)
	if err != nil {
		h.writeDispatchError(w, r, req.Tool, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleUsage handles GET /v1/orgs/{org_id}/usage[?period=YYYY-MM].
func (h *Handlers) HandleUsage(w http.ResponseWriter, r *http.Request) {
	params := map[string]any{"orgId": r.PathValue("org_id")}
	if p := r.URL.Query().Get("period"); p != "" {
		params["period"] = p
	}
	out, err := h.dispatcher.Dispatch(r.Context(), dispatch.ToolUsageGet, params)
	if err != nil {
		h.writeDispatchError(w, r, dispatch.ToolUsageGet, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleObject serves a stored object at its public URL.
func (h *Handlers) HandleObject(w http.ResponseWriter, r *http.Request) {
	bucket, path := r.PathValue("bucket"), r.PathValue("path")
	if err := blob.ValidateName(bucket, path); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	obj, err := h.blobs.Get(r.Context(), bucket, path)
	if errors.Is(err, blob.ErrNotFound) {
		writeError(w, http.StatusNotFound, "object not found")
		return
	}
	if err != nil {
		h.logger.Error("read object", "error", err, "bucket", bucket, "path", path)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	ct := obj.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Body)
}

// HandleHealth reports process and database health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			pgStatus = "disconnected"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: pgStatus,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
		Time:     time.Now().UTC(),
	})
}

func (h *Handlers) writeDispatchError(w http.ResponseWriter, r *http.Request, tool string, err error) {
	status := statusForError(err)
	if status >= 500 {
		h.logger.Error("tool failed", "tool", tool, "error", err,
			"request_id", ctxutil.RequestIDFromContext(r.Context()))
	}
	writeError(w, status, err.Error())
}

// statusForError maps dispatch errors to HTTP status codes. Anything not
// recognized is a server-side failure.
func statusForError(err error) int {
	var ve *dispatch.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrUnknownTool),
		errors.Is(err, agents.ErrNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrAgentDisabled):
		return http.StatusForbidden
	case errors.Is(err, dispatch.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes v as the JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.ErrorResponse{Error: message})
}
