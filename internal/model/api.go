package model

import (
	"encoding/json"
	"time"
)

// ToolRequest is the body accepted by the tool dispatch endpoint.
type ToolRequest struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
}

// ErrorResponse is the body written for every failed dispatch.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RunRef identifies the run created by agents.run.
type RunRef struct {
	ID string `json:"id"`
}

// RunResult is the agents.run response.
type RunResult struct {
	Data       string     `json:"data"`
	OutputPath *string    `json:"output_path,omitempty"`
	Usage      TokenUsage `json:"usage"`
	Run        RunRef     `json:"run"`
}

// PutTextResult is the storage.putText response.
type PutTextResult struct {
	Path     string `json:"path"`
	FullPath string `json:"fullPath"`
}

// URLResult is the storage.getUrl response.
type URLResult struct {
	URL string `json:"url"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string    `json:"status"`
	Version  string    `json:"version"`
	Postgres string    `json:"postgres"`
	Uptime   int64     `json:"uptime_seconds"`
	Time     time.Time `json:"time"`
}
