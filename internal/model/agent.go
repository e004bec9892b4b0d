// Package model defines the core domain types for lexagent.
//
// Types map directly onto the database tables in migrations/ and onto the
// JSON shapes returned by the tool dispatch surface.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Catalog fallbacks applied when neither the catalog entry nor an override
// sets a value.
const (
	DefaultModel       = "gpt-5"
	DefaultTemperature = 0.1
)

// AgentKeyPrazos is the deadline-calculation agent. Its output is returned
// inline and never persisted as an artifact.
const AgentKeyPrazos = "prazos"

// AgentParams holds the tunable generation parameters stored as jsonb on a
// catalog entry.
type AgentParams struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// CatalogEntry is a platform-owned agent definition shared by every org.
type CatalogEntry struct {
	Key            string      `json:"key" yaml:"key"`
	Name           string      `json:"name" yaml:"name"`
	DefaultEnabled bool        `json:"default_enabled" yaml:"default_enabled"`
	DefaultModel   string      `json:"default_model" yaml:"default_model"`
	DefaultParams  AgentParams `json:"default_params" yaml:"default_params"`
	SystemPrompt   *string     `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	CreatedAt      time.Time   `json:"created_at" yaml:"-"`
}

// Override is an org-specific partial replacement of catalog defaults.
// A nil field means "inherit".
type Override struct {
	OrgID        uuid.UUID `json:"org_id"`
	AgentKey     string    `json:"agent_key"`
	Enabled      *bool     `json:"enabled,omitempty"`
	Model        *string   `json:"model,omitempty"`
	Temperature  *float64  `json:"temperature,omitempty"`
	MaxTokens    *int      `json:"max_tokens,omitempty"`
	SystemPrompt *string   `json:"system_prompt,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AgentConfig is the effective configuration of one agent for one org.
// It is derived on every read and never stored.
type AgentConfig struct {
	Key          string  `json:"key"`
	Name         string  `json:"name"`
	Enabled      bool    `json:"enabled"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    *int    `json:"max_tokens,omitempty"`
	SystemPrompt *string `json:"systemPrompt,omitempty"`
}
