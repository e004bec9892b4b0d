package agents

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/lexdesk/lexagent/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Agents []catalogItem `yaml:"agents"`
}

// catalogItem mirrors model.CatalogEntry but lets default_enabled be omitted.
type catalogItem struct {
	Key            string            `yaml:"key"`
	Name           string            `yaml:"name"`
	DefaultEnabled *bool             `yaml:"default_enabled"`
	DefaultModel   string            `yaml:"default_model"`
	DefaultParams  model.AgentParams `yaml:"default_params"`
	SystemPrompt   *string           `yaml:"system_prompt"`
}

// LoadCatalogYAML parses a catalog file. Keys must be unique and non-empty.
func LoadCatalogYAML(r io.Reader) ([]model.CatalogEntry, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("agents: parse catalog: %w", err)
	}

	seen := make(map[string]bool, len(f.Agents))
	out := make([]model.CatalogEntry, 0, len(f.Agents))
	for i, it := range f.Agents {
		if it.Key == "" {
			return nil, fmt.Errorf("agents: catalog entry %d: key is required", i)
		}
		if it.Name == "" {
			return nil, fmt.Errorf("agents: catalog entry %q: name is required", it.Key)
		}
		if seen[it.Key] {
			return nil, fmt.Errorf("agents: catalog entry %q: duplicate key", it.Key)
		}
		seen[it.Key] = true

		e := model.CatalogEntry{
			Key:            it.Key,
			Name:           it.Name,
			DefaultEnabled: true,
			DefaultModel:   it.DefaultModel,
			DefaultParams:  it.DefaultParams,
			SystemPrompt:   it.SystemPrompt,
		}
		if it.DefaultEnabled != nil {
			e.DefaultEnabled = *it.DefaultEnabled
		}
		if e.DefaultModel == "" {
			e.DefaultModel = model.DefaultModel
		}
		out = append(out, e)
	}
	return out, nil
}

// DefaultCatalog returns the built-in seven-agent catalog.
func DefaultCatalog() []model.CatalogEntry {
	entries, err := LoadCatalogYAML(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(err) // embedded file is validated by tests
	}
	return entries
}

// CatalogSeeder inserts catalog entries that do not exist yet.
type CatalogSeeder interface {
	InsertCatalogEntries(ctx context.Context, entries []model.CatalogEntry) (int, error)
}

// SeedCatalog inserts entries missing from the catalog and reports how many
// were added.
func SeedCatalog(ctx context.Context, s CatalogSeeder, entries []model.CatalogEntry) (int, error) {
	n, err := s.InsertCatalogEntries(ctx, entries)
	if err != nil {
		return n, fmt.Errorf("agents: seed catalog: %w", err)
	}
	return n, nil
}
