// Package agents resolves the effective agent configuration for an org by
// layering its overrides on the shared catalog.
package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/lexdesk/lexagent/internal/model"
)

// ErrNotFound is returned when an agent key is not in the catalog. Overrides
// alone never make an agent exist.
var ErrNotFound = errors.New("agent not found")

// Store is the persistence the resolver reads and the toggle writes.
type Store interface {
	ListCatalog(ctx context.Context) ([]model.CatalogEntry, error)
	ListOverrides(ctx context.Context, orgID uuid.UUID) ([]model.Override, error)
	SetOverrideEnabled(ctx context.Context, orgID uuid.UUID, agentKey string, enabled bool) error
}

// Resolver computes effective configs on every call; nothing is cached.
type Resolver struct {
	store  Store
	logger *slog.Logger

	// Coalesces concurrent catalog loads. Overrides are always read per call.
	catalogLoads singleflight.Group
}

// catalogLoadTimeout bounds one shared catalog query. The query is detached
// from the first caller so its cancellation does not fail the others.
const catalogLoadTimeout = 10 * time.Second

// NewResolver creates a Resolver backed by store.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

func (r *Resolver) loadCatalog(ctx context.Context) ([]model.CatalogEntry, error) {
	ch := r.catalogLoads.DoChan("catalog", func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), catalogLoadTimeout)
		defer cancel()
		return r.store.ListCatalog(lctx)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("agents: load catalog: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("agents: load catalog: %w", res.Err)
		}
		return res.Val.([]model.CatalogEntry), nil
	}
}

// List returns every catalog agent as seen by orgID.
func (r *Resolver) List(ctx context.Context, orgID uuid.UUID) ([]model.AgentConfig, error) {
	catalog, err := r.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	overrides, err := r.store.ListOverrides(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("agents: load overrides: %w", err)
	}
	return Merge(catalog, overrides), nil
}

// Resolve returns the effective config of one agent for orgID.
func (r *Resolver) Resolve(ctx context.Context, orgID uuid.UUID, agentKey string) (model.AgentConfig, error) {
	all, err := r.List(ctx, orgID)
	if err != nil {
		return model.AgentConfig{}, err
	}
	for _, cfg := range all {
		if cfg.Key == agentKey {
			return cfg, nil
		}
	}
	return model.AgentConfig{}, fmt.Errorf("agents: %q: %w", agentKey, ErrNotFound)
}

// Toggle sets the org's enabled override for agentKey and returns the
// re-resolved config. Unknown keys fail with ErrNotFound before any write.
func (r *Resolver) Toggle(ctx context.Context, orgID uuid.UUID, agentKey string, enabled bool) (model.AgentConfig, error) {
	if _, err := r.Resolve(ctx, orgID, agentKey); err != nil {
		return model.AgentConfig{}, err
	}
	if err := r.store.SetOverrideEnabled(ctx, orgID, agentKey, enabled); err != nil {
		return model.AgentConfig{}, fmt.Errorf("agents: toggle %q: %w", agentKey, err)
	}

	cfg, err := r.Resolve(ctx, orgID, agentKey)
	if err != nil {
		// The catalog entry vanished between the two reads.
		return model.AgentConfig{}, fmt.Errorf("agents: config not found after toggle: %w", err)
	}
	r.logger.Info("agent toggled", "org_id", orgID, "agent_key", agentKey, "enabled", enabled)
	return cfg, nil
}
