package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lexdesk/lexagent/internal/model"
)

// ListOverrides returns an org's overrides. Rows for keys missing from the
// catalog are returned as-is; the resolver discards them.
func (db *DB) ListOverrides(ctx context.Context, orgID uuid.UUID) ([]model.Override, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT org_id, agent_key, enabled, model, temperature, max_tokens, system_prompt, updated_at
		 FROM agent_overrides WHERE org_id = $1`, orgID)
	if err != nil {
		return nil, fmt.Errorf("storage: list overrides: %w", err)
	}
	defer rows.Close()

	var out []model.Override
	for rows.Next() {
		var o model.Override
		if err := rows.Scan(&o.OrgID, &o.AgentKey, &o.Enabled, &o.Model, &o.Temperature, &o.MaxTokens, &o.SystemPrompt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetOverrideEnabled upserts only the enabled flag of (org, key); any other
// override fields already stored are preserved.
func (db *DB) SetOverrideEnabled(ctx context.Context, orgID uuid.UUID, agentKey string, enabled bool) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO agent_overrides (org_id, agent_key, enabled)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (org_id, agent_key) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()`,
		orgID, agentKey, enabled,
	)
	if err != nil {
		return fmt.Errorf("storage: set override enabled: %w", err)
	}
	return nil
}

// UpsertOverride writes every field of o, including nil ones, replacing any
// existing override for (org, key).
func (db *DB) UpsertOverride(ctx context.Context, o model.Override) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO agent_overrides (org_id, agent_key, enabled, model, temperature, max_tokens, system_prompt)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (org_id, agent_key) DO UPDATE SET
		     enabled = EXCLUDED.enabled,
		     model = EXCLUDED.model,
		     temperature = EXCLUDED.temperature,
		     max_tokens = EXCLUDED.max_tokens,
		     system_prompt = EXCLUDED.system_prompt,
		     updated_at = now()`,
		o.OrgID, o.AgentKey, o.Enabled, o.Model, o.Temperature, o.MaxTokens, o.SystemPrompt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert override: %w", err)
	}
	return nil
}
