package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lexdesk/lexagent/internal/model"
)

// ListCatalog returns every catalog entry ordered by creation time, then key.
func (db *DB) ListCatalog(ctx context.Context) ([]model.CatalogEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT key, name, default_enabled, default_model, default_params, system_prompt, created_at
		 FROM agent_catalog ORDER BY created_at, key`)
	if err != nil {
		return nil, fmt.Errorf("storage: list catalog: %w", err)
	}
	defer rows.Close()

	var out []model.CatalogEntry
	for rows.Next() {
		var (
			e      model.CatalogEntry
			params []byte
		)
		if err := rows.Scan(&e.Key, &e.Name, &e.DefaultEnabled, &e.DefaultModel, &params, &e.SystemPrompt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan catalog entry: %w", err)
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &e.DefaultParams); err != nil {
				return nil, fmt.Errorf("storage: decode default_params for %s: %w", e.Key, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertCatalogEntries adds entries whose key is not yet present and leaves
// existing ones untouched. Returns how many rows were inserted.
func (db *DB) InsertCatalogEntries(ctx context.Context, entries []model.CatalogEntry) (int, error) {
	inserted := 0
	for _, e := range entries {
		params, err := json.Marshal(e.DefaultParams)
		if err != nil {
			return inserted, fmt.Errorf("storage: marshal default_params for %s: %w", e.Key, err)
		}
		modelName := e.DefaultModel
		if modelName == "" {
			modelName = model.DefaultModel
		}
		tag, err := db.pool.Exec(ctx,
			`INSERT INTO agent_catalog (key, name, default_enabled, default_model, default_params, system_prompt)
			 VALUES ($1, $2, $3, $4, $5::jsonb, $6)
			 ON CONFLICT (key) DO NOTHING`,
			e.Key, e.Name, e.DefaultEnabled, modelName, params, e.SystemPrompt,
		)
		if err != nil {
			return inserted, fmt.Errorf("storage: insert catalog entry %s: %w", e.Key, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
