package agents

import "github.com/lexdesk/lexagent/internal/model"

// Merge layers overrides on top of the catalog and returns one effective
// config per catalog entry, in catalog order. Overrides whose key is not in
// the catalog are ignored. Merge has no side effects.
func Merge(catalog []model.CatalogEntry, overrides []model.Override) []model.AgentConfig {
	byKey := make(map[string]int, len(catalog))
	out := make([]model.AgentConfig, 0, len(catalog))
	for _, e := range catalog {
		byKey[e.Key] = len(out)
		out = append(out, fromCatalog(e))
	}

	for _, o := range overrides {
		i, ok := byKey[o.AgentKey]
		if !ok {
			continue
		}
		applyOverride(&out[i], o)
	}
	return out
}

func fromCatalog(e model.CatalogEntry) model.AgentConfig {
	cfg := model.AgentConfig{
		Key:          e.Key,
		Name:         e.Name,
		Enabled:      e.DefaultEnabled,
		Model:        e.DefaultModel,
		Temperature:  model.DefaultTemperature,
		SystemPrompt: e.SystemPrompt,
	}
	if cfg.Model == "" {
		cfg.Model = model.DefaultModel
	}
	if e.DefaultParams.Temperature != nil {
		cfg.Temperature = *e.DefaultParams.Temperature
	}
	if e.DefaultParams.MaxTokens != nil {
		v := *e.DefaultParams.MaxTokens
		cfg.MaxTokens = &v
	}
	return cfg
}

func applyOverride(cfg *model.AgentConfig, o model.Override) {
	if o.Enabled != nil {
		cfg.Enabled = *o.Enabled
	}
	if o.Model != nil {
		cfg.Model = *o.Model
	}
	if o.Temperature != nil {
		cfg.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil {
		v := *o.MaxTokens
		cfg.MaxTokens = &v
	}
	if o.SystemPrompt != nil {
		cfg.SystemPrompt = o.SystemPrompt
	}
}
