package answer

import (
	"fmt"
	"log/slog"

	"dossier/internal/config"
	"dossier/internal/services/llm"
	"dossier/internal/store"
)

// FromConfig builds a Service backed by the configured language model.
func FromConfig(cfg *config.Config, profiles *store.Store, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("answer: config required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("answer: profile store required")
	}
	llmCfg := cfg.GetLLM()
	model := llm.NewClient(llm.Config{
		APIKey:         llmCfg.APIKey,
		BaseURL:        llmCfg.BaseURL,
		Model:          llmCfg.Model,
		Referer:        llmCfg.Referer,
		Title:          llmCfg.Title,
		TimeoutSeconds: llmCfg.TimeoutSeconds,
	})
	return New(model, profiles, logger), nil
}
