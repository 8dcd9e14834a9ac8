package preflight

import (
	"context"

	"dossier/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Network checks only run for providers that are configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	if cfg.AssetStorage.Backend == config.BackendFilesystem {
		results = append(results, CheckDirectoryAccess("Asset directory", cfg.Paths.AssetDir))
	}
	results = append(results, CheckStore(ctx, cfg.DatabasePath()))

	results = append(results, CheckLLM(ctx, "Language model", cfg.GetLLM()))
	if similarityConfigured(cfg) {
		results = append(results, CheckEndpoint(ctx, "Face similarity", cfg.Similarity.BaseURL))
	} else {
		results = append(results, Result{Name: "Face similarity", Passed: true, Detail: "Disabled (candidates are not verified)"})
	}

	results = append(results, ProviderStatus(cfg)...)
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
