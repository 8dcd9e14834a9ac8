package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateAssetStorage(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateSimilarity(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("llm.api_key is required. Set LLM_API_KEY env var or edit %s (create with 'dossier config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateAssetStorage() error {
	switch c.AssetStorage.Backend {
	case BackendFilesystem:
		if strings.TrimSpace(c.Paths.AssetDir) == "" {
			return errors.New("paths.asset_dir must be set when asset_storage.backend is filesystem")
		}
	case BackendHTTP:
		if c.AssetStorage.UploadURL == "" {
			return errors.New("asset_storage.upload_url must be set when asset_storage.backend is http")
		}
	default:
		return fmt.Errorf("asset_storage.backend must be %q or %q, got %q", BackendFilesystem, BackendHTTP, c.AssetStorage.Backend)
	}
	if c.AssetStorage.JPEGQuality < 1 || c.AssetStorage.JPEGQuality > 100 {
		return errors.New("asset_storage.jpeg_quality must be between 1 and 100")
	}
	if c.AssetStorage.MaxDimension < 64 {
		return errors.New("asset_storage.max_dimension must be at least 64")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.VerificationThreshold < 0 || p.VerificationThreshold > 100 {
		return errors.New("pipeline.verification_threshold must be between 0 and 100")
	}
	if p.HydrateTopK > p.MaxCandidates {
		return fmt.Errorf("pipeline.hydrate_top_k (%d) cannot exceed pipeline.max_candidates (%d)", p.HydrateTopK, p.MaxCandidates)
	}
	if p.AdapterTimeoutSeconds > p.OrchestrationDeadlineSeconds {
		return fmt.Errorf("pipeline.adapter_timeout_seconds (%d) cannot exceed pipeline.orchestration_deadline_seconds (%d)",
			p.AdapterTimeoutSeconds, p.OrchestrationDeadlineSeconds)
	}
	if p.AssetWorkers > 64 {
		return errors.New("pipeline.asset_workers must be 64 or fewer")
	}
	return nil
}

func (c *Config) validateSimilarity() error {
	base := strings.TrimSpace(c.Similarity.BaseURL)
	if base == "" {
		return nil
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("similarity.base_url must be an http(s) URL, got %q", base)
	}
	return nil
}
