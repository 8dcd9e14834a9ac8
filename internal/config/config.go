package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	AssetDir string `toml:"asset_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// LLM contains the OpenAI-compatible chat completion settings shared by the
// web summary adapter, LLM candidate discovery, and semantic deduplication.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PeopleData contains People Data Labs settings for structured search and enrichment.
type PeopleData struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// SerpAPI contains Google search (organic + images) settings.
type SerpAPI struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// GoogleImages contains Custom Search settings for fallback image discovery.
type GoogleImages struct {
	APIKey         string `toml:"api_key"`
	SearchEngineID string `toml:"search_engine_id"`
	BaseURL        string `toml:"base_url"`
	MaxResults     int    `toml:"max_results"`
}

// Apify contains settings for the per-platform profile scrapers.
type Apify struct {
	APIToken       string            `toml:"api_token"`
	BaseURL        string            `toml:"base_url"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	Actors         map[string]string `toml:"actors"`
}

// News contains settings for the news mention feed adapter.
type News struct {
	Enabled  bool   `toml:"enabled"`
	FeedURL  string `toml:"feed_url"`
	MaxItems int    `toml:"max_items"`
}

// PageMeta contains settings for the profile page metadata adapter.
type PageMeta struct {
	Enabled  bool `toml:"enabled"`
	MaxPages int  `toml:"max_pages"`
}

// Similarity contains settings for the face similarity service.
type Similarity struct {
	BaseURL           string  `toml:"base_url"`
	APIKey            string  `toml:"api_key"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// AssetStorage contains settings for durable image storage.
type AssetStorage struct {
	// Backend is "filesystem" (content-addressed files under paths.asset_dir)
	// or "http" (PUT to an object store endpoint).
	Backend       string `toml:"backend"`
	PublicBaseURL string `toml:"public_base_url"`
	UploadURL     string `toml:"upload_url"`
	UploadToken   string `toml:"upload_token"`
	MaxDimension  int    `toml:"max_dimension"`
	MaxBytes      int    `toml:"max_bytes"`
	JPEGQuality   int    `toml:"jpeg_quality"`
}

// Pipeline contains timing, fan-out, and threshold settings for profile builds.
type Pipeline struct {
	MaxCandidates                int     `toml:"max_candidates"`
	HydrateTopK                  int     `toml:"hydrate_top_k"`
	SemanticDedup                bool    `toml:"semantic_dedup"`
	AdapterTimeoutSeconds        int     `toml:"adapter_timeout_seconds"`
	OrchestrationDeadlineSeconds int     `toml:"orchestration_deadline_seconds"`
	AssetWorkers                 int     `toml:"asset_workers"`
	AssetAttempts                int     `toml:"asset_attempts"`
	AssetBackoffMillis           int     `toml:"asset_backoff_millis"`
	AssetFetchTimeoutSeconds     int     `toml:"asset_fetch_timeout_seconds"`
	AssetDeadlineSeconds         int     `toml:"asset_deadline_seconds"`
	FallbackAssetCap             int     `toml:"fallback_asset_cap"`
	VerificationThreshold        float64 `toml:"verification_threshold"`
	VerifyWorkers                int     `toml:"verify_workers"`
	RetentionHours               int     `toml:"retention_hours"`
}

// Config encapsulates all configuration values for dossier.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and asset directories plus the API bind address
//   - Logging: log format and level
//   - LLM: web summary, candidate discovery fallback, semantic dedup
//   - PeopleData / SerpAPI / GoogleImages / Apify / News / PageMeta: enrichment providers
//   - Similarity: identity verification provider
//   - AssetStorage: durable image storage and normalization bounds
//   - Pipeline: timeouts, worker pools, caps, and thresholds
type Config struct {
	Paths        Paths        `toml:"paths"`
	Logging      Logging      `toml:"logging"`
	LLM          LLM          `toml:"llm"`
	PeopleData   PeopleData   `toml:"people_data"`
	SerpAPI      SerpAPI      `toml:"serpapi"`
	GoogleImages GoogleImages `toml:"google_images"`
	Apify        Apify        `toml:"apify"`
	News         News         `toml:"news"`
	PageMeta     PageMeta     `toml:"page_meta"`
	Similarity   Similarity   `toml:"similarity"`
	AssetStorage AssetStorage `toml:"asset_storage"`
	Pipeline     Pipeline     `toml:"pipeline"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dossier.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, log, and asset directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.AssetStorage.Backend == BackendFilesystem {
		dirs = append(dirs, c.Paths.AssetDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite profile store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "profiles.db")
}

// AdapterTimeout returns the per-adapter enrichment timeout.
func (c *Config) AdapterTimeout() time.Duration {
	return time.Duration(c.Pipeline.AdapterTimeoutSeconds) * time.Second
}

// OrchestrationDeadline returns the overall enrichment deadline.
func (c *Config) OrchestrationDeadline() time.Duration {
	return time.Duration(c.Pipeline.OrchestrationDeadlineSeconds) * time.Second
}

// AssetDeadline returns the aggregate deadline for the asset durability stage.
func (c *Config) AssetDeadline() time.Duration {
	return time.Duration(c.Pipeline.AssetDeadlineSeconds) * time.Second
}

// AssetFetchTimeout returns the time bound for a single asset fetch attempt.
func (c *Config) AssetFetchTimeout() time.Duration {
	return time.Duration(c.Pipeline.AssetFetchTimeoutSeconds) * time.Second
}

// AssetBackoff returns the base delay between asset fetch attempts.
func (c *Config) AssetBackoff() time.Duration {
	return time.Duration(c.Pipeline.AssetBackoffMillis) * time.Millisecond
}

// Retention returns how long stored profiles are kept before pruning.
// Zero disables pruning.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Pipeline.RetentionHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the connection settings handed to the LLM client.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the shared LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
