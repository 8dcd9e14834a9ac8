package testsupport

import (
	"path/filepath"
	"testing"

	"dossier/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Provider credentials are left empty so no adapter reaches the network unless
// a test points it at an httptest server.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.LLM.APIKey = "test"
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.AssetDir = filepath.Join(base, "assets")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.News.Enabled = false
	cfgVal.PageMeta.Enabled = false
	cfgVal.Pipeline.AssetBackoffMillis = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLLM points the LLM client at baseURL.
func WithLLM(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = baseURL
	}
}

// WithSimilarity points the face similarity client at baseURL.
func WithSimilarity(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Similarity.BaseURL = baseURL
	}
}

// WithPeopleData enables the People Data Labs adapters against baseURL.
func WithPeopleData(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.PeopleData.APIKey = "test"
		b.cfg.PeopleData.BaseURL = baseURL
	}
}

// WithRetention overrides the profile retention window.
func WithRetention(hours int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.RetentionHours = hours
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
