package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeProviders()
	c.normalizeSimilarity()
	c.normalizeAssetStorage()
	c.normalizePipeline()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AssetDir) == "" {
		c.Paths.AssetDir = defaultAssetDir
	}
	if c.Paths.AssetDir, err = expandPath(c.Paths.AssetDir); err != nil {
		return fmt.Errorf("paths.asset_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = envFallback(c.Paths.APIToken, "DOSSIER_API_TOKEN")
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = envFallback(c.LLM.APIKey, "LLM_API_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY")
}

func (c *Config) normalizeProviders() {
	c.PeopleData.APIKey = envFallback(c.PeopleData.APIKey, "PDL_API_KEY")
	c.PeopleData.BaseURL = defaultString(c.PeopleData.BaseURL, defaultPeopleDataBaseURL)
	if c.PeopleData.TimeoutSeconds <= 0 {
		c.PeopleData.TimeoutSeconds = defaultProviderTimeout
	}

	c.SerpAPI.APIKey = envFallback(c.SerpAPI.APIKey, "SERPAPI_API_KEY", "SERP_API_KEY")
	c.SerpAPI.BaseURL = defaultString(c.SerpAPI.BaseURL, defaultSerpAPIBaseURL)
	if c.SerpAPI.TimeoutSeconds <= 0 {
		c.SerpAPI.TimeoutSeconds = defaultProviderTimeout
	}

	c.GoogleImages.APIKey = envFallback(c.GoogleImages.APIKey, "GOOGLE_API_KEY")
	c.GoogleImages.SearchEngineID = envFallback(c.GoogleImages.SearchEngineID, "GOOGLE_CSE_ID")
	c.GoogleImages.BaseURL = defaultString(c.GoogleImages.BaseURL, defaultGoogleImagesBaseURL)
	if c.GoogleImages.MaxResults <= 0 || c.GoogleImages.MaxResults > 10 {
		c.GoogleImages.MaxResults = defaultGoogleImagesMax
	}

	c.Apify.APIToken = envFallback(c.Apify.APIToken, "APIFY_API_TOKEN", "APIFY_API_KEY")
	c.Apify.BaseURL = defaultString(c.Apify.BaseURL, defaultApifyBaseURL)
	if c.Apify.TimeoutSeconds <= 0 {
		c.Apify.TimeoutSeconds = defaultProviderTimeout
	}
	actors := make(map[string]string, len(defaultApifyActors))
	for platform, actor := range defaultApifyActors {
		actors[platform] = actor
	}
	for platform, actor := range c.Apify.Actors {
		platform = strings.ToLower(strings.TrimSpace(platform))
		actor = strings.TrimSpace(actor)
		if platform == "" {
			continue
		}
		if actor == "" {
			delete(actors, platform)
			continue
		}
		actors[platform] = actor
	}
	c.Apify.Actors = actors

	c.News.FeedURL = defaultString(c.News.FeedURL, defaultNewsFeedURL)
	if c.News.MaxItems <= 0 {
		c.News.MaxItems = defaultNewsMaxItems
	}
	if c.PageMeta.MaxPages <= 0 {
		c.PageMeta.MaxPages = defaultPageMetaMaxPages
	}
}

func (c *Config) normalizeSimilarity() {
	c.Similarity.BaseURL = envFallback(c.Similarity.BaseURL, "SIMILARITY_BASE_URL")
	c.Similarity.APIKey = envFallback(c.Similarity.APIKey, "SIMILARITY_API_KEY")
	if c.Similarity.TimeoutSeconds <= 0 {
		c.Similarity.TimeoutSeconds = defaultSimilarityTimeoutSeconds
	}
	if c.Similarity.RequestsPerSecond <= 0 {
		c.Similarity.RequestsPerSecond = defaultSimilarityRPS
	}
}

func (c *Config) normalizeAssetStorage() {
	c.AssetStorage.Backend = strings.ToLower(strings.TrimSpace(c.AssetStorage.Backend))
	if c.AssetStorage.Backend == "" {
		c.AssetStorage.Backend = BackendFilesystem
	}
	c.AssetStorage.PublicBaseURL = strings.TrimRight(defaultString(c.AssetStorage.PublicBaseURL, defaultAssetPublicBaseURL), "/")
	c.AssetStorage.UploadURL = strings.TrimRight(strings.TrimSpace(c.AssetStorage.UploadURL), "/")
	c.AssetStorage.UploadToken = envFallback(c.AssetStorage.UploadToken, "ASSET_UPLOAD_TOKEN")
	if c.AssetStorage.MaxDimension <= 0 {
		c.AssetStorage.MaxDimension = defaultAssetMaxDimension
	}
	if c.AssetStorage.MaxBytes <= 0 {
		c.AssetStorage.MaxBytes = defaultAssetMaxBytes
	}
	if c.AssetStorage.JPEGQuality <= 0 {
		c.AssetStorage.JPEGQuality = defaultAssetJPEGQuality
	}
}

func (c *Config) normalizePipeline() {
	p := &c.Pipeline
	if p.MaxCandidates <= 0 {
		p.MaxCandidates = defaultMaxCandidates
	}
	if p.HydrateTopK <= 0 {
		p.HydrateTopK = defaultHydrateTopK
	}
	if p.AdapterTimeoutSeconds <= 0 {
		p.AdapterTimeoutSeconds = defaultAdapterTimeout
	}
	if p.OrchestrationDeadlineSeconds <= 0 {
		p.OrchestrationDeadlineSeconds = defaultOrchestrationDeadline
	}
	if p.AssetWorkers <= 0 {
		p.AssetWorkers = defaultAssetWorkers
	}
	if p.AssetAttempts <= 0 {
		p.AssetAttempts = defaultAssetAttempts
	}
	if p.AssetBackoffMillis <= 0 {
		p.AssetBackoffMillis = defaultAssetBackoffMillis
	}
	if p.AssetFetchTimeoutSeconds <= 0 {
		p.AssetFetchTimeoutSeconds = defaultAssetFetchTimeout
	}
	if p.AssetDeadlineSeconds <= 0 {
		p.AssetDeadlineSeconds = defaultAssetDeadline
	}
	if p.FallbackAssetCap <= 0 {
		p.FallbackAssetCap = defaultFallbackAssetCap
	}
	if p.VerificationThreshold == 0 {
		p.VerificationThreshold = defaultVerificationThreshold
	}
	if p.VerifyWorkers <= 0 {
		p.VerifyWorkers = defaultVerifyWorkers
	}
	if p.RetentionHours < 0 {
		p.RetentionHours = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func envFallback(value string, keys ...string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	for _, key := range keys {
		if env, ok := os.LookupEnv(key); ok && strings.TrimSpace(env) != "" {
			return strings.TrimSpace(env)
		}
	}
	return ""
}

func defaultString(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
