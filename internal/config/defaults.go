package config

const (
	defaultConfigPath = "~/.config/dossier/config.toml"
	defaultDataDir    = "~/.local/share/dossier"
	defaultLogDir     = "~/.local/share/dossier/logs"
	defaultAssetDir   = "~/.local/share/dossier/assets"
	defaultAPIBind    = "127.0.0.1:7490"
	defaultLogFormat  = "console"
	defaultLogLevel   = "info"

	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "openai/gpt-5-mini"
	defaultLLMReferer        = "https://github.com/dossier/dossier"
	defaultLLMTitle          = "Dossier"
	defaultLLMTimeoutSeconds = 60

	defaultPeopleDataBaseURL   = "https://api.peopledatalabs.com/v5"
	defaultSerpAPIBaseURL      = "https://serpapi.com/search.json"
	defaultGoogleImagesBaseURL = "https://www.googleapis.com/customsearch/v1"
	defaultApifyBaseURL        = "https://api.apify.com/v2"
	defaultNewsFeedURL         = "https://news.google.com/rss/search"
	defaultProviderTimeout     = 20

	defaultSimilarityTimeoutSeconds = 15
	defaultSimilarityRPS            = 4

	// BackendFilesystem stores assets under paths.asset_dir.
	BackendFilesystem = "filesystem"
	// BackendHTTP uploads assets to an object store endpoint.
	BackendHTTP = "http"

	defaultAssetPublicBaseURL = "http://127.0.0.1:7490/assets"
	defaultAssetMaxDimension  = 1920
	defaultAssetMaxBytes      = 5 * 1024 * 1024
	defaultAssetJPEGQuality   = 90

	defaultMaxCandidates         = 5
	defaultHydrateTopK           = 5
	defaultAdapterTimeout        = 20
	defaultOrchestrationDeadline = 45
	defaultAssetWorkers          = 10
	defaultAssetAttempts         = 3
	defaultAssetBackoffMillis    = 500
	defaultAssetFetchTimeout     = 15
	defaultAssetDeadline         = 60
	defaultFallbackAssetCap      = 5
	defaultVerificationThreshold = 90
	defaultVerifyWorkers         = 4
	defaultRetentionHours        = 24 * 7
	defaultNewsMaxItems          = 10
	defaultPageMetaMaxPages      = 2
	defaultGoogleImagesMax       = 10
)

var defaultApifyActors = map[string]string{
	"instagram": "apify~instagram-profile-scraper",
	"twitter":   "web.harvester~twitter-scraper",
	"linkedin":  "apimaestro~linkedin-profile-detail",
	"tiktok":    "clockworks~tiktok-profile-scraper",
	"facebook":  "lazyscraper~facebook-profile-scraper",
	"youtube":   "pratikdani~youtube-profile-scraper",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	actors := make(map[string]string, len(defaultApifyActors))
	for platform, actor := range defaultApifyActors {
		actors[platform] = actor
	}
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			AssetDir: defaultAssetDir,
			APIBind:  defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		PeopleData: PeopleData{
			BaseURL:        defaultPeopleDataBaseURL,
			TimeoutSeconds: defaultProviderTimeout,
		},
		SerpAPI: SerpAPI{
			BaseURL:        defaultSerpAPIBaseURL,
			TimeoutSeconds: defaultProviderTimeout,
		},
		GoogleImages: GoogleImages{
			BaseURL:    defaultGoogleImagesBaseURL,
			MaxResults: defaultGoogleImagesMax,
		},
		Apify: Apify{
			BaseURL:        defaultApifyBaseURL,
			TimeoutSeconds: defaultProviderTimeout,
			Actors:         actors,
		},
		News: News{
			Enabled:  true,
			FeedURL:  defaultNewsFeedURL,
			MaxItems: defaultNewsMaxItems,
		},
		PageMeta: PageMeta{
			Enabled:  true,
			MaxPages: defaultPageMetaMaxPages,
		},
		Similarity: Similarity{
			TimeoutSeconds:    defaultSimilarityTimeoutSeconds,
			RequestsPerSecond: defaultSimilarityRPS,
		},
		AssetStorage: AssetStorage{
			Backend:       BackendFilesystem,
			PublicBaseURL: defaultAssetPublicBaseURL,
			MaxDimension:  defaultAssetMaxDimension,
			MaxBytes:      defaultAssetMaxBytes,
			JPEGQuality:   defaultAssetJPEGQuality,
		},
		Pipeline: Pipeline{
			MaxCandidates:                defaultMaxCandidates,
			HydrateTopK:                  defaultHydrateTopK,
			SemanticDedup:                true,
			AdapterTimeoutSeconds:        defaultAdapterTimeout,
			OrchestrationDeadlineSeconds: defaultOrchestrationDeadline,
			AssetWorkers:                 defaultAssetWorkers,
			AssetAttempts:                defaultAssetAttempts,
			AssetBackoffMillis:           defaultAssetBackoffMillis,
			AssetFetchTimeoutSeconds:     defaultAssetFetchTimeout,
			AssetDeadlineSeconds:         defaultAssetDeadline,
			FallbackAssetCap:             defaultFallbackAssetCap,
			VerificationThreshold:        defaultVerificationThreshold,
			VerifyWorkers:                defaultVerifyWorkers,
			RetentionHours:               defaultRetentionHours,
		},
	}
}
