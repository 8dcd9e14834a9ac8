package pipeline

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dossier/internal/assets"
	"dossier/internal/candidates"
	"dossier/internal/config"
	"dossier/internal/discovery"
	"dossier/internal/enrichment"
	"dossier/internal/imaging"
	"dossier/internal/logging"
	"dossier/internal/profilecache"
	"dossier/internal/services/apify"
	"dossier/internal/services/llm"
	"dossier/internal/services/peopledata"
	"dossier/internal/services/serpapi"
	"dossier/internal/services/similarity"
	"dossier/internal/store"
	"dossier/internal/verify"
)

// FromConfig assembles a Service from configuration. Providers without
// credentials are left out; the stages that would have used them degrade.
func FromConfig(cfg *config.Config, profiles *store.Store, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline: config required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("pipeline: profile store required")
	}
	if logger == nil {
		logger = logging.NewNop()
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

	people := newPeopleData(cfg, logger)
	search := newSerpAPI(cfg, logger)
	scraper := newApify(cfg, logger)
	comparer := newSimilarity(cfg, logger)

	fetcher := assets.NewFetcher(cfg.AssetFetchTimeout(),
		assets.WithRetry(cfg.Pipeline.AssetAttempts, cfg.AssetBackoff()),
	)

	var verifier *verify.Verifier
	if comparer != nil {
		verifier = verify.New(comparer, logger,
			verify.WithThreshold(cfg.Pipeline.VerificationThreshold),
			verify.WithWorkers(cfg.Pipeline.VerifyWorkers),
			verify.WithLoader(fetcher),
		)
	}

	resolver := newResolver(cfg, model, people, search, verifier, logger)
	enricher := newEnricher(cfg, model, people, scraper, logger)

	objects, err := newObjectStore(cfg)
	if err != nil {
		return nil, err
	}
	assetOpts := []assets.Option{
		assets.WithNormalize(imaging.Options{
			MaxDimension: cfg.AssetStorage.MaxDimension,
			MaxBytes:     cfg.AssetStorage.MaxBytes,
			Quality:      cfg.AssetStorage.JPEGQuality,
		}),
		assets.WithWorkers(cfg.Pipeline.AssetWorkers),
		assets.WithDeadline(cfg.AssetDeadline()),
		assets.WithFallbackCap(cfg.Pipeline.FallbackAssetCap),
	}
	google := assets.NewGoogleImages(
		cfg.GoogleImages.APIKey,
		cfg.GoogleImages.SearchEngineID,
		cfg.GoogleImages.BaseURL,
		cfg.GoogleImages.MaxResults,
		cfg.AssetFetchTimeout(),
	)
	if google.Configured() {
		assetOpts = append(assetOpts, assets.WithFallback(google))
	}
	if verifier != nil {
		assetOpts = append(assetOpts, assets.WithFilter(verifier))
	}
	processor := assets.NewPipeline(fetcher, objects, logger, assetOpts...)

	return New(profilecache.New(profiles, logger), enricher, logger,
		WithResolver(resolver),
		WithAssets(processor),
	), nil
}

func newResolver(cfg *config.Config, model *llm.Client, people *peopledata.Client, search *serpapi.Client, verifier *verify.Verifier, logger *slog.Logger) *candidates.Resolver {
	var sources []discovery.Source
	if people != nil {
		sources = append(sources, discovery.NewPeopleData(people))
	}
	if search != nil {
		sources = append(sources, discovery.NewWebSearch(search, 0))
	}
	if model.Configured() {
		sources = append(sources, discovery.NewLanguageModel(model))
	}

	opts := []candidates.Option{
		candidates.WithLimits(cfg.Pipeline.MaxCandidates, cfg.Pipeline.HydrateTopK),
	}
	if cfg.Pipeline.SemanticDedup && model.Configured() {
		opts = append(opts, candidates.WithSemanticDeduper(candidates.NewModelDeduper(model)))
	}
	if search != nil {
		opts = append(opts, candidates.WithImageSearcher(search))
	}
	if verifier != nil {
		opts = append(opts, candidates.WithRanker(verifier))
	}
	return candidates.NewResolver(discovery.NewChain(logger, sources...), logger, opts...)
}

func newEnricher(cfg *config.Config, model *llm.Client, people *peopledata.Client, scraper *apify.Client, logger *slog.Logger) *enrichment.Orchestrator {
	var primary enrichment.Adapter
	if model.Configured() {
		primary = enrichment.NewWebSummary(model)
	}

	var adapters []enrichment.Adapter
	if people != nil {
		adapters = append(adapters, enrichment.NewPeopleData(people))
	}
	if cfg.News.Enabled {
		adapters = append(adapters, enrichment.NewNews(cfg.News.FeedURL, cfg.News.MaxItems, cfg.AdapterTimeout()))
	}
	if cfg.PageMeta.Enabled {
		adapters = append(adapters, enrichment.NewPageMeta(cfg.PageMeta.MaxPages, cfg.AdapterTimeout()))
	}

	opts := []enrichment.Option{
		enrichment.WithAdapters(adapters...),
		enrichment.WithTimeouts(cfg.AdapterTimeout(), cfg.OrchestrationDeadline()),
	}
	if scraper != nil {
		opts = append(opts, enrichment.WithScraper(scraper))
	}
	return enrichment.New(primary, logger, opts...)
}

func newObjectStore(cfg *config.Config) (assets.Store, error) {
	switch cfg.AssetStorage.Backend {
	case config.BackendHTTP:
		return assets.NewHTTPStore(
			cfg.AssetStorage.UploadURL,
			cfg.AssetStorage.PublicBaseURL,
			cfg.AssetStorage.UploadToken,
			cfg.AssetFetchTimeout(),
		)
	default:
		return assets.NewFileStore(cfg.Paths.AssetDir, cfg.AssetStorage.PublicBaseURL)
	}
}

func newPeopleData(cfg *config.Config, logger *slog.Logger) *peopledata.Client {
	if strings.TrimSpace(cfg.PeopleData.APIKey) == "" {
		return nil
	}
	client, err := peopledata.New(cfg.PeopleData.APIKey, cfg.PeopleData.BaseURL, seconds(cfg.PeopleData.TimeoutSeconds))
	if err != nil {
		providerDisabled(logger, "people_data", err)
		return nil
	}
	return client
}

func newSerpAPI(cfg *config.Config, logger *slog.Logger) *serpapi.Client {
	if strings.TrimSpace(cfg.SerpAPI.APIKey) == "" {
		return nil
	}
	client, err := serpapi.New(cfg.SerpAPI.APIKey, cfg.SerpAPI.BaseURL, seconds(cfg.SerpAPI.TimeoutSeconds))
	if err != nil {
		providerDisabled(logger, "serpapi", err)
		return nil
	}
	return client
}

func newApify(cfg *config.Config, logger *slog.Logger) *apify.Client {
	if strings.TrimSpace(cfg.Apify.APIToken) == "" {
		return nil
	}
	client, err := apify.New(cfg.Apify.APIToken, cfg.Apify.BaseURL, seconds(cfg.Apify.TimeoutSeconds), cfg.Apify.Actors)
	if err != nil {
		providerDisabled(logger, "apify", err)
		return nil
	}
	return client
}

func newSimilarity(cfg *config.Config, logger *slog.Logger) *similarity.Client {
	if strings.TrimSpace(cfg.Similarity.BaseURL) == "" {
		return nil
	}
	client, err := similarity.New(cfg.Similarity.BaseURL, cfg.Similarity.APIKey,
		seconds(cfg.Similarity.TimeoutSeconds), cfg.Similarity.RequestsPerSecond)
	if err != nil {
		providerDisabled(logger, "similarity", err)
		return nil
	}
	return client
}

func providerDisabled(logger *slog.Logger, provider string, err error) {
	logging.WarnWithContext(logger, "provider disabled", "provider_disabled",
		logging.String(logging.FieldSource, provider),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the provider section of the config file"),
		logging.String(logging.FieldImpact, "stages using this provider degrade"),
	)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
