package preflight

import (
	"fmt"
	"strings"

	"dossier/internal/config"
)

// ProviderStatus reports which optional enrichment providers are configured.
// It makes no network calls; a missing key disables the provider rather than
// failing the build.
func ProviderStatus(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		keyStatus("People Data Labs", cfg.PeopleData.APIKey, "structured search and enrichment skipped"),
		keyStatus("SerpAPI", cfg.SerpAPI.APIKey, "web search discovery and candidate images skipped"),
		googleImagesStatus(cfg.GoogleImages),
		keyStatus("Apify", cfg.Apify.APIToken, "social profile scraping skipped"),
		toggleStatus("News feed", cfg.News.Enabled, cfg.News.FeedURL),
		toggleStatus("Page metadata", cfg.PageMeta.Enabled, fmt.Sprintf("up to %d pages", cfg.PageMeta.MaxPages)),
		assetStorageStatus(cfg),
	}
}

func keyStatus(name, key, impact string) Result {
	if strings.TrimSpace(key) == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled (" + impact + ")"}
	}
	return Result{Name: name, Passed: true, Detail: "Configured"}
}

func googleImagesStatus(cfg config.GoogleImages) Result {
	const name = "Google Images"
	key := strings.TrimSpace(cfg.APIKey)
	cx := strings.TrimSpace(cfg.SearchEngineID)
	switch {
	case key == "" && cx == "":
		return Result{Name: name, Passed: true, Detail: "Disabled (fallback image search skipped)"}
	case key == "":
		return Result{Name: name, Detail: "Missing API key"}
	case cx == "":
		return Result{Name: name, Detail: "Missing search engine id"}
	default:
		return Result{Name: name, Passed: true, Detail: "Configured"}
	}
}

func toggleStatus(name string, enabled bool, detail string) Result {
	if !enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return Result{Name: name, Passed: true, Detail: "Enabled (" + detail + ")"}
}

func assetStorageStatus(cfg *config.Config) Result {
	const name = "Asset storage"
	switch cfg.AssetStorage.Backend {
	case config.BackendHTTP:
		if strings.TrimSpace(cfg.AssetStorage.UploadURL) == "" {
			return Result{Name: name, Detail: "http backend without upload_url"}
		}
		return Result{Name: name, Passed: true, Detail: "http " + cfg.AssetStorage.UploadURL}
	default:
		return Result{Name: name, Passed: true, Detail: "filesystem " + cfg.Paths.AssetDir}
	}
}

func similarityConfigured(cfg *config.Config) bool {
	return strings.TrimSpace(cfg.Similarity.BaseURL) != ""
}
