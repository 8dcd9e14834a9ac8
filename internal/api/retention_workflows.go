package api

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"dossier/internal/assets"
	"dossier/internal/logging"
)

// orphanGrace keeps freshly written objects out of orphan cleanup while the
// profile that references them is still being stored.
const orphanGrace = time.Hour

// RetentionStore is the profile storage a retention sweep needs.
type RetentionStore interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	AssetURLs(ctx context.Context) ([]string, error)
}

// PruneRequest describes one retention sweep.
type PruneRequest struct {
	Store RetentionStore
	// OlderThan removes profiles not updated within this window. Zero skips
	// profile pruning and only cleans the asset directory.
	OlderThan time.Duration
	// AssetDir is the filesystem asset root; empty when assets live remotely.
	AssetDir string
	Now      func() time.Time
	Logger   *slog.Logger
}

// PruneResult reports what a sweep removed.
type PruneResult struct {
	Profiles int64
	Temp     assets.CleanResult
	Orphaned assets.CleanResult
}

// Response converts the result to its API representation.
func (r PruneResult) Response() PruneResponse {
	return PruneResponse{Profiles: r.Profiles, Assets: len(r.Orphaned.Removed)}
}

// PruneProfiles applies the retention policy used by `cache prune` and the
// server's background sweep.
func PruneProfiles(ctx context.Context, req PruneRequest) (PruneResult, error) {
	if req.Store == nil {
		return PruneResult{}, errors.New("profile store is required")
	}
	now := time.Now
	if req.Now != nil {
		now = req.Now
	}
	logger := req.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	var result PruneResult
	if req.OlderThan > 0 {
		removed, err := req.Store.Prune(ctx, now().Add(-req.OlderThan))
		if err != nil {
			return result, err
		}
		result.Profiles = removed
	}

	root := strings.TrimSpace(req.AssetDir)
	if root == "" {
		return result, nil
	}
	result.Temp = assets.CleanStale(ctx, root, orphanGrace, logger)

	urls, err := req.Store.AssetURLs(ctx)
	if err != nil {
		return result, err
	}
	referenced := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if rel := assets.ReferencedPath(u); rel != "" {
			referenced[rel] = struct{}{}
		}
	}
	result.Orphaned = assets.CleanOrphaned(ctx, root, referenced, orphanGrace, logger)
	return result, nil
}
