package assets

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dossier/internal/logging"
)

// CleanResult contains the outcome of an asset directory cleanup.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes upload temp files older than maxAge left behind by
// interrupted writes.
func CleanStale(ctx context.Context, root string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	cutoff := time.Now().Add(-maxAge)
	return clean(ctx, root, logger, "stale", func(rel string, info fs.FileInfo) bool {
		return strings.HasPrefix(filepath.Base(rel), tempPrefix) && info.ModTime().Before(cutoff)
	})
}

// CleanOrphaned removes stored objects that no profile references. Objects
// younger than minAge are kept so builds still in flight do not lose files
// they have written but not yet saved.
func CleanOrphaned(ctx context.Context, root string, referenced map[string]struct{}, minAge time.Duration, logger *slog.Logger) CleanResult {
	cutoff := time.Now().Add(-minAge)
	return clean(ctx, root, logger, "orphaned", func(rel string, info fs.FileInfo) bool {
		if !strings.HasPrefix(rel, "sha256/") || strings.HasPrefix(filepath.Base(rel), tempPrefix) {
			return false
		}
		if _, ok := referenced[rel]; ok {
			return false
		}
		return info.ModTime().Before(cutoff)
	})
}

// ReferencedPath maps a durable URL back to its object path, or "" when the
// URL does not point into a content-addressed store.
func ReferencedPath(durableURL string) string {
	idx := strings.LastIndex(durableURL, "/sha256/")
	if idx < 0 {
		return ""
	}
	return durableURL[idx+1:]
}

// Usage reports the number of stored objects and their total size.
func Usage(root string) (count int, size int64, err error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return 0, 0, nil
	}
	err = filepath.WalkDir(filepath.Join(root, "sha256"), func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		count++
		size += info.Size()
		return nil
	})
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	return count, size, err
}

func clean(ctx context.Context, root string, logger *slog.Logger, label string, match func(rel string, info fs.FileInfo) bool) CleanResult {
	result := CleanResult{}
	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}

	var candidates []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != root {
				result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || d.Name() == lockFileName {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if match(filepath.ToSlash(rel), info) {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
	}

	for _, path := range candidates {
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove "+label+" asset file",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "asset_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check asset_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, path)
		if logger != nil {
			logger.Debug("removed "+label+" asset file",
				logging.String("path", path),
				logging.String(logging.FieldEventType, "asset_cleanup"),
			)
		}
	}
	return result
}
