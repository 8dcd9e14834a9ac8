package profilecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"dossier/internal/logging"
	"dossier/internal/profile"
	"dossier/internal/services"
)

// Store is the persistence the cache reads and writes through.
type Store interface {
	Get(ctx context.Context, key profile.CacheKey) (*profile.Profile, error)
	Put(ctx context.Context, p *profile.Profile) error
}

// Builder produces the profile for a key. It runs at most once per key at a time.
type Builder func(ctx context.Context) (*profile.Profile, error)

// Outcome describes how a GetOrBuild call was satisfied.
type Outcome struct {
	Profile *profile.Profile
	// Cached is true when the profile came from the store without a build.
	Cached bool
	// Shared is true when this caller joined a build started by another caller.
	Shared bool
}

// Cache provides build coordination on top of the profile store.
type Cache struct {
	store    Store
	logger   *slog.Logger
	inflight singleflight.Group

	mu     sync.Mutex
	active map[profile.CacheKey]int
}

// New creates a cache backed by store.
func New(store Store, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		logger: logging.NewComponentLogger(logger, "profilecache"),
		active: make(map[profile.CacheKey]int),
	}
}

// Lookup returns the stored profile for key. Storage failures are logged and
// reported as a miss.
func (c *Cache) Lookup(ctx context.Context, key profile.CacheKey) (*profile.Profile, bool) {
	if strings.TrimSpace(string(key)) == "" || c.store == nil {
		return nil, false
	}
	p, err := c.store.Get(ctx, key)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "profile lookup failed",
			"cache_lookup_failed",
			logging.String(logging.FieldCacheKey, key.String()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the profile database with dossier doctor"),
			logging.String(logging.FieldImpact, "profile will be rebuilt"))
		return nil, false
	}
	if p == nil {
		return nil, false
	}
	return p, true
}

// GetOrBuild returns the stored profile for key, or builds it when absent.
func (c *Cache) GetOrBuild(ctx context.Context, key profile.CacheKey, build Builder) (Outcome, error) {
	if p, ok := c.Lookup(ctx, key); ok {
		c.logger.Debug("profile cache hit", logging.String(logging.FieldCacheKey, key.String()))
		return Outcome{Profile: p, Cached: true}, nil
	}
	return c.run(ctx, key, key.String(), build, true)
}

// Rebuild runs build for key without consulting the store first. Concurrent
// callers for the same key still share one build.
func (c *Cache) Rebuild(ctx context.Context, key profile.CacheKey, build Builder) (Outcome, error) {
	return c.run(ctx, key, key.String(), build, false)
}

// RebuildScoped is Rebuild for builds whose result depends on more than the
// key, such as a reference photo. Only callers with the same key and scope
// share a build; an empty scope behaves like Rebuild.
func (c *Cache) RebuildScoped(ctx context.Context, key profile.CacheKey, scope string, build Builder) (Outcome, error) {
	flight := key.String()
	if scope = strings.TrimSpace(scope); scope != "" {
		flight += "#" + scope
	}
	return c.run(ctx, key, flight, build, false)
}

// InFlight reports whether a build is currently registered for key.
func (c *Cache) InFlight(key profile.CacheKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[key] > 0
}

func (c *Cache) track(key profile.CacheKey, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[key] += delta
	if c.active[key] <= 0 {
		delete(c.active, key)
	}
}

func (c *Cache) run(ctx context.Context, key profile.CacheKey, flight string, build Builder, recheck bool) (Outcome, error) {
	if strings.TrimSpace(string(key)) == "" {
		return Outcome{}, services.Wrap(services.ErrInvalidQuery, "cache", "build", "cache key is empty", nil)
	}
	if build == nil {
		return Outcome{}, errors.New("profilecache: nil builder")
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(flight, func() (any, error) {
		c.track(key, 1)
		defer c.track(key, -1)
		if recheck {
			if p, ok := c.Lookup(buildCtx, key); ok {
				return cachedResult{profile: p}, nil
			}
		}
		return c.buildAndStore(buildCtx, key, build)
	})

	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Outcome{Shared: res.Shared}, res.Err
		}
		switch v := res.Val.(type) {
		case cachedResult:
			return Outcome{Profile: v.profile, Cached: true, Shared: res.Shared}, nil
		case *profile.Profile:
			return Outcome{Profile: v, Shared: res.Shared}, nil
		default:
			return Outcome{}, fmt.Errorf("profilecache: unexpected build result %T", res.Val)
		}
	}
}

type cachedResult struct {
	profile *profile.Profile
}

func (c *Cache) buildAndStore(ctx context.Context, key profile.CacheKey, build Builder) (p *profile.Profile, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = services.Wrap(services.ErrBuildFailure, "cache", "build", fmt.Sprintf("builder panicked: %v", r), nil)
		}
	}()

	logger := logging.WithContext(ctx, c.logger).With(logging.String(logging.FieldCacheKey, key.String()))
	logger.Debug("profile build started")

	p, err = build(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, services.Wrap(services.ErrBuildFailure, "cache", "build", "builder returned no profile", nil)
	}
	p.Key = key

	if c.store != nil {
		if putErr := c.store.Put(ctx, p); putErr != nil {
			logging.WarnWithContext(logger, "profile store write failed",
				"cache_store_failed",
				logging.Error(putErr),
				logging.String(logging.FieldErrorHint, "check disk space and database permissions"),
				logging.String(logging.FieldImpact, "profile returned but not cached"))
		}
	}
	logger.Info("profile build completed",
		logging.String(logging.FieldEventType, "profile_built"),
		logging.Int("sources", len(p.Sources)),
		logging.Bool("partial", p.Partial()))
	return p, nil
}
