// Package candidates turns an ambiguous query into a short, ranked list of
// people to choose from.
package candidates

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"dossier/internal/discovery"
	"dossier/internal/logging"
	"dossier/internal/profile"
	"dossier/internal/query"
	"dossier/internal/services"
	"dossier/internal/services/serpapi"
	"dossier/internal/verify"
)

const (
	defaultMaxCandidates = 5
	defaultHydrateTopK   = 5
	hydrateWorkers       = 5
)

// Discoverer produces raw candidates.
type Discoverer interface {
	FindCandidates(ctx context.Context, q profile.Query) ([]profile.Candidate, error)
}

// Ranker scores candidates against a reference photo.
type Ranker interface {
	Rank(ctx context.Context, reference []byte, candidates []profile.Candidate) ([]profile.Candidate, error)
}

// ImageSearcher finds photos of a person by text query.
type ImageSearcher interface {
	Images(ctx context.Context, query string, limit int) ([]serpapi.ImageResult, error)
}

// Resolver runs discovery, deduplication, hydration, and ranking.
type Resolver struct {
	discoverer Discoverer
	rule       Deduper
	semantic   Deduper
	images     ImageSearcher
	ranker     Ranker
	max        int
	hydrateK   int
	logger     *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSemanticDeduper adds a second, model-backed dedup pass for
// unstructured sources.
func WithSemanticDeduper(d Deduper) Option {
	return func(r *Resolver) { r.semantic = d }
}

// WithImageSearcher enables image hydration for candidates without a photo.
func WithImageSearcher(s ImageSearcher) Option {
	return func(r *Resolver) { r.images = s }
}

// WithRanker enables reference photo ranking.
func WithRanker(ranker Ranker) Option {
	return func(r *Resolver) { r.ranker = ranker }
}

// WithLimits sets the result cap and the hydration depth.
func WithLimits(maxCandidates, hydrateTopK int) Option {
	return func(r *Resolver) {
		if maxCandidates > 0 {
			r.max = maxCandidates
		}
		if hydrateTopK >= 0 {
			r.hydrateK = hydrateTopK
		}
	}
}

// NewResolver builds a resolver around a discovery source.
func NewResolver(discoverer Discoverer, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		discoverer: discoverer,
		rule:       NewRuleDeduper(),
		max:        defaultMaxCandidates,
		hydrateK:   defaultHydrateTopK,
		logger:     logging.NewComponentLogger(logger, "candidates"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns at most the configured number of candidates with ranks
// 1..N. Only an invalid query is an error: every later failure degrades to
// the best list obtained so far, in discovery order with zero scores.
func (r *Resolver) Resolve(ctx context.Context, q profile.Query, reference []byte) ([]profile.Candidate, error) {
	key, err := query.Normalize(q)
	if err != nil {
		return nil, err
	}
	ctx = services.WithStage(services.WithCacheKey(ctx, key.String()), "candidates")
	logger := logging.WithContext(ctx, r.logger)

	raw, err := r.discoverer.FindCandidates(ctx, q)
	if err != nil {
		logging.WarnWithContext(logger, "candidate discovery unavailable", "discovery_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no candidates returned"),
			logging.String(logging.FieldErrorHint, "check discovery provider credentials"),
		)
		return []profile.Candidate{}, nil
	}
	if len(raw) == 0 {
		return []profile.Candidate{}, nil
	}

	list := r.dedup(ctx, logger, raw)
	if len(list) > r.max {
		list = list[:r.max]
	}
	list = unranked(list)

	r.hydrate(ctx, logger, list)

	if len(reference) == 0 || r.ranker == nil {
		return list, nil
	}
	ranked, err := r.ranker.Rank(ctx, reference, list)
	if err != nil {
		logging.WarnWithContext(logger, "candidate ranking unavailable", "verification_degraded",
			logging.Error(err),
			logging.String(logging.FieldImpact, "candidates returned unranked"),
			logging.String(logging.FieldErrorHint, "check the reference photo and similarity service"),
		)
		return list, nil
	}
	return ranked, nil
}

func (r *Resolver) dedup(ctx context.Context, logger *slog.Logger, raw []profile.Candidate) []profile.Candidate {
	list := raw
	if r.rule != nil {
		if merged, err := r.rule.Dedup(ctx, list); err == nil {
			list = merged
		}
	}
	if r.semantic == nil || structured(list) || len(list) < 2 {
		return list
	}
	merged, err := r.semantic.Dedup(ctx, list)
	if err != nil {
		logging.WarnWithContext(logger, "semantic dedup failed", "dedup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "near-duplicate candidates may remain"),
		)
		return list
	}
	logger.Debug("semantic dedup complete", logging.Int("before", len(list)), logging.Int("after", len(merged)))
	return merged
}

// structured reports whether every candidate came from the people data
// source, whose records are already distinct people.
func structured(list []profile.Candidate) bool {
	for _, c := range list {
		if c.Attribute(discovery.AttrPDLID) == "" {
			return false
		}
	}
	return true
}

// hydrate fills missing photos for the top-K candidates in place. Failures
// leave the candidate without an image.
func (r *Resolver) hydrate(ctx context.Context, logger *slog.Logger, list []profile.Candidate) {
	if r.images == nil || r.hydrateK == 0 {
		return
	}
	limit := min(r.hydrateK, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateWorkers)
	for i := range list[:limit] {
		if strings.TrimSpace(list[i].ImageURL) != "" {
			continue
		}
		g.Go(func() error {
			results, err := r.images.Images(gctx, hydrationQuery(list[i]), 1)
			if err != nil {
				logger.Debug("candidate image lookup failed", logging.String("candidate", list[i].ID), logging.Error(err))
				return nil
			}
			for _, res := range results {
				if url := strings.TrimSpace(res.Original); url != "" {
					list[i].ImageURL = url
					break
				}
				if url := strings.TrimSpace(res.Thumbnail); url != "" {
					list[i].ImageURL = url
					break
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// hydrationQuery is the name plus the employer when the summary has the
// "Title at Company • Location" shape.
func hydrationQuery(c profile.Candidate) string {
	name := strings.TrimPrefix(strings.TrimSpace(c.Name), "@")
	_, rest, ok := strings.Cut(c.Summary, " at ")
	if !ok {
		return name
	}
	company, _, _ := strings.Cut(rest, " • ")
	if company = strings.TrimSpace(company); company == "" {
		return name
	}
	return name + " " + company
}

// unranked copies list with zero scores and ranks in list order.
func unranked(list []profile.Candidate) []profile.Candidate {
	out := slices.Clone(list)
	for i := range out {
		out[i].SimilarityScore = 0
	}
	verify.AssignRanks(out)
	return out
}
