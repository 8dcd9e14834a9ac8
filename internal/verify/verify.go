// Package verify scores images against a reference photo of the person being
// searched for.
//
// Ranking mode orders disambiguation candidates by score and never drops one.
// Filtering mode keeps only assets at or above the threshold. Whenever the
// comparison service or the reference photo is unusable both modes degrade:
// ranking leaves every score at zero in discovery order, filtering lets every
// asset through unverified.
package verify

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"dossier/internal/imaging"
	"dossier/internal/logging"
	"dossier/internal/profile"
	"dossier/internal/services"
)

const (
	defaultThreshold = 90
	defaultWorkers   = 4
	// compareMaxDimension and compareMaxBytes match the comparison service's
	// input limits.
	compareMaxDimension = 1600
	compareMaxBytes     = 5 * 1024 * 1024
)

// Comparer scores two normalized images on a 0..100 scale.
type Comparer interface {
	Compare(ctx context.Context, reference, target []byte) (float64, error)
}

// ImageLoader downloads an image by URL.
type ImageLoader interface {
	Load(ctx context.Context, url string) ([]byte, error)
}

// Target is one image to score. Data takes precedence over URL.
type Target struct {
	ID   string
	URL  string
	Data []byte
}

// Verifier runs similarity comparisons with bounded parallelism.
type Verifier struct {
	comparer  Comparer
	loader    ImageLoader
	threshold float64
	workers   int
	normalize imaging.Options
	logger    *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithThreshold sets the filtering threshold.
func WithThreshold(threshold float64) Option {
	return func(v *Verifier) {
		if threshold > 0 {
			v.threshold = threshold
		}
	}
}

// WithWorkers bounds concurrent comparisons.
func WithWorkers(workers int) Option {
	return func(v *Verifier) {
		if workers > 0 {
			v.workers = workers
		}
	}
}

// WithLoader sets the loader used for targets that only carry a URL.
func WithLoader(loader ImageLoader) Option {
	return func(v *Verifier) { v.loader = loader }
}

// New builds a verifier. A nil comparer yields a verifier that reports
// ErrVerificationUnavailable for every call.
func New(comparer Comparer, logger *slog.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		comparer:  comparer,
		threshold: defaultThreshold,
		workers:   defaultWorkers,
		normalize: imaging.Options{MaxDimension: compareMaxDimension, MaxBytes: compareMaxBytes, Quality: 90},
		logger:    logging.NewComponentLogger(logger, "verify"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Threshold returns the filtering threshold.
func (v *Verifier) Threshold() float64 { return v.threshold }

// Available reports whether a comparison backend is configured.
func (v *Verifier) Available() bool { return v != nil && v.comparer != nil }

// Score compares every target against reference. Outcomes are returned in
// target order; an individual failure sets Err on that outcome only. A
// missing backend or an undecodable reference fails the whole call with
// ErrVerificationUnavailable.
func (v *Verifier) Score(ctx context.Context, reference []byte, targets []Target) ([]profile.VerificationOutcome, error) {
	if !v.Available() {
		return nil, services.Wrap(services.ErrVerificationUnavailable, "verify", "score", "no comparison backend configured", nil)
	}
	ref, err := imaging.Normalize(reference, v.normalize)
	if err != nil {
		return nil, services.Wrap(services.ErrVerificationUnavailable, "verify", "normalize reference", "", err)
	}

	outcomes := make([]profile.VerificationOutcome, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i, target := range targets {
		outcomes[i].ID = target.ID
		g.Go(func() error {
			score, err := v.compareOne(gctx, ref.Data, target)
			outcomes[i].Score = score
			outcomes[i].Err = err
			outcomes[i].Passed = err == nil && score >= v.threshold
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		logging.WarnWithContext(logging.WithContext(ctx, v.logger), "some comparisons failed", "verification_degraded",
			logging.Int("failed", failed),
			logging.Int("total", len(targets)),
			logging.String(logging.FieldImpact, "affected images left unverified"),
			logging.String(logging.FieldErrorHint, "check similarity service health"),
		)
	}
	return outcomes, nil
}

func (v *Verifier) compareOne(ctx context.Context, reference []byte, target Target) (float64, error) {
	data := target.Data
	if len(data) == 0 {
		url := strings.TrimSpace(target.URL)
		if url == "" || v.loader == nil {
			return 0, services.Wrap(services.ErrVerificationUnavailable, "verify", "load target", "no image for "+target.ID, nil)
		}
		loaded, err := v.loader.Load(ctx, url)
		if err != nil {
			return 0, services.Wrap(services.ErrVerificationUnavailable, "verify", "load target", target.ID, err)
		}
		data = loaded
	}
	normalized, err := imaging.Normalize(data, v.normalize)
	if err != nil {
		return 0, services.Wrap(services.ErrVerificationUnavailable, "verify", "normalize target", target.ID, err)
	}
	score, err := v.comparer.Compare(ctx, reference, normalized.Data)
	if err != nil {
		return 0, services.Wrap(services.ErrVerificationUnavailable, "verify", "compare", target.ID, err)
	}
	return score, nil
}

// Rank scores candidates by their image and orders them by descending score,
// ties in discovery order, with ranks 1..N. Candidates without an image or
// whose comparison fails keep score 0. Nothing is dropped.
func (v *Verifier) Rank(ctx context.Context, reference []byte, candidates []profile.Candidate) ([]profile.Candidate, error) {
	targets := make([]Target, len(candidates))
	for i, c := range candidates {
		targets[i] = Target{ID: c.ID, URL: c.ImageURL}
	}
	outcomes, err := v.Score(ctx, reference, targets)
	if err != nil {
		return nil, err
	}
	ranked := slices.Clone(candidates)
	for i := range ranked {
		ranked[i].SimilarityScore = 0
		if outcomes[i].Err == nil {
			ranked[i].SimilarityScore = outcomes[i].Score
		}
	}
	slices.SortStableFunc(ranked, func(a, b profile.Candidate) int {
		return cmp.Compare(b.SimilarityScore, a.SimilarityScore)
	})
	AssignRanks(ranked)
	return ranked, nil
}

// Filter keeps assets scoring at or above the threshold, marking them
// verified with their score, and drops the rest. data holds the normalized
// bytes for each asset by index. An asset whose comparison fails passes
// through unverified. When verification is unavailable every asset passes
// and the error is returned for the caller to log.
func (v *Verifier) Filter(ctx context.Context, reference []byte, assets []profile.Asset, data [][]byte) ([]profile.Asset, []bool, error) {
	keep := make([]bool, len(assets))
	for i := range keep {
		keep[i] = true
	}
	targets := make([]Target, len(assets))
	for i, a := range assets {
		targets[i] = Target{ID: a.OriginalURL, URL: a.OriginalURL}
		if i < len(data) {
			targets[i].Data = data[i]
		}
	}
	outcomes, err := v.Score(ctx, reference, targets)
	if err != nil {
		return slices.Clone(assets), keep, err
	}
	out := make([]profile.Asset, 0, len(assets))
	for i, a := range assets {
		o := outcomes[i]
		switch {
		case o.Err != nil:
			a.Verified = false
			a.Similarity = nil
		case o.Passed:
			score := o.Score
			a.Verified = true
			a.Similarity = &score
		default:
			keep[i] = false
			continue
		}
		out = append(out, a)
	}
	return out, keep, nil
}

// AssignRanks sets contiguous 1-based ranks in slice order.
func AssignRanks(candidates []profile.Candidate) {
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
}
