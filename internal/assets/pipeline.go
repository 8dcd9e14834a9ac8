// Package assets makes a profile's images durable: it downloads every
// referenced photo and profile picture, normalizes it, and writes a
// content-addressed copy to storage.
//
// Failures are per image. A photo that cannot be fetched, decoded, or stored
// is dropped; a profile picture that fails is cleared from its social entry.
// When no photo survives, a fallback discoverer may supply replacements, and
// those are never mixed with originals.
package assets

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"dossier/internal/imaging"
	"dossier/internal/logging"
	"dossier/internal/profile"
	"dossier/internal/services"
)

const (
	defaultWorkers     = 10
	defaultDeadline    = 60 * time.Second
	defaultFallbackCap = 5
)

// Loader downloads image bytes.
type Loader interface {
	Load(ctx context.Context, url string) ([]byte, error)
}

// Filter drops photos that do not depict the reference person. data holds the
// normalized bytes for each asset by index.
type Filter interface {
	Filter(ctx context.Context, reference []byte, assets []profile.Asset, data [][]byte) ([]profile.Asset, []bool, error)
}

// Pipeline runs the durability stage.
type Pipeline struct {
	loader      Loader
	store       Store
	fallback    Discoverer
	filter      Filter
	normalize   imaging.Options
	workers     int
	deadline    time.Duration
	fallbackCap int
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFallback sets the discoverer used when no photo could be stored.
func WithFallback(d Discoverer) Option {
	return func(p *Pipeline) { p.fallback = d }
}

// WithFilter enables identity filtering when a reference image is supplied.
func WithFilter(f Filter) Option {
	return func(p *Pipeline) { p.filter = f }
}

// WithNormalize sets the normalization bounds for stored images.
func WithNormalize(opts imaging.Options) Option {
	return func(p *Pipeline) { p.normalize = opts }
}

// WithWorkers bounds concurrent downloads.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithDeadline bounds one pass over all images.
func WithDeadline(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.deadline = d
		}
	}
}

// WithFallbackCap bounds the number of fallback images.
func WithFallbackCap(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.fallbackCap = n
		}
	}
}

// NewPipeline builds the stage.
func NewPipeline(loader Loader, store Store, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		loader:      loader,
		store:       store,
		normalize:   imaging.Options{MaxDimension: 1920, MaxBytes: 5 << 20, Quality: 90},
		workers:     defaultWorkers,
		deadline:    defaultDeadline,
		fallbackCap: defaultFallbackCap,
		logger:      logging.NewComponentLogger(logger, "assets"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Report summarizes one run.
type Report struct {
	Stored   int
	Dropped  int
	Filtered int
	Fallback bool
	// Verification is the degradation error when filtering could not run.
	Verification error
}

type slot struct {
	asset profile.Asset
	data  []byte
	ok    bool
}

// Process rewrites prof's photos and profile pictures in place. reference,
// when non-empty, enables identity filtering of photos.
func (p *Pipeline) Process(ctx context.Context, prof *profile.Profile, reference []byte) Report {
	var report Report
	if prof == nil {
		return report
	}
	logger := logging.WithContext(ctx, p.logger)

	jobs := make([]profile.Asset, 0, len(prof.Assets)+len(prof.Socials))
	jobs = append(jobs, prof.Assets...)
	picOwner := make(map[int]int)
	for i, s := range prof.Socials {
		if strings.TrimSpace(s.ProfilePicURL) == "" {
			continue
		}
		picOwner[len(jobs)] = i
		jobs = append(jobs, profile.Asset{OriginalURL: s.ProfilePicURL, Source: s.Source, Role: profile.RoleProfilePicture})
	}

	slots := p.run(ctx, jobs)

	var photos []profile.Asset
	var data [][]byte
	for i, s := range slots {
		if owner, isPic := picOwner[i]; isPic {
			if s.ok {
				prof.Socials[owner].ProfilePicURL = s.asset.DurableURL
			} else {
				prof.Socials[owner].ProfilePicURL = ""
			}
			continue
		}
		if !s.ok {
			report.Dropped++
			continue
		}
		photos = append(photos, s.asset)
		data = append(data, s.data)
	}
	report.Stored = len(photos)

	if len(photos) == 0 && p.fallback != nil {
		photos, data = p.runFallback(ctx, prof, logger)
		report.Fallback = len(photos) > 0
	}

	if len(reference) > 0 && p.filter != nil && len(photos) > 0 {
		kept, _, err := p.filter.Filter(ctx, reference, photos, data)
		if err != nil {
			report.Verification = err
			logging.WarnWithContext(logger, "identity filtering unavailable", "verification_degraded",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the similarity service and the reference image"),
				logging.String(logging.FieldImpact, "photos kept unverified"),
			)
		}
		report.Filtered = len(photos) - len(kept)
		photos = kept
	}

	prof.Assets = photos
	logger.Info("assets processed",
		logging.String(logging.FieldEventType, "assets_processed"),
		logging.Int("stored", report.Stored),
		logging.Int("dropped", report.Dropped),
		logging.Int("filtered", report.Filtered),
		logging.Bool("fallback", report.Fallback),
	)
	return report
}

// run processes jobs with bounded concurrency under the stage deadline. Each
// worker owns one slot; order follows jobs, not completion.
func (p *Pipeline) run(ctx context.Context, jobs []profile.Asset) []slot {
	slots := make([]slot, len(jobs))
	if len(jobs) == 0 || p.loader == nil || p.store == nil {
		return slots
	}
	dctx, cancel := context.WithTimeout(services.WithStage(ctx, "assets"), p.deadline)
	defer cancel()

	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for i, job := range jobs {
		g.Go(func() error {
			slots[i] = p.processOne(dctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return slots
}

func (p *Pipeline) processOne(ctx context.Context, asset profile.Asset) slot {
	raw, err := p.loader.Load(ctx, asset.OriginalURL)
	if err != nil {
		p.drop(ctx, asset, "fetch", err)
		return slot{asset: asset}
	}
	normalized, err := imaging.Normalize(raw, p.normalize)
	if err != nil {
		p.drop(ctx, asset, "normalize", services.Wrap(services.ErrAssetFetchFailure, "assets", "normalize", "", err))
		return slot{asset: asset}
	}
	durable, err := p.store.Put(ctx, normalized.Data)
	if err != nil {
		p.drop(ctx, asset, "store", err)
		return slot{asset: asset}
	}
	asset.DurableURL = durable
	return slot{asset: asset, data: normalized.Data, ok: true}
}

func (p *Pipeline) drop(ctx context.Context, asset profile.Asset, step string, err error) {
	impact := "photo dropped from profile"
	if asset.Role == profile.RoleProfilePicture {
		impact = "profile picture cleared"
	}
	logging.WarnWithContext(logging.WithContext(ctx, p.logger), "asset dropped", "asset_dropped",
		logging.String("url", asset.OriginalURL),
		logging.String(logging.FieldSource, asset.Source),
		logging.String("step", step),
		logging.String("error_kind", services.Kind(err)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "the image host may block or have removed the file"),
		logging.String(logging.FieldImpact, impact),
	)
}

func (p *Pipeline) runFallback(ctx context.Context, prof *profile.Profile, logger *slog.Logger) ([]profile.Asset, [][]byte) {
	query := fallbackQuery(prof.Basic)
	if query == "" {
		return nil, nil
	}
	refs, err := p.fallback.Discover(ctx, query, p.fallbackCap)
	if err != nil {
		logging.WarnWithContext(logger, "fallback image discovery failed", "fallback_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check google_images credentials"),
			logging.String(logging.FieldImpact, "profile has no photos"),
		)
		return nil, nil
	}
	if len(refs) > p.fallbackCap {
		refs = refs[:p.fallbackCap]
	}
	jobs := make([]profile.Asset, len(refs))
	for i, ref := range refs {
		jobs[i] = profile.Asset{
			OriginalURL: ref.URL,
			Source:      SourceGoogleImages,
			Role:        profile.RolePhoto,
			Caption:     ref.Caption,
			Fallback:    true,
		}
	}
	var photos []profile.Asset
	var data [][]byte
	for _, s := range p.run(ctx, jobs) {
		if s.ok {
			photos = append(photos, s.asset)
			data = append(data, s.data)
		}
	}
	logger.Info("fallback images stored",
		logging.String(logging.FieldEventType, "fallback_used"),
		logging.Int("discovered", len(refs)),
		logging.Int("stored", len(photos)),
	)
	return photos, data
}

// fallbackQuery keys the search on the person's name plus the strongest
// disambiguating context.
func fallbackQuery(basic profile.BasicInfo) string {
	name := strings.TrimSpace(basic.Name)
	if name == "" {
		return ""
	}
	for _, extra := range []string{basic.Company, basic.Occupation, basic.Location} {
		if extra = strings.TrimSpace(extra); extra != "" {
			return name + " " + extra
		}
	}
	return name
}
