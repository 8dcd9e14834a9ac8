// Package pipeline runs a profile build end to end: query normalization,
// cache coordination, candidate resolution, enrichment, aggregation, asset
// durability, and storage.
//
// Only ErrInvalidQuery and ErrBuildFailure reach callers. Every other failure
// is absorbed by the stage that saw it and shows up in the profile's source
// trace or the logs.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"dossier/internal/aggregate"
	"dossier/internal/assets"
	"dossier/internal/enrichment"
	"dossier/internal/logging"
	"dossier/internal/profile"
	"dossier/internal/profilecache"
	"dossier/internal/query"
	"dossier/internal/services"
)

// CandidateResolver produces ranked disambiguation candidates.
type CandidateResolver interface {
	Resolve(ctx context.Context, q profile.Query, reference []byte) ([]profile.Candidate, error)
}

// Enricher fans a subject out to the enrichment adapters.
type Enricher interface {
	Run(ctx context.Context, subject enrichment.Subject) []profile.EnrichmentResult
}

// AssetProcessor makes a profile's images durable in place.
type AssetProcessor interface {
	Process(ctx context.Context, prof *profile.Profile, reference []byte) assets.Report
}

// Service coordinates profile builds.
type Service struct {
	cache    *profilecache.Cache
	resolver CandidateResolver
	enricher Enricher
	assets   AssetProcessor
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithResolver enables candidate resolution for queries that arrive without
// a chosen candidate.
func WithResolver(r CandidateResolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithAssets enables the asset durability stage.
func WithAssets(p AssetProcessor) Option {
	return func(s *Service) { s.assets = p }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a service. cache and enricher are required.
func New(cache *profilecache.Cache, enricher Enricher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cache:    cache,
		enricher: enricher,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request is one profile search.
type Request struct {
	Query profile.Query
	// Candidate is the caller's chosen candidate, when the full record is at
	// hand. Query.CandidateID alone also selects one.
	Candidate *profile.Candidate
	// Reference is a photo of the person. Supplying one bypasses the cache
	// lookup so identity filtering always applies; the result is still stored.
	Reference []byte
	// Refresh forces a rebuild even when a stored profile exists.
	Refresh bool
}

// Response is the outcome of a search.
type Response struct {
	Profile *profile.Profile
	Cached  bool
	Shared  bool
}

// Search returns the profile for req, building it when needed.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	if req.Candidate != nil && strings.TrimSpace(req.Query.CandidateID) == "" {
		req.Query.CandidateID = req.Candidate.ID
	}
	key, err := query.Normalize(req.Query)
	if err != nil {
		return Response{}, err
	}
	ctx = withRequestID(services.WithCacheKey(ctx, key.String()))

	build := func(bctx context.Context) (*profile.Profile, error) {
		return s.build(bctx, key, req)
	}
	var outcome profilecache.Outcome
	if len(req.Reference) > 0 || req.Refresh {
		outcome, err = s.cache.RebuildScoped(ctx, key, referenceScope(req.Reference), build)
	} else {
		outcome, err = s.cache.GetOrBuild(ctx, key, build)
	}
	if err != nil {
		return Response{}, err
	}
	return Response{Profile: outcome.Profile, Cached: outcome.Cached, Shared: outcome.Shared}, nil
}

// referenceScope separates builds filtered by a reference photo from each
// other and from unfiltered builds of the same key.
func referenceScope(reference []byte) string {
	if len(reference) == 0 {
		return ""
	}
	sum := sha256.Sum256(reference)
	return "ref=" + hex.EncodeToString(sum[:])
}

// Candidates resolves the disambiguation list for q without building a
// profile. A missing resolver yields an empty list.
func (s *Service) Candidates(ctx context.Context, q profile.Query, reference []byte) ([]profile.Candidate, error) {
	q.CandidateID = ""
	if _, err := query.Normalize(q); err != nil {
		return nil, err
	}
	if s.resolver == nil {
		return []profile.Candidate{}, nil
	}
	return s.resolver.Resolve(withRequestID(ctx), q, reference)
}

// Profile returns the stored profile for key without building.
func (s *Service) Profile(ctx context.Context, key profile.CacheKey) (*profile.Profile, bool) {
	return s.cache.Lookup(ctx, key)
}

func (s *Service) build(ctx context.Context, key profile.CacheKey, req Request) (*profile.Profile, error) {
	started := s.now()
	logger := logging.WithContext(ctx, s.logger)

	candidate := req.Candidate
	if candidate == nil {
		candidate = s.selectCandidate(services.WithStage(ctx, "candidates"), req)
	}

	subject := enrichment.NewSubject(req.Query, candidate)
	results := s.enricher.Run(services.WithStage(ctx, "enrichment"), subject)

	prof, err := aggregate.Merge(aggregate.Input{Key: key, Query: req.Query, Candidate: candidate, Results: results})
	if err != nil {
		logging.WarnWithContext(logger, "profile build failed", "build_failed",
			logging.Error(err),
			logging.Int("sources", len(results)),
			logging.String(logging.FieldErrorHint, "check provider credentials with dossier doctor"),
			logging.String(logging.FieldImpact, "no profile returned"),
		)
		return nil, err
	}

	if s.assets != nil {
		s.assets.Process(services.WithStage(ctx, "assets"), prof, req.Reference)
	}

	now := s.now().UTC()
	prof.ID = s.newID()
	prof.CreatedAt = now
	prof.UpdatedAt = now
	if prev, ok := s.cache.Lookup(ctx, key); ok {
		prof.ID = prev.ID
		prof.CreatedAt = prev.CreatedAt
	}

	logger.Debug("profile assembled",
		logging.String(logging.FieldEventType, "profile_assembled"),
		logging.Int("socials", len(prof.Socials)),
		logging.Int("photos", len(prof.Assets)),
		logging.Int("mentions", len(prof.Mentions)),
		logging.Duration("elapsed", s.now().Sub(started)),
	)
	return prof, nil
}

// selectCandidate picks the subject for a query that arrived without a
// candidate record: the one matching Query.CandidateID, or the top-ranked
// candidate. Handle queries name an account directly and skip resolution.
func (s *Service) selectCandidate(ctx context.Context, req Request) *profile.Candidate {
	if s.resolver == nil {
		return nil
	}
	if _, isHandle := query.Handle(req.Query); isHandle {
		return nil
	}
	wanted := strings.TrimSpace(req.Query.CandidateID)
	q := req.Query
	q.CandidateID = ""
	list, err := s.resolver.Resolve(ctx, q, req.Reference)
	if err != nil || len(list) == 0 {
		return nil
	}
	if wanted == "" {
		chosen := list[0]
		return &chosen
	}
	for _, c := range list {
		if c.ID == wanted {
			chosen := c
			return &chosen
		}
	}
	logging.WarnWithContext(logging.WithContext(ctx, s.logger), "selected candidate not found", "candidate_missing",
		logging.String("candidate_id", wanted),
		logging.String(logging.FieldErrorHint, "list candidates again; ids are derived from discovery results"),
		logging.String(logging.FieldImpact, "profile built from the query alone"),
	)
	return nil
}

func withRequestID(ctx context.Context) context.Context {
	if _, ok := services.RequestIDFromContext(ctx); ok {
		return ctx
	}
	return services.WithRequestID(ctx, uuid.NewString())
}
