// Package enrichment fans a resolved person out to the enrichment adapters
// and collects one result per attempted adapter.
//
// A run has two phases. Phase one asks the primary (web summary) adapter for
// an overview and the accounts it can see. Phase two launches one social
// scrape per discovered account plus every fixed adapter that applies to the
// subject, all concurrently. Every adapter call carries its own timeout and
// the whole run carries a deadline; whichever expires first wins.
package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"dossier/internal/logging"
	"dossier/internal/profile"
	"dossier/internal/query"
	"dossier/internal/services"
	"dossier/internal/services/apify"
)

const (
	defaultAdapterTimeout = 20 * time.Second
	defaultDeadline       = 45 * time.Second
)

// Adapter is one enrichment source. Enrich returns only the content fields of
// the result; the orchestrator stamps source, kind, status, and timing.
type Adapter interface {
	Source() string
	Kind() profile.Kind
	Enrich(ctx context.Context, subject Subject) (profile.EnrichmentResult, error)
}

// Conditional is implemented by adapters that only run for some subjects.
type Conditional interface {
	Applies(subject Subject) bool
}

// Subject is what the adapters enrich. Phase one fills Identifiers and Links
// for phase two.
type Subject struct {
	Query       profile.Query
	Candidate   *profile.Candidate
	Name        string
	Identifiers []profile.Identifier
	Links       []string
}

// NewSubject seeds a subject from the query and an optional chosen candidate.
// A handle query seeds instagram and twitter accounts; candidate attributes
// seed their profile URLs.
func NewSubject(q profile.Query, candidate *profile.Candidate) Subject {
	s := Subject{Query: q, Name: query.Display(q)}
	if candidate != nil {
		c := *candidate
		s.Candidate = &c
		if name := SearchName(c.Name); name != "" {
			s.Name = name
		}
		for _, raw := range candidateProfileURLs(c) {
			if id, ok := IdentifierFromURL(raw); ok {
				s.Identifiers = appendIdentifier(s.Identifiers, id)
			}
		}
	}
	if handle, ok := query.Handle(q); ok {
		s.Identifiers = appendIdentifier(s.Identifiers, profile.Identifier{Platform: "instagram", Handle: handle})
		s.Identifiers = appendIdentifier(s.Identifiers, profile.Identifier{Platform: "twitter", Handle: handle})
	}
	return s
}

// advance folds a phase one result into the subject.
func (s Subject) advance(r profile.EnrichmentResult) Subject {
	if !r.OK() {
		return s
	}
	s.Identifiers = slices.Clone(s.Identifiers)
	for _, id := range r.Identifiers {
		s.Identifiers = appendIdentifier(s.Identifiers, id)
	}
	s.Links = slices.Clone(s.Links)
	for _, link := range r.Links {
		if !slices.Contains(s.Links, link) {
			s.Links = append(s.Links, link)
		}
	}
	if s.Candidate == nil && r.Basic.Name != "" {
		if _, ok := query.Handle(s.Query); ok {
			s.Name = r.Basic.Name
		}
	}
	return s
}

// Identifier returns the account for platform, if known.
func (s Subject) Identifier(platform string) (profile.Identifier, bool) {
	for _, id := range s.Identifiers {
		if id.Platform == platform {
			return id, true
		}
	}
	return profile.Identifier{}, false
}

// Orchestrator runs the two enrichment phases.
type Orchestrator struct {
	primary        Adapter
	adapters       []Adapter
	scraper        apify.Scraper
	adapterTimeout time.Duration
	deadline       time.Duration
	logger         *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAdapters registers fixed phase two adapters.
func WithAdapters(adapters ...Adapter) Option {
	return func(o *Orchestrator) { o.adapters = append(o.adapters, adapters...) }
}

// WithScraper enables one social scrape per discovered account.
func WithScraper(scraper apify.Scraper) Option {
	return func(o *Orchestrator) { o.scraper = scraper }
}

// WithTimeouts overrides the per-adapter timeout and the overall deadline.
func WithTimeouts(adapter, overall time.Duration) Option {
	return func(o *Orchestrator) {
		if adapter > 0 {
			o.adapterTimeout = adapter
		}
		if overall > 0 {
			o.deadline = overall
		}
	}
}

// New builds an orchestrator. primary may be nil, in which case phase two
// works from the seeded subject alone.
func New(primary Adapter, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		primary:        primary,
		adapterTimeout: defaultAdapterTimeout,
		deadline:       defaultDeadline,
		logger:         logging.NewComponentLogger(logger, "enrichment"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run enriches subject and returns one result per attempted adapter, phase
// one first and phase two in plan order. Run never fails: adapter failures
// are recorded on their result.
func (o *Orchestrator) Run(ctx context.Context, subject Subject) []profile.EnrichmentResult {
	ctx = services.WithStage(ctx, "enrichment")
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()
	logger := logging.WithContext(ctx, o.logger)

	var results []profile.EnrichmentResult
	if o.primary != nil {
		first := o.call(ctx, logger, o.primary, subject)
		results = append(results, first)
		subject = subject.advance(first)
	}

	plan := o.Plan(subject)
	phase := make([]profile.EnrichmentResult, len(plan))
	g := new(errgroup.Group)
	for i, adapter := range plan {
		g.Go(func() error {
			phase[i] = o.call(ctx, logger, adapter, subject)
			return nil
		})
	}
	_ = g.Wait()
	results = append(results, phase...)

	logger.Info("enrichment complete",
		logging.Int("adapters", len(results)),
		logging.Int("failed", countFailed(results)),
		logging.String("name", subject.Name),
	)
	return results
}

// Plan returns the phase two adapters for subject.
func (o *Orchestrator) Plan(subject Subject) []Adapter {
	var plan []Adapter
	if o.scraper != nil {
		for _, id := range subject.Identifiers {
			if o.scraper.Supports(id.Platform) {
				plan = append(plan, NewSocialScrape(o.scraper, id))
			}
		}
	}
	for _, adapter := range o.adapters {
		if c, ok := adapter.(Conditional); ok && !c.Applies(subject) {
			continue
		}
		plan = append(plan, adapter)
	}
	return plan
}

type outcome struct {
	result profile.EnrichmentResult
	err    error
}

// call runs one adapter under its own timeout. A result that arrives after
// the timeout or deadline is discarded.
func (o *Orchestrator) call(ctx context.Context, logger *slog.Logger, adapter Adapter, subject Subject) profile.EnrichmentResult {
	source := adapter.Source()
	actx, cancel := context.WithTimeout(services.WithStage(ctx, source), o.adapterTimeout)
	defer cancel()

	started := time.Now()
	done := make(chan outcome, 1)
	go func() {
		r, err := adapter.Enrich(actx, subject)
		done <- outcome{result: r, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-actx.Done():
		out = outcome{err: actx.Err()}
	}

	result := out.result
	if out.err != nil {
		result = profile.EnrichmentResult{}
	}
	result.Source = source
	result.Kind = adapter.Kind()
	result.StartedAt = started
	result.Duration = time.Since(started)
	if out.err == nil {
		result.Status = profile.StatusSuccess
		logger.Debug("adapter succeeded", logging.String(logging.FieldSource, source), logging.Duration("duration", result.Duration))
		return result
	}

	result.Err = services.SourceFailure(source, services.ErrAdapterError, out.err)
	result.Status = profile.StatusFailed
	if errors.Is(result.Err, services.ErrAdapterTimeout) {
		result.Status = profile.StatusTimeout
	}
	logging.WarnWithContext(logger, "enrichment adapter failed", "adapter_failed",
		logging.String(logging.FieldSource, source),
		logging.String("status", string(result.Status)),
		logging.Duration("duration", result.Duration),
		logging.Error(out.err),
		logging.String(logging.FieldImpact, "source omitted from profile"),
	)
	return result
}

func countFailed(results []profile.EnrichmentResult) int {
	n := 0
	for _, r := range results {
		if !r.OK() {
			n++
		}
	}
	return n
}
