// Package discovery finds raw disambiguation candidates for a query.
//
// Each provider is a Source. Chain tries them in priority order (structured
// people data, then web search, then the language model) and returns the first
// non-empty list. Provider failures are logged and skipped; only when every
// source fails does the chain report ErrDiscoveryUnavailable.
package discovery

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"dossier/internal/logging"
	"dossier/internal/profile"
	"dossier/internal/services"
)

// Source is one candidate discovery provider.
type Source interface {
	Name() string
	FindCandidates(ctx context.Context, q profile.Query) ([]profile.Candidate, error)
}

// Chain queries sources in order until one yields candidates.
type Chain struct {
	sources []Source
	logger  *slog.Logger
}

// NewChain builds a chain that consults sources in the given order.
func NewChain(logger *slog.Logger, sources ...Source) *Chain {
	return &Chain{
		sources: sources,
		logger:  logging.NewComponentLogger(logger, "discovery"),
	}
}

// Name implements Source.
func (c *Chain) Name() string { return "chain" }

// Sources returns the configured source names in order.
func (c *Chain) Sources() []string {
	names := make([]string, 0, len(c.sources))
	for _, src := range c.sources {
		names = append(names, src.Name())
	}
	return names
}

// FindCandidates returns the first non-empty candidate list. Every returned
// candidate carries the name of the source that produced it.
func (c *Chain) FindCandidates(ctx context.Context, q profile.Query) ([]profile.Candidate, error) {
	if len(c.sources) == 0 {
		return nil, services.Wrap(services.ErrDiscoveryUnavailable, "discovery", "find candidates", "no sources configured", nil)
	}
	logger := logging.WithContext(ctx, c.logger)
	var errs []error
	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		candidates, err := src.FindCandidates(ctx, q)
		if err != nil {
			logging.WarnWithContext(logger, "discovery source failed", "discovery_source_failed",
				logging.String(logging.FieldSource, src.Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check provider credentials and quota"),
				logging.String(logging.FieldImpact, "falling back to the next discovery source"),
			)
			errs = append(errs, services.SourceFailure(src.Name(), services.ErrDiscoveryUnavailable, err))
			continue
		}
		if len(candidates) == 0 {
			logger.Debug("discovery source returned no candidates", logging.String(logging.FieldSource, src.Name()))
			continue
		}
		for i := range candidates {
			if strings.TrimSpace(candidates[i].Source) == "" {
				candidates[i].Source = src.Name()
			}
		}
		logger.Info("discovery candidates found",
			logging.String(logging.FieldSource, src.Name()),
			logging.Int("count", len(candidates)),
		)
		return candidates, nil
	}
	if len(errs) == len(c.sources) {
		return nil, services.Wrap(services.ErrDiscoveryUnavailable, "discovery", "find candidates", "all sources failed", errors.Join(errs...))
	}
	return nil, nil
}

// RefinedQuery appends the disambiguators to the primary text the way a
// person would type them into a search box.
func RefinedQuery(q profile.Query) string {
	parts := []string{strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(q.Text), "@"))}
	if age := strings.TrimSpace(q.Age); age != "" {
		parts = append(parts, "age "+age)
	}
	for _, v := range []string{q.Location, q.Company} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
