// Package aggregate merges enrichment results into one canonical profile.
//
// The merge is a pure function of its input set: results are put into a
// canonical order (source precedence, then source name) before any rule is
// applied, so the arrival order of adapter results never shows in the output.
package aggregate

import (
	"cmp"
	"errors"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dossier/internal/profile"
	"dossier/internal/services"
	"dossier/internal/textutil"
)

// SourceCandidate tags data taken from the chosen candidate itself.
const SourceCandidate = "candidate_selection"

// candidatePrecedence places a chosen candidate above the broad summary and
// below every source that looked at the person's own accounts.
const candidatePrecedence = 1

// Input is everything a merge sees.
type Input struct {
	Key       profile.CacheKey
	Query     profile.Query
	Candidate *profile.Candidate
	Results   []profile.EnrichmentResult
}

// Merge builds the profile. It fails with ErrBuildFailure only when no
// source produced a name.
func Merge(in Input) (*profile.Profile, error) {
	ordered := canonicalOrder(in.Results)
	succeeded := make([]profile.EnrichmentResult, 0, len(ordered))
	for _, r := range ordered {
		if r.OK() {
			succeeded = append(succeeded, r)
		}
	}

	p := &profile.Profile{
		Key:      in.Key,
		Query:    in.Query,
		Basic:    mergeBasic(succeeded, in.Candidate),
		Summary:  mergeSummary(succeeded),
		Socials:  mergeSocials(succeeded),
		Assets:   collectAssets(succeeded, in.Candidate),
		Mentions: collectMentions(succeeded),
		Sources:  Trace(ordered),
	}
	if p.Basic.Name == "" {
		var errs []error
		for _, r := range ordered {
			if r.Err != nil {
				errs = append(errs, r.Err)
			}
		}
		return nil, services.Wrap(services.ErrBuildFailure, "aggregate", "merge", "no source produced a name", errors.Join(errs...))
	}
	return p, nil
}

// canonicalOrder sorts by ascending precedence, then source name, then
// content so that equal-source duplicates also order deterministically.
func canonicalOrder(results []profile.EnrichmentResult) []profile.EnrichmentResult {
	out := slices.Clone(results)
	slices.SortStableFunc(out, func(a, b profile.EnrichmentResult) int {
		return cmp.Or(
			cmp.Compare(a.Kind.Precedence(), b.Kind.Precedence()),
			cmp.Compare(a.Source, b.Source),
			cmp.Compare(statusRank(a.Status), statusRank(b.Status)),
			cmp.Compare(a.Basic.Name, b.Basic.Name),
			cmp.Compare(a.Summary, b.Summary),
			cmp.Compare(len(a.Images), len(b.Images)),
		)
	})
	return out
}

func statusRank(s profile.Status) int {
	if s == profile.StatusSuccess {
		return 0
	}
	return 1
}

// mergeBasic applies results from least to most specific; a present field
// always replaces, a missing one never does.
func mergeBasic(results []profile.EnrichmentResult, candidate *profile.Candidate) profile.BasicInfo {
	var basic profile.BasicInfo
	candidateApplied := false
	applyCandidate := func() {
		if candidateApplied || candidate == nil {
			return
		}
		candidateApplied = true
		if name := strings.TrimSpace(candidate.Name); name != "" && !strings.HasPrefix(name, "@") {
			basic.Name = name
		}
	}
	for _, r := range results {
		if r.Kind.Precedence() > candidatePrecedence {
			applyCandidate()
		}
		overlay(&basic, r.Basic)
	}
	applyCandidate()

	basic.Name = displayCase(basic.Name)
	basic.Location = displayCase(basic.Location)
	return basic
}

func overlay(dst *profile.BasicInfo, src profile.BasicInfo) {
	set := func(field *string, value string) {
		if value = textutil.CollapseSpace(value); value != "" {
			*field = value
		}
	}
	set(&dst.Name, src.Name)
	set(&dst.Age, src.Age)
	set(&dst.Location, src.Location)
	set(&dst.Occupation, src.Occupation)
	set(&dst.Company, src.Company)
	set(&dst.Bio, src.Bio)
	if len(src.Education) > 0 {
		dst.Education = slices.Clone(src.Education)
	}
}

// displayCase title-cases values a provider returned in a single case.
func displayCase(value string) string {
	if value == "" || (value != strings.ToLower(value) && value != strings.ToUpper(value)) {
		return value
	}
	return cases.Title(language.Und).String(value)
}

// mergeSummary takes the most specific narrative summary available.
func mergeSummary(results []profile.EnrichmentResult) string {
	for _, r := range slices.Backward(results) {
		if s := strings.TrimSpace(r.Summary); s != "" {
			return s
		}
	}
	return ""
}

type socialEntry struct {
	social     profile.SocialProfile
	precedence int
}

// better reports whether a should win over b for the same platform.
func better(a, b socialEntry) bool {
	if a.social.Verified != b.social.Verified {
		return a.social.Verified
	}
	if ra, rb := a.social.Richness(), b.social.Richness(); ra != rb {
		return ra > rb
	}
	if a.precedence != b.precedence {
		return a.precedence > b.precedence
	}
	if a.social.Source != b.social.Source {
		return a.social.Source < b.social.Source
	}
	return a.social.URL < b.social.URL
}

// mergeSocials keeps one entry per platform. The winner is chosen by the
// verified signal, then richness, then source precedence; it then borrows
// missing sub-fields from losing entries that describe the same account.
func mergeSocials(results []profile.EnrichmentResult) []profile.SocialProfile {
	byPlatform := map[string][]socialEntry{}
	for _, r := range results {
		for _, s := range r.Socials {
			if strings.TrimSpace(s.Platform) == "" {
				continue
			}
			s.Platform = strings.ToLower(strings.TrimSpace(s.Platform))
			if s.Source == "" {
				s.Source = r.Source
			}
			byPlatform[s.Platform] = append(byPlatform[s.Platform], socialEntry{social: s, precedence: r.Kind.Precedence()})
		}
	}

	out := make([]profile.SocialProfile, 0, len(byPlatform))
	for _, entries := range byPlatform {
		slices.SortStableFunc(entries, func(a, b socialEntry) int {
			switch {
			case better(a, b):
				return -1
			case better(b, a):
				return 1
			}
			return 0
		})
		winner := entries[0].social
		for _, e := range entries[1:] {
			if sameAccount(winner, e.social) {
				winner = fillSocial(winner, e.social)
			}
		}
		out = append(out, winner)
	}
	slices.SortFunc(out, func(a, b profile.SocialProfile) int { return cmp.Compare(a.Platform, b.Platform) })
	return out
}

func sameAccount(a, b profile.SocialProfile) bool {
	if a.Handle == "" || b.Handle == "" {
		return true
	}
	return strings.EqualFold(a.Handle, b.Handle)
}

func fillSocial(dst, src profile.SocialProfile) profile.SocialProfile {
	dst.Handle = textutil.FirstNonEmpty(dst.Handle, src.Handle)
	dst.URL = textutil.FirstNonEmpty(dst.URL, src.URL)
	dst.DisplayName = textutil.FirstNonEmpty(dst.DisplayName, src.DisplayName)
	dst.Bio = textutil.FirstNonEmpty(dst.Bio, src.Bio)
	dst.ProfilePicURL = textutil.FirstNonEmpty(dst.ProfilePicURL, src.ProfilePicURL)
	if dst.Followers == 0 {
		dst.Followers = src.Followers
	}
	return dst
}

// imageOrder lists results for asset collection: most specific source first,
// ties by source name.
func imageOrder(results []profile.EnrichmentResult) []profile.EnrichmentResult {
	out := slices.Clone(results)
	slices.SortStableFunc(out, func(a, b profile.EnrichmentResult) int {
		return cmp.Or(
			cmp.Compare(b.Kind.Precedence(), a.Kind.Precedence()),
			cmp.Compare(a.Source, b.Source),
		)
	})
	return out
}

// collectAssets concatenates photos in source-then-discovery order, the
// chosen candidate's photo first, dropping repeated URLs.
func collectAssets(results []profile.EnrichmentResult, candidate *profile.Candidate) []profile.Asset {
	seen := map[string]bool{}
	var assets []profile.Asset
	add := func(source string, ref profile.ImageRef) {
		raw := strings.TrimSpace(ref.URL)
		key := NormalizeURL(raw)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		assets = append(assets, profile.Asset{
			OriginalURL: raw,
			Source:      source,
			Role:        profile.RolePhoto,
			Caption:     strings.TrimSpace(ref.Caption),
		})
	}
	if candidate != nil && candidate.ImageURL != "" {
		add(SourceCandidate, profile.ImageRef{URL: candidate.ImageURL})
	}
	for _, r := range imageOrder(results) {
		for _, img := range r.Images {
			add(r.Source, img)
		}
	}
	return assets
}

// collectMentions concatenates mentions in source order, dropping repeated
// URLs (or titles, for mentions without a link).
func collectMentions(results []profile.EnrichmentResult) []profile.Mention {
	seen := map[string]bool{}
	var mentions []profile.Mention
	for _, r := range imageOrder(results) {
		for _, m := range r.Mentions {
			key := NormalizeURL(m.URL)
			if key == "" {
				key = "title:" + strings.ToLower(textutil.CollapseSpace(m.Title))
			}
			if key == "title:" || seen[key] {
				continue
			}
			seen[key] = true
			if m.Source == "" {
				m.Source = r.Source
			}
			mentions = append(mentions, m)
		}
	}
	return mentions
}

// NormalizeURL is the comparison key for image and mention links: scheme and
// host lowercased, query and fragment dropped, trailing slash trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		base, _, _ := strings.Cut(raw, "?")
		return strings.ToLower(base)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return strings.TrimSuffix(u.String(), "/")
}

// Trace records every attempted adapter, sorted by source.
func Trace(results []profile.EnrichmentResult) []profile.SourceTrace {
	trace := make([]profile.SourceTrace, 0, len(results))
	for _, r := range results {
		entry := profile.SourceTrace{
			Source:     r.Source,
			Kind:       r.Kind,
			Status:     r.Status,
			DurationMS: r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			entry.ErrorKind = services.Kind(r.Err)
			entry.Error = r.Err.Error()
		}
		trace = append(trace, entry)
	}
	slices.SortStableFunc(trace, func(a, b profile.SourceTrace) int {
		return cmp.Or(cmp.Compare(a.Source, b.Source), cmp.Compare(a.Status, b.Status))
	})
	return trace
}
