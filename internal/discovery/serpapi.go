package discovery

import (
	"context"
	"regexp"
	"strings"

	"dossier/internal/profile"
	"dossier/internal/services/serpapi"
	"dossier/internal/textutil"
)

// SourceWebSearch names the Google search source.
const SourceWebSearch = "web_search"

const (
	defaultSearchPages  = 4
	descriptorKeyLength = 80
)

var (
	parentheticalPattern = regexp.MustCompile(`\s*\(.*?\)`)
	siteSuffixPattern    = regexp.MustCompile(`\s+[|\-–—]\s+`)
	onPlatformPattern    = regexp.MustCompile(`(?i)\s+on\s+(instagram|twitter|x|linkedin|facebook|tiktok|youtube)\b.*$`)
	countPrefixPattern   = regexp.MustCompile(`^\d+\+?\s+`)
	topPrefixPattern     = regexp.MustCompile(`(?i)^top\s+\d+\s+`)
)

// WebSearch discovers candidates from Google's knowledge graph, organic
// results, and related searches.
type WebSearch struct {
	searcher serpapi.Searcher
	pages    int
}

// NewWebSearch wraps a SerpAPI searcher. pages <= 0 uses the default depth.
func NewWebSearch(searcher serpapi.Searcher, pages int) *WebSearch {
	if pages <= 0 {
		pages = defaultSearchPages
	}
	return &WebSearch{searcher: searcher, pages: pages}
}

// Name implements Source.
func (w *WebSearch) Name() string { return SourceWebSearch }

// FindCandidates implements Source. A page that fails after the first is
// skipped; a failing first page fails the source.
func (w *WebSearch) FindCandidates(ctx context.Context, q profile.Query) ([]profile.Candidate, error) {
	text := RefinedQuery(q)
	var raw []profile.Candidate
	for page := 0; page < w.pages; page++ {
		result, err := w.searcher.Search(ctx, text, page)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			break
		}
		if page == 0 && result.KnowledgeGraph != nil {
			if c, ok := fromKnowledgeGraph(*result.KnowledgeGraph); ok {
				raw = append(raw, c)
			}
		}
		for _, organic := range result.OrganicResults {
			if c, ok := fromOrganic(organic); ok {
				raw = append(raw, c)
			}
		}
		if page == 0 {
			for _, related := range result.RelatedSearches {
				if c, ok := fromRelated(related); ok {
					raw = append(raw, c)
				}
			}
		}
		if len(result.OrganicResults) == 0 {
			break
		}
	}
	return uniqueCandidates(raw), nil
}

func fromKnowledgeGraph(kg serpapi.KnowledgeGraph) (profile.Candidate, bool) {
	name := strings.TrimSpace(kg.Title)
	if name == "" {
		return profile.Candidate{}, false
	}
	return profile.Candidate{
		Name:     name,
		Summary:  textutil.FirstNonEmpty(kg.Description, kg.Type),
		ImageURL: kg.ImageURL(),
		Link:     kg.Website,
		Source:   SourceWebSearch,
	}, true
}

func fromOrganic(result serpapi.OrganicResult) (profile.Candidate, bool) {
	name := CleanTitle(result.Title)
	if name == "" {
		return profile.Candidate{}, false
	}
	return profile.Candidate{
		Name:     name,
		Summary:  strings.TrimSpace(result.Snippet),
		ImageURL: strings.TrimSpace(result.Thumbnail),
		Link:     strings.TrimSpace(result.Link),
		Source:   SourceWebSearch,
	}, true
}

// fromRelated keeps only related searches with a thumbnail, which Google
// attaches to entity suggestions.
func fromRelated(related serpapi.RelatedSearch) (profile.Candidate, bool) {
	name := strings.TrimSpace(related.Query)
	thumb := strings.TrimSpace(related.Thumbnail)
	if name == "" || thumb == "" {
		return profile.Candidate{}, false
	}
	return profile.Candidate{
		Name:     name,
		Summary:  "Related search",
		ImageURL: thumb,
		Source:   SourceWebSearch,
	}, true
}

// CleanTitle strips the decorations search result titles carry around a name:
// parentheticals, "| LinkedIn" style site suffixes, "on Instagram" tails, and
// listicle prefixes such as "20+ " or "Top 10 ".
func CleanTitle(title string) string {
	name := parentheticalPattern.ReplaceAllString(title, "")
	name = siteSuffixPattern.Split(name, 2)[0]
	name = onPlatformPattern.ReplaceAllString(name, "")
	name = countPrefixPattern.ReplaceAllString(name, "")
	name = topPrefixPattern.ReplaceAllString(name, "")
	return textutil.CollapseSpace(name)
}

// uniqueCandidates drops exact repeats (same name and descriptor prefix, or a
// reused image) and assigns stable IDs derived from the name.
func uniqueCandidates(raw []profile.Candidate) []profile.Candidate {
	seenKeys := make(map[string]struct{}, len(raw))
	seenImages := make(map[string]struct{}, len(raw))
	ids := make(map[string]int, len(raw))
	out := make([]profile.Candidate, 0, len(raw))
	for _, c := range raw {
		key := textutil.NameKey(c.Name) + "::" + strings.ToLower(textutil.Truncate(c.Summary, descriptorKeyLength))
		if _, dup := seenKeys[key]; dup {
			continue
		}
		if c.ImageURL != "" {
			if _, dup := seenImages[c.ImageURL]; dup {
				continue
			}
			seenImages[c.ImageURL] = struct{}{}
		}
		seenKeys[key] = struct{}{}
		c.ID = uniqueID(ids, slug(c.Name))
		out = append(out, c)
	}
	return out
}
