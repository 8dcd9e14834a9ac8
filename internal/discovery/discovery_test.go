package discovery_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"dossier/internal/discovery"
	"dossier/internal/logging"
	"dossier/internal/profile"
	"dossier/internal/services"
	"dossier/internal/services/peopledata"
	"dossier/internal/services/serpapi"
)

type stubSource struct {
	name       string
	candidates []profile.Candidate
	err        error
	calls      int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FindCandidates(context.Context, profile.Query) ([]profile.Candidate, error) {
	s.calls++
	return s.candidates, s.err
}

func TestChainReturnsFirstNonEmptySource(t *testing.T) {
	empty := &stubSource{name: "empty"}
	failing := &stubSource{name: "failing", err: errors.New("quota exceeded")}
	good := &stubSource{name: "good", candidates: []profile.Candidate{{ID: "a", Name: "Ada"}}}
	never := &stubSource{name: "never", candidates: []profile.Candidate{{ID: "b", Name: "Bob"}}}

	chain := discovery.NewChain(logging.NewNop(), empty, failing, good, never)
	got, err := chain.FindCandidates(context.Background(), profile.Query{Text: "Ada"})
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(got) != 1 || got[0].Source != "good" {
		t.Fatalf("unexpected candidates %+v", got)
	}
	if never.calls != 0 {
		t.Fatal("expected chain to stop at the first non-empty source")
	}
}

func TestChainAllFailingIsUnavailable(t *testing.T) {
	chain := discovery.NewChain(logging.NewNop(),
		&stubSource{name: "a", err: errors.New("down")},
		&stubSource{name: "b", err: errors.New("down")},
	)
	_, err := chain.FindCandidates(context.Background(), profile.Query{Text: "Ada"})
	if !errors.Is(err, services.ErrDiscoveryUnavailable) {
		t.Fatalf("expected ErrDiscoveryUnavailable, got %v", err)
	}
}

func TestChainEmptyWithoutErrorsIsEmpty(t *testing.T) {
	chain := discovery.NewChain(logging.NewNop(), &stubSource{name: "a"}, &stubSource{name: "b", err: errors.New("down")})
	got, err := chain.FindCandidates(context.Background(), profile.Query{Text: "Ada"})
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result without error, got %v %v", got, err)
	}
}

func TestRefinedQuery(t *testing.T) {
	got := discovery.RefinedQuery(profile.Query{Text: " @Ada  Lovelace ", Age: "36", Location: "London", Company: "Analytical Engines"})
	if got != "Ada Lovelace age 36 London Analytical Engines" {
		t.Fatalf("unexpected refined query %q", got)
	}
}

type stubPDL struct {
	people []peopledata.Person
	params peopledata.SearchParams
}

func (s *stubPDL) Search(_ context.Context, params peopledata.SearchParams) ([]peopledata.Person, error) {
	s.params = params
	return s.people, nil
}

func (s *stubPDL) Enrich(context.Context, peopledata.EnrichParams) (*peopledata.Person, error) {
	return nil, nil
}

func TestPeopleDataCarriesIdentifiers(t *testing.T) {
	api := &stubPDL{people: []peopledata.Person{
		{ID: "pdl-1", FullName: "Jensen Huang", JobTitle: "ceo", JobCompanyName: "nvidia", LocationName: "santa clara", BirthYear: json.Number("1963"), LinkedInURL: "linkedin.com/in/jenhsunhuang"},
		{ID: "pdl-2"},
	}}
	src := discovery.NewPeopleData(api)
	got, err := src.FindCandidates(context.Background(), profile.Query{Text: "@Jensen Huang", Location: "Santa Clara"})
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if api.params.Name != "Jensen Huang" || api.params.Location != "Santa Clara" {
		t.Fatalf("unexpected search params %+v", api.params)
	}
	if len(got) != 1 {
		t.Fatalf("expected nameless person skipped, got %+v", got)
	}
	c := got[0]
	if c.ID != "pdl-1" || c.Attribute(discovery.AttrPDLID) != "pdl-1" {
		t.Fatalf("unexpected id %+v", c)
	}
	if c.Attribute(discovery.AttrLinkedInURL) != "https://linkedin.com/in/jenhsunhuang" {
		t.Fatalf("expected scheme added to linkedin url, got %q", c.Attribute(discovery.AttrLinkedInURL))
	}
	if c.Summary == "" {
		t.Fatal("expected headline summary")
	}
}

type stubSearcher struct {
	pages map[int]*serpapi.SearchResult
	errAt map[int]error
}

func (s *stubSearcher) Search(_ context.Context, _ string, page int) (*serpapi.SearchResult, error) {
	if err := s.errAt[page]; err != nil {
		return nil, err
	}
	if res, ok := s.pages[page]; ok {
		return res, nil
	}
	return &serpapi.SearchResult{}, nil
}

func (s *stubSearcher) Images(context.Context, string, int) ([]serpapi.ImageResult, error) {
	return nil, nil
}

func TestWebSearchBuildsCandidatesFromAllSections(t *testing.T) {
	searcher := &stubSearcher{pages: map[int]*serpapi.SearchResult{
		0: {
			KnowledgeGraph: &serpapi.KnowledgeGraph{Title: "Jensen Huang", Description: "CEO of Nvidia", Image: "https://img/kg.jpg"},
			OrganicResults: []serpapi.OrganicResult{
				{Title: "Jensen Huang - Wikipedia", Snippet: "Taiwanese-American businessman", Link: "https://en.wikipedia.org/wiki/Jensen_Huang"},
				{Title: "Jensen Huang (@jensenhuang) on Instagram", Snippet: "Photos", Thumbnail: "https://img/kg.jpg"},
				{Title: "Jensen Huang - Wikipedia", Snippet: "Taiwanese-American businessman"},
			},
			RelatedSearches: []serpapi.RelatedSearch{{Query: "Lori Huang", Thumbnail: "https://img/lori.jpg"}, {Query: "jensen huang net worth"}},
		},
		1: {OrganicResults: []serpapi.OrganicResult{{Title: "Top 10 Jensen Huang quotes", Snippet: "quotes"}}},
	}}
	src := discovery.NewWebSearch(searcher, 3)
	got, err := src.FindCandidates(context.Background(), profile.Query{Text: "Jensen Huang"})
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	names := make([]string, 0, len(got))
	ids := make([]string, 0, len(got))
	for _, c := range got {
		names = append(names, c.Name)
		ids = append(ids, c.ID)
	}
	wantNames := []string{"Jensen Huang", "Jensen Huang", "Lori Huang", "Jensen Huang quotes"}
	if len(names) != len(wantNames) {
		t.Fatalf("unexpected candidates %v", names)
	}
	for i := range wantNames {
		if names[i] != wantNames[i] {
			t.Fatalf("candidate %d: got %q want %q (all %v)", i, names[i], wantNames[i], names)
		}
	}
	if ids[0] != "jensen-huang" || ids[1] != "jensen-huang-2" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestWebSearchFirstPageFailureFails(t *testing.T) {
	src := discovery.NewWebSearch(&stubSearcher{errAt: map[int]error{0: errors.New("boom")}}, 2)
	if _, err := src.FindCandidates(context.Background(), profile.Query{Text: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestCleanTitle(t *testing.T) {
	cases := map[string]string{
		"Elon Musk (Entrepreneur)":             "Elon Musk",
		"Elon Musk | LinkedIn":                 "Elon Musk",
		"Satya Nadella on LinkedIn: Great day": "Satya Nadella",
		"20+ Jensen Huang profiles":            "Jensen Huang profiles",
		"Top 5 Ada Lovelace facts":             "Ada Lovelace facts",
		"Jean-Luc Picard":                      "Jean-Luc Picard",
	}
	for in, want := range cases {
		if got := discovery.CleanTitle(in); got != want {
			t.Fatalf("CleanTitle(%q) = %q want %q", in, got, want)
		}
	}
}

type stubCompleter struct {
	payload string
	err     error
}

func (s stubCompleter) CompleteInto(_ context.Context, _, _ string, target any) error {
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.payload), target)
}

func TestLanguageModelCapsAndAssignsIDs(t *testing.T) {
	src := discovery.NewLanguageModel(stubCompleter{payload: `{"candidates": [
		{"id": "", "name": "Michael Jordan", "description": "Basketball player • Chicago, IL"},
		{"id": "", "name": "Michael Jordan", "description": "Professor • Berkeley, CA"},
		{"name": ""},
		{"id": "mbj", "name": "Michael B. Jordan", "description": "Actor • Los Angeles, CA", "imageUrl": "https://img/mbj.jpg"}
	]}`})
	got, err := src.FindCandidates(context.Background(), profile.Query{Text: "Michael Jordan"})
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %+v", got)
	}
	if got[0].ID != "michael-jordan" || got[1].ID != "michael-jordan-2" || got[2].ID != "mbj" {
		t.Fatalf("unexpected ids %+v", got)
	}
	if got[2].ImageURL == "" {
		t.Fatal("expected image url preserved")
	}
}

func TestLanguageModelHandleFallback(t *testing.T) {
	src := discovery.NewLanguageModel(stubCompleter{payload: `{"candidates": []}`})
	got, err := src.FindCandidates(context.Background(), profile.Query{Text: "@nvidia"})
	if err != nil || len(got) != 1 || got[0].Name != "@nvidia" {
		t.Fatalf("unexpected handle fallback %+v %v", got, err)
	}
}
