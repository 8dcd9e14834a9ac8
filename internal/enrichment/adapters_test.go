package enrichment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dossier/internal/enrichment"
	"dossier/internal/profile"
	"dossier/internal/services/peopledata"
)

func TestWebSummaryParsesLooseModelOutput(t *testing.T) {
	adapter := enrichment.NewWebSummary(stubCompleter{payload: `{
		"summary": "Co-founder of NVIDIA.",
		"basic_info": {"name": "Jensen Huang", "age": 61, "education": "Stanford University", "company": null},
		"social_profiles": [
			{"platform": "Twitter/X", "username": "", "url": "x.com/nvidia_jensen", "followers": "12,500", "verified": "true"},
			{"platform": "", "url": "https://www.linkedin.com/in/jenhsunhuang/"},
			{"platform": "Myspace"}
		],
		"photos": [{"url": "https://img.example/a.jpg", "caption": "keynote"}, {"url": " "}],
		"notable_mentions": [{"title": "Keynote", "url": "https://news.example/k"}, {"title": ""}],
		"websites": ["https://jensen.example", "https://twitter.com/nvidia"]
	}`})
	result, err := adapter.Enrich(context.Background(), enrichment.NewSubject(profile.Query{Text: "Jensen Huang"}, nil))
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if result.Basic.Age != "61" || len(result.Basic.Education) != 1 || result.Basic.Company != "" {
		t.Fatalf("unexpected basic info %+v", result.Basic)
	}
	if len(result.Socials) != 2 {
		t.Fatalf("expected two usable socials, got %+v", result.Socials)
	}
	tw := result.Socials[0]
	if tw.Platform != "twitter" || tw.Handle != "nvidia_jensen" || tw.Followers != 12500 || !tw.Verified {
		t.Fatalf("unexpected twitter entry %+v", tw)
	}
	if li := result.Socials[1]; li.Platform != "linkedin" || li.Handle != "jenhsunhuang" {
		t.Fatalf("unexpected linkedin entry %+v", li)
	}
	if len(result.Identifiers) != 2 || len(result.Images) != 1 || len(result.Mentions) != 1 {
		t.Fatalf("unexpected collections %+v", result)
	}
	if len(result.Links) != 1 || result.Links[0] != "https://jensen.example" {
		t.Fatalf("expected only non-social websites as links, got %v", result.Links)
	}
}

type recordingCompleter struct {
	prompt string
}

func (r *recordingCompleter) CompleteInto(_ context.Context, _, user string, target any) error {
	r.prompt = user
	return json.Unmarshal([]byte(`{"basic_info": {"name": "J. Huang"}}`), target)
}

func TestWebSummaryTargetsChosenCandidate(t *testing.T) {
	model := &recordingCompleter{}
	candidate := &profile.Candidate{ID: "jensen-huang", Name: "Jensen Huang", Summary: "CEO at NVIDIA • Santa Clara"}
	if _, err := enrichment.NewWebSummary(model).Enrich(context.Background(), enrichment.NewSubject(profile.Query{Text: "jensen", Location: "Taipei"}, candidate)); err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if !strings.Contains(model.prompt, "Jensen Huang (CEO at NVIDIA • Santa Clara)") || strings.Contains(model.prompt, "Taipei") {
		t.Fatalf("expected candidate-targeted prompt, got %q", model.prompt)
	}
}

type stubPeople struct {
	got    peopledata.EnrichParams
	person *peopledata.Person
}

func (s *stubPeople) Search(context.Context, peopledata.SearchParams) ([]peopledata.Person, error) {
	return nil, nil
}

func (s *stubPeople) Enrich(_ context.Context, params peopledata.EnrichParams) (*peopledata.Person, error) {
	s.got = params
	return s.person, nil
}

func TestPeopleDataEnrichesByRecordID(t *testing.T) {
	api := &stubPeople{person: &peopledata.Person{
		ID:             "pdl-1",
		FullName:       "jensen huang",
		JobTitle:       "ceo",
		JobCompanyName: "nvidia",
		LinkedInURL:    "linkedin.com/in/jenhsunhuang",
		TwitterURL:     "twitter.com/nvidia_jensen",
		Profiles:       []peopledata.Profile{{Network: "linkedin", URL: "linkedin.com/in/other"}},
	}}
	adapter := enrichment.NewPeopleData(api)
	candidate := &profile.Candidate{ID: "pdl-1", Name: "Jensen Huang", Attributes: map[string]string{"pdl_id": "pdl-1"}}
	subject := enrichment.NewSubject(profile.Query{Text: "jensen"}, candidate)
	if !adapter.Applies(subject) {
		t.Fatal("expected adapter to apply with a record id")
	}
	result, err := adapter.Enrich(context.Background(), subject)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if api.got.ID != "pdl-1" {
		t.Fatalf("expected lookup by record id, got %+v", api.got)
	}
	if result.Basic.Occupation != "ceo" || result.Basic.Company != "nvidia" {
		t.Fatalf("unexpected basic info %+v", result.Basic)
	}
	if len(result.Socials) != 2 || result.Socials[0].Handle != "jenhsunhuang" {
		t.Fatalf("expected one entry per platform, got %+v", result.Socials)
	}
}

func TestPeopleDataDoesNotApplyWithoutIdentifiers(t *testing.T) {
	adapter := enrichment.NewPeopleData(&stubPeople{})
	if adapter.Applies(enrichment.NewSubject(profile.Query{Text: "Ada"}, nil)) {
		t.Fatal("expected adapter to be skipped")
	}
}

const newsFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>news</title>
<item>
  <title>Jensen Huang unveils new chips - Example Times</title>
  <link>https://news.example/chips</link>
  <description>&lt;a href="https://news.example/chips"&gt;Jensen Huang unveils new chips&lt;/a&gt; at the keynote</description>
  <pubDate>Mon, 03 Jun 2024 10:00:00 GMT</pubDate>
</item>
<item>
  <title>Chip stocks rally - Market Daily</title>
  <link>https://news.example/stocks</link>
  <description>Semiconductors rose on Monday.</description>
</item>
</channel></rss>`

func TestNewsKeepsItemsAboutThePerson(t *testing.T) {
	queries := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(newsFeed))
	}))
	defer srv.Close()

	adapter := enrichment.NewNews(srv.URL+"/rss/search", 5, time.Second)
	result, err := adapter.Enrich(context.Background(), enrichment.NewSubject(profile.Query{Text: "Jensen Huang"}, nil))
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if gotQuery := <-queries; gotQuery != `"Jensen Huang"` {
		t.Fatalf("unexpected feed query %q", gotQuery)
	}
	if len(result.Mentions) != 1 {
		t.Fatalf("expected one relevant mention, got %+v", result.Mentions)
	}
	m := result.Mentions[0]
	if m.Title != "Jensen Huang unveils new chips" || m.Source != "Example Times" || m.PublishedAt == nil {
		t.Fatalf("unexpected mention %+v", m)
	}
	if strings.Contains(m.Description, "<") {
		t.Fatalf("expected markup stripped, got %q", m.Description)
	}
}

func TestNewsSkipsBareHandles(t *testing.T) {
	adapter := enrichment.NewNews("https://news.example/rss", 5, time.Second)
	if adapter.Applies(enrichment.NewSubject(profile.Query{Text: "@jensen"}, nil)) {
		t.Fatal("expected handle-only subject to be skipped")
	}
}

const personalPage = `<html><head>
<title>Ada Lovelace</title>
<meta property="og:description" content="  Mathematician and   writer. ">
<meta property="og:image" content="/img/ada.jpg">
</head><body>
<a href="https://twitter.com/ada">Twitter</a>
<a href="https://twitter.com/ada_alt">Alt</a>
<a href="/about">About</a>
</body></html>`

func TestPageMetaReadsOpenGraphAndProfileLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(personalPage))
	}))
	defer srv.Close()

	adapter := enrichment.NewPageMeta(2, time.Second)
	subject := enrichment.NewSubject(profile.Query{Text: "Ada"}, nil)
	subject.Links = []string{srv.URL + "/missing", srv.URL + "/"}
	result, err := adapter.Enrich(context.Background(), subject)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if result.Basic.Bio != "Mathematician and writer." {
		t.Fatalf("unexpected bio %q", result.Basic.Bio)
	}
	if len(result.Images) != 1 || result.Images[0].URL != srv.URL+"/img/ada.jpg" || result.Images[0].Caption != "Ada Lovelace" {
		t.Fatalf("unexpected images %+v", result.Images)
	}
	if len(result.Socials) != 1 || result.Socials[0].Handle != "ada" {
		t.Fatalf("expected first twitter link only, got %+v", result.Socials)
	}
}

func TestPageMetaFailsWhenNoPageLoads(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	subject := enrichment.Subject{Links: []string{srv.URL}}
	if _, err := enrichment.NewPageMeta(2, time.Second).Enrich(context.Background(), subject); err == nil {
		t.Fatal("expected error when every page fails")
	}
}

func TestIdentifierFromURL(t *testing.T) {
	cases := []struct {
		raw      string
		platform string
		handle   string
	}{
		{"https://www.instagram.com/jensen.huang/", "instagram", "jensen.huang"},
		{"x.com/nvidia_jensen?s=20", "twitter", "nvidia_jensen"},
		{"https://www.linkedin.com/in/jenhsunhuang", "linkedin", "jenhsunhuang"},
		{"https://www.tiktok.com/@nvidia", "tiktok", "nvidia"},
		{"https://m.facebook.com/profile.php?id=42", "facebook", "42"},
		{"https://www.youtube.com/@NVIDIA", "youtube", "NVIDIA"},
	}
	for _, tc := range cases {
		id, ok := enrichment.IdentifierFromURL(tc.raw)
		if !ok || id.Platform != tc.platform || id.Handle != tc.handle {
			t.Fatalf("%s: got %+v", tc.raw, id)
		}
	}
	if _, ok := enrichment.IdentifierFromURL("https://example.com/ada"); ok {
		t.Fatal("expected unknown host to be rejected")
	}
}

func TestParseCount(t *testing.T) {
	cases := map[string]int64{"1234": 1234, "1,234": 1234, "1.2M": 1200000, "15K+": 15000, "": 0, "lots": 0}
	for raw, want := range cases {
		if got := enrichment.ParseCount(raw); got != want {
			t.Fatalf("%q: got %d want %d", raw, got, want)
		}
	}
}
