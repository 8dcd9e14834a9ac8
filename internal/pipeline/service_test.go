package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dossier/internal/assets"
	"dossier/internal/enrichment"
	"dossier/internal/logging"
	"dossier/internal/pipeline"
	"dossier/internal/profile"
	"dossier/internal/profilecache"
	"dossier/internal/services"
	"dossier/internal/testsupport"
)

type stubEnricher struct {
	mu       sync.Mutex
	subjects []enrichment.Subject
	gate     chan struct{}
	fail     bool
}

func (s *stubEnricher) Run(_ context.Context, subject enrichment.Subject) []profile.EnrichmentResult {
	s.mu.Lock()
	s.subjects = append(s.subjects, subject)
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if s.fail {
		return []profile.EnrichmentResult{{
			Source: enrichment.SourceWebSummary,
			Kind:   profile.KindWebSummary,
			Status: profile.StatusFailed,
			Err:    services.SourceFailure(enrichment.SourceWebSummary, services.ErrAdapterError, errors.New("model down")),
		}}
	}
	return []profile.EnrichmentResult{{
		Source:  enrichment.SourceWebSummary,
		Kind:    profile.KindWebSummary,
		Status:  profile.StatusSuccess,
		Basic:   profile.BasicInfo{Name: subject.Name},
		Summary: "Mathematician.",
	}}
}

func (s *stubEnricher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subjects)
}

func (s *stubEnricher) last() enrichment.Subject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subjects[len(s.subjects)-1]
}

type stubResolver struct {
	mu      sync.Mutex
	list    []profile.Candidate
	queries []profile.Query
}

func (s *stubResolver) Resolve(_ context.Context, q profile.Query, _ []byte) ([]profile.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	return s.list, nil
}

type stubAssets struct {
	mu         sync.Mutex
	references [][]byte
}

func (s *stubAssets) Process(_ context.Context, _ *profile.Profile, reference []byte) assets.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.references = append(s.references, reference)
	return assets.Report{}
}

func (s *stubAssets) seen() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.references...)
}

func waitForCalls(t *testing.T, enricher *stubEnricher, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for enricher.calls() < want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d builds to start, saw %d", want, enricher.calls())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newService(t *testing.T, enricher pipeline.Enricher, opts ...pipeline.Option) *pipeline.Service {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cache := profilecache.New(testsupport.MustOpenStore(t, cfg), logging.NewNop())
	return pipeline.New(cache, enricher, logging.NewNop(), opts...)
}

func adaRequest() pipeline.Request {
	return pipeline.Request{Query: profile.Query{Text: "Ada Lovelace"}}
}

func TestSearchServesStoredProfile(t *testing.T) {
	enricher := &stubEnricher{}
	svc := newService(t, enricher)

	first, err := svc.Search(context.Background(), adaRequest())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if first.Cached || first.Profile.ID == "" || first.Profile.Key != "ada lovelace" {
		t.Fatalf("unexpected first response %+v", first)
	}

	req := adaRequest()
	req.Query.Text = "  ada   LOVELACE "
	second, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !second.Cached || second.Profile.ID != first.Profile.ID {
		t.Fatalf("expected stored profile, got %+v", second)
	}
	if enricher.calls() != 1 {
		t.Fatalf("expected one build, got %d", enricher.calls())
	}
	if stored, ok := svc.Profile(context.Background(), "ada lovelace"); !ok || stored.ID != first.Profile.ID {
		t.Fatalf("expected profile lookup by key, got %+v", stored)
	}
}

func TestConcurrentSearchesShareOneBuild(t *testing.T) {
	enricher := &stubEnricher{gate: make(chan struct{})}
	svc := newService(t, enricher)

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.Search(context.Background(), adaRequest())
			errs[i] = err
			if resp.Profile != nil {
				ids[i] = resp.Profile.ID
			}
		}()
	}
	close(enricher.gate)
	wg.Wait()

	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if ids[i] == "" || ids[i] != ids[0] {
			t.Fatalf("callers saw different profiles: %v", ids)
		}
	}
	if enricher.calls() != 1 {
		t.Fatalf("expected a single build, got %d", enricher.calls())
	}
}

func TestReferenceAndRefreshRebuild(t *testing.T) {
	enricher := &stubEnricher{}
	processor := &stubAssets{}
	svc := newService(t, enricher, pipeline.WithAssets(processor))

	first, err := svc.Search(context.Background(), adaRequest())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	withReference := adaRequest()
	withReference.Reference = []byte("face")
	second, err := svc.Search(context.Background(), withReference)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if second.Cached || enricher.calls() != 2 {
		t.Fatalf("reference photo must bypass the stored profile: %+v, %d builds", second, enricher.calls())
	}
	if got := processor.references[len(processor.references)-1]; string(got) != "face" {
		t.Fatalf("reference not handed to the asset stage: %q", got)
	}

	refresh := adaRequest()
	refresh.Refresh = true
	third, err := svc.Search(context.Background(), refresh)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if third.Cached || enricher.calls() != 3 {
		t.Fatalf("refresh must rebuild: %+v", third)
	}
	if third.Profile.ID != first.Profile.ID || !third.Profile.CreatedAt.Equal(first.Profile.CreatedAt) {
		t.Fatalf("refresh changed identity: %s/%s vs %s/%s",
			third.Profile.ID, third.Profile.CreatedAt, first.Profile.ID, first.Profile.CreatedAt)
	}
	if third.Profile.UpdatedAt.Before(first.Profile.UpdatedAt) {
		t.Fatalf("updated_at went backwards")
	}
}

func TestSearchSurfacesBuildFailure(t *testing.T) {
	svc := newService(t, &stubEnricher{fail: true})
	_, err := svc.Search(context.Background(), adaRequest())
	if !errors.Is(err, services.ErrBuildFailure) {
		t.Fatalf("expected build failure, got %v", err)
	}
	if _, ok := svc.Profile(context.Background(), "ada lovelace"); ok {
		t.Fatal("failed build must not be stored")
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	enricher := &stubEnricher{}
	svc := newService(t, enricher)
	for _, text := range []string{"", "   ", "@"} {
		if _, err := svc.Search(context.Background(), pipeline.Request{Query: profile.Query{Text: text}}); !errors.Is(err, services.ErrInvalidQuery) {
			t.Fatalf("%q: expected invalid query, got %v", text, err)
		}
	}
	if _, err := svc.Candidates(context.Background(), profile.Query{Text: " "}, nil); !errors.Is(err, services.ErrInvalidQuery) {
		t.Fatalf("expected invalid query from Candidates, got %v", err)
	}
	if enricher.calls() != 0 {
		t.Fatal("invalid query reached enrichment")
	}
}

func TestSearchSelectsCandidate(t *testing.T) {
	resolver := &stubResolver{list: []profile.Candidate{
		{ID: "ada-lovelace", Name: "Ada Lovelace", Rank: 1},
		{ID: "ada-lovelace-2", Name: "Ada King", Rank: 2},
	}}
	enricher := &stubEnricher{}
	svc := newService(t, enricher, pipeline.WithResolver(resolver))

	resp, err := svc.Search(context.Background(), adaRequest())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := enricher.last().Candidate; got == nil || got.ID != "ada-lovelace" {
		t.Fatalf("expected top-ranked candidate, got %+v", got)
	}
	if resp.Profile.Key != "ada lovelace" {
		t.Fatalf("auto-selected candidate must not change the key: %q", resp.Profile.Key)
	}

	chosen := adaRequest()
	chosen.Query.CandidateID = "ada-lovelace-2"
	resp, err = svc.Search(context.Background(), chosen)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := enricher.last().Candidate; got == nil || got.ID != "ada-lovelace-2" {
		t.Fatalf("expected chosen candidate, got %+v", got)
	}
	if resp.Profile.Key != "ada lovelace::ada-lovelace-2" {
		t.Fatalf("unexpected key %q", resp.Profile.Key)
	}
	for _, q := range resolver.queries {
		if q.CandidateID != "" {
			t.Fatalf("resolver saw a candidate id: %+v", q)
		}
	}
}

func TestHandleQuerySkipsResolution(t *testing.T) {
	resolver := &stubResolver{list: []profile.Candidate{{ID: "someone", Name: "Someone"}}}
	enricher := &stubEnricher{}
	svc := newService(t, enricher, pipeline.WithResolver(resolver))

	if _, err := svc.Search(context.Background(), pipeline.Request{Query: profile.Query{Text: "@ada_codes"}}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resolver.queries) != 0 {
		t.Fatalf("handle query ran candidate resolution: %+v", resolver.queries)
	}
	subject := enricher.last()
	if subject.Candidate != nil {
		t.Fatalf("unexpected candidate %+v", subject.Candidate)
	}
	if id, ok := subject.Identifier("instagram"); !ok || id.Handle != "ada_codes" {
		t.Fatalf("expected seeded instagram handle, got %+v", subject.Identifiers)
	}
}

func TestCandidatesWithoutResolver(t *testing.T) {
	svc := newService(t, &stubEnricher{})
	list, err := svc.Candidates(context.Background(), profile.Query{Text: "Ada"}, nil)
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v, %v", list, err)
	}
}

func TestReferenceSearchDoesNotJoinUnfilteredBuild(t *testing.T) {
	enricher := &stubEnricher{gate: make(chan struct{})}
	processor := &stubAssets{}
	svc := newService(t, enricher, pipeline.WithAssets(processor))

	type result struct {
		resp pipeline.Response
		err  error
	}
	plainDone := make(chan result, 1)
	go func() {
		resp, err := svc.Search(context.Background(), adaRequest())
		plainDone <- result{resp, err}
	}()
	waitForCalls(t, enricher, 1)

	refDone := make(chan result, 1)
	go func() {
		req := adaRequest()
		req.Reference = []byte("face")
		resp, err := svc.Search(context.Background(), req)
		refDone <- result{resp, err}
	}()
	waitForCalls(t, enricher, 2)
	close(enricher.gate)

	plain := <-plainDone
	withRef := <-refDone
	if plain.err != nil || withRef.err != nil {
		t.Fatalf("Search failed: %v / %v", plain.err, withRef.err)
	}
	if withRef.resp.Shared || plain.resp.Shared {
		t.Fatalf("searches with and without a reference must not share a build")
	}

	var filtered, unfiltered int
	for _, ref := range processor.seen() {
		switch string(ref) {
		case "face":
			filtered++
		case "":
			unfiltered++
		}
	}
	if filtered != 1 || unfiltered != 1 {
		t.Fatalf("expected one filtered and one unfiltered asset pass, got %d and %d", filtered, unfiltered)
	}
}
