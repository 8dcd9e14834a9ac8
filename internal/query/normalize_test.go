package query_test

import (
	"errors"
	"testing"

	"dossier/internal/profile"
	"dossier/internal/query"
	"dossier/internal/services"
)

func TestNormalizeCollapsesCaseAndWhitespace(t *testing.T) {
	a, err := query.Normalize(profile.Query{Text: "  Jensen   HUANG ", Location: "Santa Clara"})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	b, err := query.Normalize(profile.Query{Text: "jensen huang", Location: " santa   clara"})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if a != b {
		t.Fatalf("expected equal keys, got %q and %q", a, b)
	}
	if a != "jensen huang|location=santa clara" {
		t.Fatalf("unexpected key %q", a)
	}
}

func TestNormalizeFixedDisambiguatorOrder(t *testing.T) {
	key, err := query.Normalize(profile.Query{Text: "Ada", Age: "36", Company: "Analytical Engines", Location: "London"})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	want := profile.CacheKey("ada|location=london|company=analytical engines|age=36")
	if key != want {
		t.Fatalf("got %q want %q", key, want)
	}
}

func TestNormalizeStripsHandlePrefixAndAppendsCandidate(t *testing.T) {
	key, err := query.Normalize(profile.Query{Text: "@NVIDIA", CandidateID: "pdl-42"})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if key != "nvidia::pdl-42" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestNormalizeEscapesSeparators(t *testing.T) {
	pairs := []struct {
		name string
		a, b profile.Query
	}{
		{
			name: "field separator in primary",
			a:    profile.Query{Text: "alice|location=nyc"},
			b:    profile.Query{Text: "alice", Location: "nyc"},
		},
		{
			name: "candidate separator in company",
			a:    profile.Query{Text: "bob", Company: "x::abc"},
			b:    profile.Query{Text: "bob", Company: "x", CandidateID: "abc"},
		},
		{
			name: "escaped form entered literally",
			a:    profile.Query{Text: "alice%7clocation%3dnyc"},
			b:    profile.Query{Text: "alice|location=nyc"},
		},
	}
	for _, tc := range pairs {
		t.Run(tc.name, func(t *testing.T) {
			a, err := query.Normalize(tc.a)
			if err != nil {
				t.Fatalf("Normalize returned error: %v", err)
			}
			b, err := query.Normalize(tc.b)
			if err != nil {
				t.Fatalf("Normalize returned error: %v", err)
			}
			if a == b {
				t.Fatalf("distinct queries share key %q", a)
			}
		})
	}

	key, _ := query.Normalize(profile.Query{Text: "bob", Company: "x::abc"})
	if key != "bob|company=x%3a%3aabc" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestNormalizeFoldsUnicode(t *testing.T) {
	a, _ := query.Normalize(profile.Query{Text: "Ｊｏｓé"})
	b, _ := query.Normalize(profile.Query{Text: "josé"})
	if a != b {
		t.Fatalf("expected width and case folding, got %q vs %q", a, b)
	}
}

func TestNormalizeRejectsEmptyPrimary(t *testing.T) {
	for _, text := range []string{"", "   ", "@", " @ "} {
		_, err := query.Normalize(profile.Query{Text: text, Location: "Paris"})
		if !errors.Is(err, services.ErrInvalidQuery) {
			t.Fatalf("expected invalid query for %q, got %v", text, err)
		}
	}
}

func TestHandle(t *testing.T) {
	if h, ok := query.Handle(profile.Query{Text: " @jensenhuang "}); !ok || h != "jensenhuang" {
		t.Fatalf("unexpected handle %q %v", h, ok)
	}
	if _, ok := query.Handle(profile.Query{Text: "Jensen Huang"}); ok {
		t.Fatal("expected plain name to have no handle")
	}
	if _, ok := query.Handle(profile.Query{Text: "@two words"}); ok {
		t.Fatal("expected handle with spaces to be rejected")
	}
}
