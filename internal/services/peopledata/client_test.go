package peopledata_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dossier/internal/services/peopledata"
)

func TestBuildSQL(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	sql := peopledata.BuildSQL(peopledata.SearchParams{
		Name:     "Conan O'Brien",
		Location: "Los Angeles",
		Company:  "Team Coco",
		Age:      "62",
		Now:      now,
	})
	want := "SELECT * FROM person WHERE full_name='conan o''brien' AND location_name LIKE '%los angeles%' AND job_company_name LIKE '%team coco%' AND birth_year BETWEEN 1962 AND 1964"
	if sql != want {
		t.Fatalf("unexpected sql:\n got %s\nwant %s", sql, want)
	}
	if peopledata.BuildSQL(peopledata.SearchParams{Location: "x"}) != "" {
		t.Fatal("expected empty sql without a name")
	}
	if strings.Contains(peopledata.BuildSQL(peopledata.SearchParams{Name: "a", Age: "old"}), "birth_year") {
		t.Fatal("expected non-numeric age to be ignored")
	}
}

func TestSearchDecodesPeople(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/person/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "key" {
			t.Errorf("missing api key header")
		}
		if !strings.Contains(r.URL.Query().Get("sql"), "full_name='jensen huang'") {
			t.Errorf("unexpected sql %q", r.URL.Query().Get("sql"))
		}
		_, _ = w.Write([]byte(`{"status":200,"data":[{"id":"pdl-1","full_name":"jensen huang","job_title":"ceo","job_company_name":"nvidia","location_name":"santa clara, california","linkedin_url":"linkedin.com/in/jenhsunhuang","birth_year":1963}]}`))
	}))
	defer server.Close()

	client, err := peopledata.New("key", server.URL, time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	people, err := client.Search(context.Background(), peopledata.SearchParams{Name: "Jensen Huang"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(people) != 1 || people[0].ID != "pdl-1" {
		t.Fatalf("unexpected people: %#v", people)
	}
	if got := people[0].Headline(); got != "ceo at nvidia • santa clara, california" {
		t.Fatalf("unexpected headline %q", got)
	}
}

func TestSearchNotFoundIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":404,"error":{"type":"not_found"}}`))
	}))
	defer server.Close()

	client, _ := peopledata.New("key", server.URL, time.Second)
	people, err := client.Search(context.Background(), peopledata.SearchParams{Name: "Nobody"})
	if err != nil || len(people) != 0 {
		t.Fatalf("expected empty result, got %#v, %v", people, err)
	}
}

func TestEnrichByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pdl_id") != "pdl-1" {
			t.Errorf("expected pdl_id param, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"status":200,"data":{"id":"pdl-1","full_name":"jensen huang","education":[{"school":{"name":"stanford university"}},{"school":{"name":"oregon state university"}},{"school":{"name":"stanford university"}}],"profiles":[{"network":"twitter","username":"jensenhuang","url":"twitter.com/jensenhuang"}]}}`))
	}))
	defer server.Close()

	client, _ := peopledata.New("key", server.URL, time.Second)
	person, err := client.Enrich(context.Background(), peopledata.EnrichParams{ID: "pdl-1", ProfileURL: "ignored"})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if person == nil || len(person.Profiles) != 1 {
		t.Fatalf("unexpected person %#v", person)
	}
	if schools := person.Schools(); len(schools) != 2 {
		t.Fatalf("expected 2 distinct schools, got %v", schools)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := peopledata.New("", "http://example.invalid", 0); err == nil {
		t.Fatal("expected missing key error")
	}
}
