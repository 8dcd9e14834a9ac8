package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dossier/internal/config"
	"dossier/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckEndpoint(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ok.Close()
	if result := CheckEndpoint(context.Background(), "svc", ok.URL); !result.Passed {
		t.Fatalf("expected 404 to count as reachable, got %s", result.Detail)
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()
	if result := CheckEndpoint(context.Background(), "svc", broken.URL); result.Passed {
		t.Fatal("expected failure for 502")
	}

	if result := CheckEndpoint(context.Background(), "svc", ""); result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckLLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "LLM", config.LLMConfig{APIKey: "good", BaseURL: srv.URL, Model: "m"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	result = CheckLLM(context.Background(), "LLM", config.LLMConfig{APIKey: "bad", BaseURL: srv.URL, Model: "m"})
	if result.Passed {
		t.Fatal("expected failure for rejected key")
	}
	result = CheckLLM(context.Background(), "LLM", config.LLMConfig{})
	if result.Passed || result.Detail != "API key missing" {
		t.Fatalf("expected missing key failure, got %+v", result)
	}
}

func TestCheckStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.db")
	result := CheckStore(context.Background(), path)
	if !result.Passed {
		t.Fatalf("expected store check to pass, got %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "0 profiles") {
		t.Fatalf("expected profile count in detail, got %q", result.Detail)
	}
}

func TestProviderStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.GoogleImages.APIKey = "key"
	cfg.GoogleImages.SearchEngineID = ""

	byName := map[string]Result{}
	for _, r := range ProviderStatus(cfg) {
		byName[r.Name] = r
	}
	if r := byName["SerpAPI"]; !r.Passed || !strings.HasPrefix(r.Detail, "Disabled") {
		t.Fatalf("expected unconfigured SerpAPI to be disabled, got %+v", r)
	}
	if r := byName["Google Images"]; r.Passed {
		t.Fatalf("expected half-configured Google Images to fail, got %+v", r)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_HealthyConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithLLM(srv.URL))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	if Failed(results) {
		for _, r := range results {
			if !r.Passed {
				t.Errorf("check %q failed: %s", r.Name, r.Detail)
			}
		}
	}
	found := false
	for _, r := range results {
		if r.Name == "Profile database" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected profile database check in results")
	}
}
