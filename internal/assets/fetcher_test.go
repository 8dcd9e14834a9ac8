package assets_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dossier/internal/assets"
	"dossier/internal/services"
	"dossier/internal/testsupport"
)

func newTestFetcher() *assets.Fetcher {
	return assets.NewFetcher(time.Second,
		assets.WithRetry(3, time.Millisecond),
		assets.WithSleeper(func(time.Duration) {}),
		assets.WithHostRate(0, 0),
	)
}

func TestFetchRetriesRateLimits(t *testing.T) {
	img := testsupport.PNG(t, 128, 128)
	var calls atomic.Int32
	var userAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		userAgent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	}))
	defer srv.Close()

	data, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(data) != len(img) {
		t.Fatalf("expected %d bytes, got %d", len(img), len(data))
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if ua, _ := userAgent.Load().(string); !strings.Contains(ua, "Mozilla/5.0") {
		t.Fatalf("expected browser user agent, got %q", ua)
	}
}

func TestFetchTerminalFailures(t *testing.T) {
	img := testsupport.PNG(t, 128, 128)
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"forbidden", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusForbidden) }},
		{"html page", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write(img)
		}},
		{"tracking pixel", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/gif")
			_, _ = w.Write([]byte("GIF89a"))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tc.handler(w, r)
			}))
			defer srv.Close()

			_, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/x")
			if !errors.Is(err, services.ErrAssetFetchFailure) {
				t.Fatalf("expected asset fetch failure, got %v", err)
			}
			if calls.Load() != 1 {
				t.Fatalf("terminal failure retried: %d calls", calls.Load())
			}
		})
	}
}

func TestFetchRetriesSlowResponses(t *testing.T) {
	img := testsupport.PNG(t, 128, 128)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	}))
	defer srv.Close()

	fetcher := assets.NewFetcher(100*time.Millisecond,
		assets.WithRetry(3, time.Millisecond),
		assets.WithSleeper(func(time.Duration) {}),
		assets.WithHostRate(0, 0),
	)
	if _, err := fetcher.Fetch(context.Background(), srv.URL+"/slow.png"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected a retry after the timeout, got %d calls", calls.Load())
	}
}

func TestFetchRejectsNonHTTPURLs(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/a.png", "data:image/png;base64,AAAA"} {
		if _, err := newTestFetcher().Fetch(context.Background(), raw); !errors.Is(err, services.ErrAssetFetchFailure) {
			t.Fatalf("%q: expected asset fetch failure, got %v", raw, err)
		}
	}
}
