package apify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dossier/internal/services/apify"
)

func newClient(t *testing.T, handler http.HandlerFunc) *apify.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := apify.New("token", server.URL, time.Second, map[string]string{
		"instagram": "apify~instagram-profile-scraper",
		"twitter":   "web.harvester~twitter-scraper",
		"linkedin":  "apimaestro~linkedin-profile-detail",
		"tiktok":    "clockworks~tiktok-profile-scraper",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestScrapeInstagramMapsProfileAndCapsPhotos(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/acts/apify~instagram-profile-scraper/run-sync-get-dataset-items") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("token") != "token" {
			t.Errorf("missing token")
		}
		var input map[string]any
		_ = json.NewDecoder(r.Body).Decode(&input)
		if usernames, _ := input["usernames"].([]any); len(usernames) != 1 || usernames[0] != "jensenhuang" {
			t.Errorf("unexpected input %v", input)
		}
		posts := make([]map[string]string, 0, 12)
		for i := 0; i < 12; i++ {
			posts = append(posts, map[string]string{"displayUrl": "https://cdn.example/p" + string(rune('a'+i)) + ".jpg", "caption": strings.Repeat("x", 300)})
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"username":       "jensenhuang",
			"fullName":       "Jensen Huang",
			"biography":      "CEO",
			"followersCount": 1200,
			"verified":       true,
			"profilePicUrl":  "https://cdn.example/pic.jpg",
			"latestPosts":    posts,
		}})
	})

	account, err := client.Scrape(context.Background(), "instagram", "jensenhuang")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if account.URL != "https://instagram.com/jensenhuang" || !account.Verified || account.Followers != 1200 {
		t.Fatalf("unexpected account %+v", account)
	}
	if len(account.Photos) != 10 {
		t.Fatalf("expected 10 photos, got %d", len(account.Photos))
	}
	if got := len([]rune(account.Photos[0].Caption)); got != 200 {
		t.Fatalf("expected caption capped at 200 runes, got %d", got)
	}
}

func TestScrapeTwitterUsesFirstTweetUser(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"full_text": "GTC keynote", "user": {"screen_name": "nvidia", "name": "NVIDIA", "followers_count": 42, "profile_image_url_https": "https://pbs.example/n.jpg"},
			 "entities": {"media": [{"type": "photo", "media_url_https": "https://pbs.example/1.jpg"}, {"type": "video", "media_url_https": "https://pbs.example/v.mp4"}]}},
			{"full_text": "second", "user": {"screen_name": "nvidia"}}
		]`))
	})

	account, err := client.Scrape(context.Background(), "twitter", "nvidia")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if account.Handle != "nvidia" || account.URL != "https://twitter.com/nvidia" || account.ProfilePic == "" {
		t.Fatalf("unexpected account %+v", account)
	}
	if len(account.Photos) != 1 || account.Photos[0].Caption != "GTC keynote" {
		t.Fatalf("unexpected photos %+v", account.Photos)
	}
}

func TestScrapeLinkedInExtractsCareer(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"publicIdentifier": "jenhsunhuang", "url": "https://www.linkedin.com/in/jenhsunhuang", "firstName": "Jensen", "lastName": "Huang",
			"headline": "Founder and CEO", "location": "Santa Clara", "education": [{"schoolName": "Stanford University"}], "experience": [{"companyName": "NVIDIA"}]}]`))
	})

	account, err := client.Scrape(context.Background(), "linkedin", "https://www.linkedin.com/in/jenhsunhuang")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if account.DisplayName != "Jensen Huang" || account.Company != "NVIDIA" || len(account.Education) != 1 {
		t.Fatalf("unexpected account %+v", account)
	}
}

func TestScrapeGenericFallsBackToAuthorMeta(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"authorMeta": {"name": "nvidia", "nickName": "NVIDIA", "fans": 900, "avatar": "https://tt.example/a.jpg", "verified": true}}]`))
	})

	account, err := client.Scrape(context.Background(), "tiktok", "nvidia")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if account.Handle != "nvidia" || account.Followers != 900 || !account.Verified || account.ProfilePic == "" {
		t.Fatalf("unexpected account %+v", account)
	}
}

func TestScrapeEmptyDatasetFails(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	if _, err := client.Scrape(context.Background(), "instagram", "nobody"); err == nil {
		t.Fatal("expected error for empty dataset")
	}
}

func TestScrapeUnsupportedPlatform(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})
	if client.Supports("myspace") {
		t.Fatal("expected myspace to be unsupported")
	}
	_, err := client.Scrape(context.Background(), "myspace", "tom")
	if !errors.Is(err, apify.ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
}
