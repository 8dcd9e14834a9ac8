package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"dossier/internal/httpclient"
	"dossier/internal/profile"
)

// SourceGoogleImages tags fallback images.
const SourceGoogleImages = "google_images"

const (
	defaultGoogleImagesURL = "https://www.googleapis.com/customsearch/v1"
	// googlePageSize is the Custom Search API's maximum page size.
	googlePageSize   = 10
	existenceWorkers = 4
)

// Discoverer finds replacement images for a person when none of the
// collected ones could be stored.
type Discoverer interface {
	Discover(ctx context.Context, query string, limit int) ([]profile.ImageRef, error)
}

// GoogleImages searches Google Custom Search for face photos and keeps only
// results that still resolve to an image.
type GoogleImages struct {
	apiKey     string
	engineID   string
	baseURL    string
	maxResults int
	httpClient *http.Client
}

var _ Discoverer = (*GoogleImages)(nil)

// GoogleImagesOption configures GoogleImages.
type GoogleImagesOption func(*GoogleImages)

// WithGoogleHTTPClient overrides the HTTP client used for search and checks.
func WithGoogleHTTPClient(client *http.Client) GoogleImagesOption {
	return func(g *GoogleImages) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// NewGoogleImages builds the fallback discoverer.
func NewGoogleImages(apiKey, engineID, baseURL string, maxResults int, timeout time.Duration, opts ...GoogleImagesOption) *GoogleImages {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultGoogleImagesURL
	}
	if maxResults <= 0 || maxResults > googlePageSize {
		maxResults = googlePageSize
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	g := &GoogleImages{
		apiKey:     strings.TrimSpace(apiKey),
		engineID:   strings.TrimSpace(engineID),
		baseURL:    baseURL,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Configured reports whether credentials are present.
func (g *GoogleImages) Configured() bool {
	return g != nil && g.apiKey != "" && g.engineID != ""
}

type searchResponse struct {
	Items []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
		Mime  string `json:"mime"`
		Image struct {
			ContextLink string `json:"contextLink"`
		} `json:"image"`
	} `json:"items"`
}

// Discover returns up to limit image references, in search order, whose URLs
// answer a HEAD request with 200 and an image content type.
func (g *GoogleImages) Discover(ctx context.Context, query string, limit int) ([]profile.ImageRef, error) {
	if !g.Configured() {
		return nil, errors.New("google images not configured")
	}
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.engineID)
	params.Set("q", query)
	params.Set("searchType", "image")
	params.Set("imgType", "face")
	params.Set("safe", "active")
	params.Set("num", strconv.Itoa(g.maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google images request: %w", err)
	}
	defer resp.Body.Close()
	body, err := httpclient.ReadBody(resp, "google images", 2<<20)
	if err != nil {
		return nil, err
	}
	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode google images response: %w", err)
	}

	refs := make([]profile.ImageRef, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		if link := strings.TrimSpace(item.Link); link != "" {
			refs = append(refs, profile.ImageRef{URL: link, Caption: strings.TrimSpace(item.Title)})
		}
	}

	alive := make([]bool, len(refs))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(existenceWorkers)
	for i, ref := range refs {
		grp.Go(func() error {
			alive[i] = g.exists(gctx, ref.URL)
			return nil
		})
	}
	_ = grp.Wait()

	out := make([]profile.ImageRef, 0, limit)
	for i, ref := range refs {
		if alive[i] {
			out = append(out, ref)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (g *GoogleImages) exists(ctx context.Context, rawURL string) bool {
	target, err := parseImageURL(rawURL)
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target.String(), nil)
	if err != nil {
		return false
	}
	setBrowserHeaders(req, target)
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK && isImage(resp.Header.Get("Content-Type"))
}
