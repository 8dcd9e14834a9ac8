// Package apify runs Apify profile scraper actors synchronously and maps their
// dataset items onto a platform-neutral account record.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dossier/internal/httpclient"
)

const (
	serviceName    = "apify"
	defaultTimeout = 20 * time.Second
)

// ErrUnsupportedPlatform is returned when no actor is configured for a platform.
var ErrUnsupportedPlatform = errors.New("no scraper configured for platform")

// Scraper is the capability consumed by the social scrape adapter.
type Scraper interface {
	Scrape(ctx context.Context, platform, identifier string) (*Account, error)
	Supports(platform string) bool
}

// Client calls the Apify run-sync-get-dataset-items endpoint.
type Client struct {
	token      string
	baseURL    string
	timeout    time.Duration
	actors     map[string]string
	httpClient *http.Client
}

var _ Scraper = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates an Apify client. actors maps platform names to actor IDs
// ("owner~name").
func New(token, baseURL string, timeout time.Duration, actors map[string]string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("apify api token required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("apify base url required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	copied := make(map[string]string, len(actors))
	for platform, actor := range actors {
		platform = strings.ToLower(strings.TrimSpace(platform))
		actor = strings.TrimSpace(actor)
		if platform != "" && actor != "" {
			copied[platform] = actor
		}
	}
	client := &Client{
		token:   token,
		baseURL: baseURL,
		timeout: timeout,
		actors:  copied,
		// Actor runs are bounded server-side; leave headroom for dataset transfer.
		httpClient: &http.Client{Timeout: timeout + 10*time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Supports reports whether an actor is configured for platform.
func (c *Client) Supports(platform string) bool {
	_, ok := c.actors[strings.ToLower(platform)]
	return ok
}

// Scrape runs the platform's actor for identifier (a handle or profile URL)
// and converts the dataset into an Account. An empty dataset is an error.
func (c *Client) Scrape(ctx context.Context, platform, identifier string) (*Account, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	actor, ok := c.actors[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, errors.New("identifier must not be empty")
	}
	items, err := c.RunActor(ctx, actor, actorInput(platform, identifier))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s scrape returned no items for %q", platform, identifier)
	}
	account, err := parseAccount(platform, items)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// RunActor starts actor synchronously and returns its dataset items.
func (c *Client) RunActor(ctx context.Context, actor string, input any) ([]json.RawMessage, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode actor input: %w", err)
	}
	endpoint := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items", c.baseURL, url.PathEscape(actor))
	params := url.Values{}
	params.Set("token", c.token)
	params.Set("timeout", strconv.Itoa(int(c.timeout.Seconds())))
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+params.Encode(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", serviceName, err)
	}
	defer resp.Body.Close()

	body, err := httpclient.ReadBody(resp, serviceName, 32<<20)
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode %s dataset: %w", serviceName, err)
	}
	return items, nil
}

func actorInput(platform, identifier string) map[string]any {
	switch platform {
	case "instagram":
		return map[string]any{"usernames": []string{identifier}, "resultsLimit": 50}
	case "twitter":
		return map[string]any{"twitterHandles": []string{identifier}, "maxItems": 20}
	case "linkedin":
		return map[string]any{"linkedinUrl": identifier, "maxPosts": 5}
	case "tiktok":
		return map[string]any{"profiles": []string{identifier}}
	default:
		return map[string]any{"startUrls": []map[string]string{{"url": identifier}}}
	}
}
