// Package serpapi wraps the SerpAPI Google web and image search engines.
package serpapi

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

	"dossier/internal/httpclient"
)

const (
	serviceName    = "serpapi"
	defaultTimeout = 20 * time.Second
	resultsPerPage = 10
)

// KnowledgeGraph is the entity panel Google shows for well-known people.
type KnowledgeGraph struct {
	Title        string `json:"title"`
	Type         string `json:"type"`
	Description  string `json:"description"`
	Website      string `json:"website"`
	HeaderImages []struct {
		Image string `json:"image"`
	} `json:"header_images"`
	Image string `json:"image"`
}

// ImageURL returns the first header image or the panel thumbnail.
func (kg KnowledgeGraph) ImageURL() string {
	for _, h := range kg.HeaderImages {
		if strings.TrimSpace(h.Image) != "" {
			return h.Image
		}
	}
	return kg.Image
}

// OrganicResult is one web result.
type OrganicResult struct {
	Position  int    `json:"position"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	Snippet   string `json:"snippet"`
	Thumbnail string `json:"thumbnail"`
	Source    string `json:"source"`
}

// RelatedSearch is a "people also search for" suggestion.
type RelatedSearch struct {
	Query     string `json:"query"`
	Thumbnail string `json:"thumbnail"`
}

// SearchResult is one page of Google web results.
type SearchResult struct {
	KnowledgeGraph  *KnowledgeGraph `json:"knowledge_graph"`
	OrganicResults  []OrganicResult `json:"organic_results"`
	RelatedSearches []RelatedSearch `json:"related_searches"`
	Error           string          `json:"error"`
}

// ImageResult is one Google Images hit.
type ImageResult struct {
	Position  int    `json:"position"`
	Title     string `json:"title"`
	Original  string `json:"original"`
	Thumbnail string `json:"thumbnail"`
	Link      string `json:"link"`
	Source    string `json:"source"`
}

// Searcher is the SerpAPI surface used by discovery.
type Searcher interface {
	Search(ctx context.Context, query string, page int) (*SearchResult, error)
	Images(ctx context.Context, query string, limit int) ([]ImageResult, error)
}

// Client provides access to SerpAPI.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	policy     httpclient.Policy
}

var _ Searcher = (*Client)(nil)

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

// New creates a SerpAPI client.
func New(apiKey, baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("serpapi api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("serpapi base url required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		policy: httpclient.Policy{
			Attempts: 2,
			Backoff:  httpclient.Backoff{Base: time.Second, Max: 5 * time.Second},
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Search fetches one page (0-based) of Google web results.
func (c *Client) Search(ctx context.Context, query string, page int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	params := c.baseParams("google", query)
	params.Set("num", strconv.Itoa(resultsPerPage))
	if page > 0 {
		params.Set("start", strconv.Itoa(page*resultsPerPage))
	}
	var result SearchResult
	if err := c.get(ctx, params, &result); err != nil {
		return nil, err
	}
	if result.Error != "" && len(result.OrganicResults) == 0 && result.KnowledgeGraph == nil {
		// SerpAPI reports "Google hasn't returned any results" as a body error.
		if strings.Contains(strings.ToLower(result.Error), "hasn't returned any results") {
			return &SearchResult{}, nil
		}
		return nil, fmt.Errorf("serpapi search: %s", result.Error)
	}
	return &result, nil
}

// Images fetches up to limit Google Images results.
func (c *Client) Images(ctx context.Context, query string, limit int) ([]ImageResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	if limit <= 0 {
		limit = 1
	}
	params := c.baseParams("google_images", query)
	var payload struct {
		ImagesResults []ImageResult `json:"images_results"`
	}
	if err := c.get(ctx, params, &payload); err != nil {
		return nil, err
	}
	results := payload.ImagesResults
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (c *Client) baseParams(engine, query string) url.Values {
	params := url.Values{}
	params.Set("engine", engine)
	params.Set("q", query)
	params.Set("api_key", c.apiKey)
	params.Set("google_domain", "google.com")
	params.Set("gl", "us")
	params.Set("hl", "en")
	return params
}

func (c *Client) get(ctx context.Context, params url.Values, target any) error {
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parse serpapi url: %w", err)
	}
	endpoint.RawQuery = params.Encode()
	return c.policy.Do(ctx, func(int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s request: %w", serviceName, err)
		}
		defer resp.Body.Close()
		body, err := httpclient.ReadBody(resp, serviceName, 0)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, target); err != nil {
			return fmt.Errorf("decode %s response: %w", serviceName, err)
		}
		return nil
	})
}
