// Package similarity calls the face comparison service that scores whether two
// images depict the same person.
package similarity

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"dossier/internal/httpclient"
)

const (
	serviceName    = "similarity"
	defaultTimeout = 15 * time.Second
	// matchThreshold is the minimum face match confidence the service reports.
	matchThreshold = 70
)

// Comparer scores two normalized images on a 0..100 scale.
type Comparer interface {
	Compare(ctx context.Context, reference, target []byte) (float64, error)
}

// Client talks to the comparison endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ Comparer = (*Client)(nil)

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

// New creates a comparison client. requestsPerSecond <= 0 disables throttling.
func New(baseURL, apiKey string, timeout time.Duration, requestsPerSecond float64, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("similarity base url required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond))
	}
	client := &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type compareRequest struct {
	Source    string  `json:"source_image"`
	Target    string  `json:"target_image"`
	Threshold float64 `json:"similarity_threshold"`
}

type compareResponse struct {
	Similarity  *float64 `json:"similarity"`
	FaceMatches []struct {
		Similarity float64 `json:"similarity"`
	} `json:"face_matches"`
}

// Compare returns the best face match score between reference and target.
// No matching face is a score of 0, not an error.
func (c *Client) Compare(ctx context.Context, reference, target []byte) (float64, error) {
	if len(reference) == 0 || len(target) == 0 {
		return 0, errors.New("compare requires both images")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%s rate limit: %w", serviceName, err)
	}
	payload, err := json.Marshal(compareRequest{
		Source:    base64.StdEncoding.EncodeToString(reference),
		Target:    base64.StdEncoding.EncodeToString(target),
		Threshold: matchThreshold,
	})
	if err != nil {
		return 0, fmt.Errorf("encode compare request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/compare", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s request: %w", serviceName, err)
	}
	defer resp.Body.Close()

	body, err := httpclient.ReadBody(resp, serviceName, 1<<20)
	if err != nil {
		return 0, err
	}
	var decoded compareResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0, fmt.Errorf("decode %s response: %w", serviceName, err)
	}
	score := 0.0
	if decoded.Similarity != nil {
		score = *decoded.Similarity
	}
	for _, match := range decoded.FaceMatches {
		score = max(score, match.Similarity)
	}
	return clamp(score), nil
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
