package assets

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dossier/internal/httpclient"
	"dossier/internal/services"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultAttempts     = 3
	defaultBackoff      = 500 * time.Millisecond
	maxBackoff          = 8 * time.Second
	defaultHostRate     = 4
	defaultHostBurst    = 2

	// MinImageBytes rejects tracking pixels and placeholder images.
	MinImageBytes = 1024
	maxImageBytes = 20 << 20

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	imageAccept      = "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8"
)

// Fetcher downloads images the way a browser would, retrying rate limits and
// timeouts with doubling backoff. Requests to one host are throttled.
type Fetcher struct {
	httpClient *http.Client
	timeout    time.Duration
	policy     httpclient.Policy
	hostRate   rate.Limit
	hostBurst  int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithFetchHTTPClient overrides the HTTP client. Its Timeout is ignored; the
// per-attempt timeout is applied through the request context.
func WithFetchHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithRetry sets the attempt count and the first backoff delay.
func WithRetry(attempts int, backoff time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if attempts > 0 {
			f.policy.Attempts = attempts
		}
		if backoff > 0 {
			f.policy.Backoff.Base = backoff
		}
	}
}

// WithSleeper replaces the backoff timer, for tests.
func WithSleeper(sleeper func(time.Duration)) FetcherOption {
	return func(f *Fetcher) { f.policy.Sleeper = sleeper }
}

// WithHostRate throttles requests per host. A non-positive rate disables it.
func WithHostRate(perSecond float64, burst int) FetcherOption {
	return func(f *Fetcher) {
		if perSecond <= 0 {
			f.hostRate = rate.Inf
			return
		}
		f.hostRate = rate.Limit(perSecond)
		f.hostBurst = max(1, burst)
	}
}

// NewFetcher builds a fetcher with the given per-attempt timeout.
func NewFetcher(timeout time.Duration, opts ...FetcherOption) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	f := &Fetcher{
		httpClient: &http.Client{},
		timeout:    timeout,
		policy: httpclient.Policy{
			Attempts: defaultAttempts,
			Backoff:  httpclient.Backoff{Base: defaultBackoff, Max: maxBackoff},
		},
		hostRate:  defaultHostRate,
		hostBurst: defaultHostBurst,
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Load implements the verifier's image loader.
func (f *Fetcher) Load(ctx context.Context, rawURL string) ([]byte, error) {
	return f.Fetch(ctx, rawURL)
}

// Fetch downloads one image. Forbidden, missing, non-image, and undersized
// responses fail immediately; rate limits and timeouts are retried. Every
// failure carries ErrAssetFetchFailure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := parseImageURL(rawURL)
	if err != nil {
		return nil, services.Wrap(services.ErrAssetFetchFailure, "assets", "fetch", "", err)
	}
	var data []byte
	err = f.policy.Do(ctx, func(int) error {
		body, err := f.attempt(ctx, target)
		if err != nil {
			return err
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrAssetFetchFailure, "assets", "fetch", target.Host, err)
	}
	return data, nil
}

func (f *Fetcher) attempt(ctx context.Context, target *url.URL) ([]byte, error) {
	if err := f.limiter(target.Host).Wait(ctx); err != nil {
		return nil, err
	}
	actx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	setBrowserHeaders(req, target)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil && timedOut(err) {
			return nil, attemptTimeout{after: f.timeout}
		}
		return nil, fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()

	body, err := httpclient.ReadBody(resp, "image", maxImageBytes)
	if err != nil {
		if ctx.Err() == nil && timedOut(err) {
			return nil, attemptTimeout{after: f.timeout}
		}
		return nil, err
	}
	if !isImage(resp.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	if len(body) < MinImageBytes {
		return nil, fmt.Errorf("image too small: %d bytes", len(body))
	}
	return body, nil
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(f.hostRate, f.hostBurst)
		f.limiters[host] = l
	}
	return l
}

// attemptTimeout marks a single slow attempt as retryable. It does not wrap
// the context error so the retry policy does not mistake it for the caller's
// own deadline.
type attemptTimeout struct {
	after time.Duration
}

func (e attemptTimeout) Error() string   { return fmt.Sprintf("no response within %s", e.after) }
func (e attemptTimeout) Retryable() bool { return true }

func timedOut(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func setBrowserHeaders(req *http.Request, target *url.URL) {
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", imageAccept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", target.Scheme+"://"+target.Host+"/")
	req.Header.Set("Sec-Fetch-Dest", "image")
	req.Header.Set("Sec-Fetch-Mode", "no-cors")
}

func isImage(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.HasPrefix(mediaType, "image/")
}

func parseImageURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid image url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid image url %q", raw)
	}
	return u, nil
}
