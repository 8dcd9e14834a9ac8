// Package httpclient holds the retry, backoff, and status classification rules
// shared by every outbound provider client.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxErrorBody = 512

// StatusError reports a non-2xx response from a provider.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s request: http %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s request: http %d: %s", e.Service, e.StatusCode, body)
}

// Terminal reports whether the status means the resource will never be served
// (forbidden, not found, gone).
func (e *StatusError) Terminal() bool {
	switch e.StatusCode {
	case http.StatusForbidden, http.StatusNotFound, http.StatusGone, http.StatusUnauthorized:
		return true
	}
	return false
}

// ReadBody drains resp and returns its body, or a *StatusError when the
// status code is 300 or above. limit caps the bytes read; zero means 8 MiB.
func ReadBody(resp *http.Response, service string, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = 8 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("%s request: read body: %w", service, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := ParseRetryAfter(resp.Header.Get("Retry-After"))
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return body, &StatusError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Body:       snippet,
			RetryAfter: retryAfter,
		}
	}
	return body, nil
}

// Backoff doubles Base for each attempt, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the attempt following the given 1-based attempt.
// attempt 1 -> Base, attempt 2 -> Base*2, attempt 3 -> Base*4, ...
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt <= 0 {
		attempt = 1
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		if b.Max > 0 && delay > b.Max/2 {
			return b.Max
		}
		delay *= 2
	}
	return b.cap(delay)
}

func (b Backoff) cap(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

// Policy retries transient provider failures.
type Policy struct {
	Attempts int
	Backoff  Backoff
	// Sleeper replaces the real timer, for tests.
	Sleeper func(time.Duration)
}

// Do runs op until it succeeds, returns a non-retryable error, or the attempts
// are exhausted. op receives the 1-based attempt number.
func (p Policy) Do(ctx context.Context, op func(attempt int) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		hint, retry := Retryable(ctx, err)
		if !retry {
			return err
		}
		delay := p.Backoff.Delay(attempt)
		if hint > 0 {
			delay = p.Backoff.cap(hint)
		}
		if err := Sleep(ctx, delay, p.Sleeper); err != nil {
			return err
		}
	}
	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// Retryable classifies err as transient (408, 429, 5xx, network timeouts, or
// any error exposing Retryable() true).
// The returned duration is the server's Retry-After hint, when present.
func Retryable(ctx context.Context, err error) (time.Duration, bool) {
	if err == nil || ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var marked interface{ Retryable() bool }
	if errors.As(err, &marked) && marked.Retryable() {
		return 0, true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return statusErr.RetryAfter, true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return 0, true
	}
	return 0, false
}

// Sleep waits for delay or until ctx is done.
func Sleep(ctx context.Context, delay time.Duration, sleeper func(time.Duration)) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if sleeper != nil {
		sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParseRetryAfter accepts both delta-seconds and HTTP-date forms.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
