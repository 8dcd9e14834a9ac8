package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidQuery            = errors.New("invalid query")
	ErrDiscoveryUnavailable    = errors.New("discovery unavailable")
	ErrAdapterTimeout          = errors.New("adapter timeout")
	ErrAdapterError            = errors.New("adapter error")
	ErrAssetFetchFailure       = errors.New("asset fetch failure")
	ErrVerificationUnavailable = errors.New("verification unavailable")
	ErrStorageError            = errors.New("storage error")
	ErrBuildFailure            = errors.New("build failure")
	ErrProfileNotFound         = errors.New("profile not found")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrAdapterError
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// SourceError tags a failure with the enrichment source that produced it.
type SourceError struct {
	Source string
	Marker error
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Source, e.Marker)
	}
	return fmt.Sprintf("%s: %v: %v", e.Source, e.Marker, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{e.Marker, e.Err}
}

// SourceFailure builds a source-tagged error. Deadline and cancellation
// failures are classified as ErrAdapterTimeout regardless of marker.
func SourceFailure(source string, marker error, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		marker = ErrAdapterTimeout
	}
	if marker == nil {
		marker = ErrAdapterError
	}
	return &SourceError{Source: source, Marker: marker, Err: err}
}

// Kind returns the snake_case taxonomy name for err, or "internal" when err
// carries no known marker.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, ErrBuildFailure):
		return "build_failure"
	case errors.Is(err, ErrDiscoveryUnavailable):
		return "discovery_unavailable"
	case errors.Is(err, ErrAdapterTimeout):
		return "adapter_timeout"
	case errors.Is(err, ErrAdapterError):
		return "adapter_error"
	case errors.Is(err, ErrAssetFetchFailure):
		return "asset_fetch_failure"
	case errors.Is(err, ErrVerificationUnavailable):
		return "verification_unavailable"
	case errors.Is(err, ErrStorageError):
		return "storage_error"
	case errors.Is(err, ErrProfileNotFound):
		return "profile_not_found"
	default:
		return "internal"
	}
}

// Surfaced reports whether err belongs to the caller-visible part of the taxonomy.
func Surfaced(err error) bool {
	return errors.Is(err, ErrInvalidQuery) || errors.Is(err, ErrBuildFailure)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
