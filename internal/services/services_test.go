package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"dossier/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithCacheKey(ctx, "jensen huang")
	ctx = services.WithStage(ctx, "enrichment")
	ctx = services.WithRequestID(ctx, "req-123")

	if key, ok := services.CacheKeyFromContext(ctx); !ok || key != "jensen huang" {
		t.Fatalf("unexpected cache key: %v %v", key, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "enrichment" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
	if _, ok := services.StageFromContext(services.WithStage(context.Background(), "")); ok {
		t.Fatal("expected blank stage to be ignored")
	}
}

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrStorageError, "store", "put", "write profile", base)
	if !errors.Is(err, services.ErrStorageError) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	for _, fragment := range []string{"store", "put", "write profile"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in %q", fragment, err.Error())
		}
	}
}

func TestSourceFailureClassifiesDeadlines(t *testing.T) {
	err := services.SourceFailure("instagram", services.ErrAdapterError, fmt.Errorf("scrape: %w", context.DeadlineExceeded))
	if !errors.Is(err, services.ErrAdapterTimeout) {
		t.Fatalf("expected timeout marker, got %v", err)
	}
	var srcErr *services.SourceError
	if !errors.As(err, &srcErr) || srcErr.Source != "instagram" {
		t.Fatalf("expected source error for instagram, got %#v", err)
	}
	if services.Kind(err) != "adapter_timeout" {
		t.Fatalf("unexpected kind %q", services.Kind(err))
	}

	cut := services.SourceFailure("news", services.ErrAdapterError, fmt.Errorf("feed: %w", context.Canceled))
	if services.Kind(cut) != "adapter_timeout" {
		t.Fatalf("expected cancellation to classify as timeout, got %q", services.Kind(cut))
	}
}

func TestSurfacedOnlyForCallerFacingMarkers(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{services.Wrap(services.ErrInvalidQuery, "query", "normalize", "empty", nil), true},
		{services.Wrap(services.ErrBuildFailure, "aggregate", "merge", "no name", nil), true},
		{services.SourceFailure("twitter", services.ErrAdapterError, errors.New("500")), false},
		{services.Wrap(services.ErrVerificationUnavailable, "verify", "compare", "", nil), false},
		{errors.New("plain"), false},
	}
	for _, tc := range cases {
		if got := services.Surfaced(tc.err); got != tc.want {
			t.Fatalf("Surfaced(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
	if services.Kind(errors.New("plain")) != "internal" {
		t.Fatal("expected internal kind for unmarked errors")
	}
}
