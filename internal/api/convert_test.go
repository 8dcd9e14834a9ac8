package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"
	"time"

	"dossier/internal/pipeline"
	"dossier/internal/profile"
	"dossier/internal/services"
	"dossier/internal/store"
)

type loaderStub struct {
	data []byte
	err  error
	url  string
}

func (l *loaderStub) Load(_ context.Context, url string) ([]byte, error) {
	l.url = url
	return l.data, l.err
}

func TestPipelineRequestDecodesReference(t *testing.T) {
	raw := []byte("jpeg bytes")
	encoded := base64.StdEncoding.EncodeToString(raw)
	for _, image := range []string{encoded, "data:image/jpeg;base64," + encoded} {
		req := SearchRequest{Query: "Ada Lovelace", CandidateID: " ada-lovelace ", ReferenceImage: image, Refresh: true}
		got, err := req.PipelineRequest(context.Background(), nil)
		if err != nil {
			t.Fatalf("PipelineRequest: %v", err)
		}
		if string(got.Reference) != string(raw) || !got.Refresh || got.Query.CandidateID != "ada-lovelace" {
			t.Fatalf("unexpected request %+v", got)
		}
	}
}

func TestPipelineRequestFetchesReferenceURL(t *testing.T) {
	loader := &loaderStub{data: []byte("photo")}
	req := SearchRequest{Query: "Ada", ReferenceURL: "https://img.example/ada.jpg"}
	got, err := req.PipelineRequest(context.Background(), loader)
	if err != nil {
		t.Fatalf("PipelineRequest: %v", err)
	}
	if loader.url != "https://img.example/ada.jpg" || string(got.Reference) != "photo" {
		t.Fatalf("reference url not loaded: %+v", got)
	}

	loader.err = errors.New("404")
	if _, err := req.PipelineRequest(context.Background(), loader); !errors.Is(err, services.ErrInvalidQuery) {
		t.Fatalf("expected invalid query for unusable reference, got %v", err)
	}
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	for _, value := range []string{"%%%", "data:image/png,plain", ""} {
		if _, err := DecodeImage(value); err == nil {
			t.Fatalf("%q: expected error", value)
		}
	}
}

func TestFromErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{services.Wrap(services.ErrInvalidQuery, "query", "normalize", "empty", nil), http.StatusBadRequest, "invalid_query"},
		{services.Wrap(services.ErrBuildFailure, "aggregate", "merge", "no name", nil), http.StatusUnprocessableEntity, "build_failure"},
		{services.Wrap(services.ErrProfileNotFound, "answer", "resolve", "no stored profile", nil), http.StatusNotFound, "profile_not_found"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, body := FromError(tc.err)
		if status != tc.status || body.Kind != tc.kind || body.Error == "" {
			t.Fatalf("%v: got %d %+v", tc.err, status, body)
		}
	}
}

func TestFromOutcomeAndSummary(t *testing.T) {
	p := &profile.Profile{Sources: []profile.SourceTrace{{Source: "news", Status: profile.StatusTimeout}}}
	dto := FromOutcome(pipeline.Response{Profile: p, Cached: true})
	if !dto.Cached || !dto.Partial {
		t.Fatalf("unexpected response %+v", dto)
	}

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	summary := FromSummary(store.Summary{
		Key:       "ada lovelace",
		Name:      "Ada Lovelace",
		Query:     profile.Query{Text: "@ada  lovelace"},
		CreatedAt: created,
	})
	if summary.Query != "ada lovelace" || summary.CreatedAt != "2026-03-01T12:00:00.000Z" || summary.UpdatedAt != "" {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if list := FromCandidates(nil); list.Candidates == nil {
		t.Fatal("expected empty candidate list, not null")
	}
}
