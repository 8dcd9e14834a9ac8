package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"dossier/internal/answer"
	"dossier/internal/pipeline"
	"dossier/internal/profile"
	"dossier/internal/query"
	"dossier/internal/services"
	"dossier/internal/store"
)

// ImageLoader downloads a reference photo by URL.
type ImageLoader interface {
	Load(ctx context.Context, url string) ([]byte, error)
}

// ProfileQuery returns the query the request describes.
func (r SearchRequest) ProfileQuery() profile.Query {
	return profile.Query{
		Text:        r.Query,
		Location:    r.Location,
		Company:     r.Company,
		Age:         r.Age,
		CandidateID: strings.TrimSpace(r.CandidateID),
	}
}

// PipelineRequest resolves the reference photo and builds the service request.
func (r SearchRequest) PipelineRequest(ctx context.Context, loader ImageLoader) (pipeline.Request, error) {
	reference, err := resolveReference(ctx, r.ReferenceImage, r.ReferenceURL, loader)
	if err != nil {
		return pipeline.Request{}, err
	}
	return pipeline.Request{Query: r.ProfileQuery(), Reference: reference, Refresh: r.Refresh}, nil
}

// ProfileQuery returns the query the request describes.
func (r CandidatesRequest) ProfileQuery() profile.Query {
	return profile.Query{Text: r.Query, Location: r.Location, Company: r.Company, Age: r.Age}
}

// Reference resolves the request's reference photo, if any.
func (r CandidatesRequest) Reference(ctx context.Context, loader ImageLoader) ([]byte, error) {
	return resolveReference(ctx, r.ReferenceImage, r.ReferenceURL, loader)
}

// DecodeImage accepts raw base64 or a base64 data URL.
func DecodeImage(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "data:") {
		comma := strings.IndexByte(value, ',')
		if comma < 0 || !strings.Contains(value[:comma], ";base64") {
			return nil, errors.New("reference image data url must be base64 encoded")
		}
		value = value[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(value)
	}
	if err != nil {
		return nil, errors.New("reference image is not valid base64")
	}
	if len(data) == 0 {
		return nil, errors.New("reference image is empty")
	}
	return data, nil
}

func resolveReference(ctx context.Context, image, url string, loader ImageLoader) ([]byte, error) {
	if strings.TrimSpace(image) != "" {
		data, err := DecodeImage(image)
		if err != nil {
			return nil, services.Wrap(services.ErrInvalidQuery, "api", "reference", err.Error(), nil)
		}
		return data, nil
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, nil
	}
	if loader == nil {
		return nil, services.Wrap(services.ErrInvalidQuery, "api", "reference", "reference urls are not supported", nil)
	}
	data, err := loader.Load(ctx, url)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidQuery, "api", "reference", "download reference image", err)
	}
	return data, nil
}

// FromOutcome converts a search result to its API representation.
func FromOutcome(resp pipeline.Response) ProfileResponse {
	out := ProfileResponse{Profile: resp.Profile, Cached: resp.Cached, Shared: resp.Shared}
	if resp.Profile != nil {
		out.Partial = resp.Profile.Partial()
	}
	return out
}

// FromCandidates wraps a candidate list; nil becomes an empty list.
func FromCandidates(list []profile.Candidate) CandidatesResponse {
	if list == nil {
		list = []profile.Candidate{}
	}
	return CandidatesResponse{Candidates: list}
}

// FromSummary converts a store listing row.
func FromSummary(s store.Summary) ProfileSummary {
	dto := ProfileSummary{
		Key:     s.Key.String(),
		ID:      s.ID,
		Name:    s.Name,
		Query:   query.Display(s.Query),
		Partial: s.Partial,
	}
	if !s.CreatedAt.IsZero() {
		dto.CreatedAt = s.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !s.UpdatedAt.IsZero() {
		dto.UpdatedAt = s.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromSummaries converts a store listing.
func FromSummaries(list []store.Summary) ProfileListResponse {
	out := make([]ProfileSummary, 0, len(list))
	for _, s := range list {
		out = append(out, FromSummary(s))
	}
	return ProfileListResponse{Profiles: out}
}

// FromError builds the error body and HTTP status for err. Only the
// caller-visible kinds and missing profiles map to client errors.
func FromError(err error) (int, ErrorResponse) {
	body := ErrorResponse{Error: err.Error(), Kind: services.Kind(err)}
	switch {
	case errors.Is(err, services.ErrInvalidQuery):
		return http.StatusBadRequest, body
	case errors.Is(err, services.ErrBuildFailure):
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, services.ErrProfileNotFound):
		return http.StatusNotFound, body
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, body
	default:
		return http.StatusInternalServerError, body
	}
}

// FromAnswer converts a generated or stored answer.
func FromAnswer(res answer.Result) AnswerResponse {
	out := AnswerResponse{Cached: res.Cached, RelatedQuestions: []string{}}
	if res.Profile != nil {
		out.Key = res.Profile.Key.String()
		out.ProfileID = res.Profile.ID
	}
	if a := res.Answer; a != nil {
		out.Answer = a.Text
		out.Fallback = a.Fallback
		if a.Related != nil {
			out.RelatedQuestions = a.Related
		}
		if !a.GeneratedAt.IsZero() {
			out.GeneratedAt = a.GeneratedAt.UTC().Format(dateTimeFormat)
		}
	}
	return out
}

// FromFollowUp normalizes nil lists so clients always see arrays.
func FromFollowUp(f answer.FollowUp) answer.FollowUp {
	if f.Photos == nil {
		f.Photos = []profile.Asset{}
	}
	if f.Sources == nil {
		f.Sources = []answer.Source{}
	}
	if f.Related == nil {
		f.Related = []string{}
	}
	return f
}
