package api

import "dossier/internal/profile"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SearchRequest is the body of a profile search.
type SearchRequest struct {
	Query       string `json:"query"`
	Location    string `json:"location,omitempty"`
	Company     string `json:"company,omitempty"`
	Age         string `json:"age,omitempty"`
	CandidateID string `json:"candidate_id,omitempty"`
	// ReferenceImage is a base64 photo of the person, optionally as a data URL.
	ReferenceImage string `json:"reference_image,omitempty"`
	// ReferenceURL is fetched when ReferenceImage is empty.
	ReferenceURL string `json:"reference_url,omitempty"`
	Refresh      bool   `json:"refresh,omitempty"`
}

// CandidatesRequest is the body of a candidate listing.
type CandidatesRequest struct {
	Query          string `json:"query"`
	Location       string `json:"location,omitempty"`
	Company        string `json:"company,omitempty"`
	Age            string `json:"age,omitempty"`
	ReferenceImage string `json:"reference_image,omitempty"`
	ReferenceURL   string `json:"reference_url,omitempty"`
}

// ProfileResponse wraps a profile with how it was obtained.
type ProfileResponse struct {
	Profile *profile.Profile `json:"profile"`
	Cached  bool             `json:"cached"`
	Shared  bool             `json:"shared"`
	Partial bool             `json:"partial"`
}

// CandidatesResponse wraps a ranked candidate list.
type CandidatesResponse struct {
	Candidates []profile.Candidate `json:"candidates"`
}

// ProfileSummary is one stored profile in a listing.
type ProfileSummary struct {
	Key       string `json:"cacheKey"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Query     string `json:"query"`
	Partial   bool   `json:"partial"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// ProfileListResponse wraps a collection of stored profiles.
type ProfileListResponse struct {
	Profiles []ProfileSummary `json:"profiles"`
}

// PruneResponse reports a retention sweep.
type PruneResponse struct {
	Profiles int64 `json:"profiles"`
	Assets   int   `json:"assets"`
}

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Profiles int    `json:"profiles"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// AnswerRequest is the optional body of an answer generation request.
type AnswerRequest struct {
	Regenerate bool `json:"regenerate,omitempty"`
}

// AnswerResponse carries a generated biography for a stored profile.
type AnswerResponse struct {
	Key              string   `json:"cacheKey"`
	ProfileID        string   `json:"profileId"`
	Answer           string   `json:"answer"`
	RelatedQuestions []string `json:"relatedQuestions"`
	Fallback         bool     `json:"fallback"`
	Cached           bool     `json:"cached"`
	GeneratedAt      string   `json:"answerGeneratedAt,omitempty"`
}

// FollowUpRequest is the body of a follow-up question.
type FollowUpRequest struct {
	Question string `json:"question"`
}

// ChatRequest is one user turn in a profile conversation.
type ChatRequest struct {
	ChatID  string `json:"chatId,omitempty"`
	Message string `json:"message"`
}
