// Package profile defines the records that flow through a profile build: the
// accepted query, disambiguation candidates, per-adapter enrichment results,
// and the canonical merged profile persisted by the store.
package profile

import (
	"strings"
	"time"
)

// Query is the raw person-identifying input plus optional disambiguators.
// It is treated as immutable once accepted.
type Query struct {
	Text        string `json:"query"`
	Location    string `json:"location,omitempty"`
	Company     string `json:"company,omitempty"`
	Age         string `json:"age,omitempty"`
	CandidateID string `json:"candidate_id,omitempty"`
}

// CacheKey is the normalized identity of a query.
type CacheKey string

func (k CacheKey) String() string { return string(k) }

// Candidate is one disambiguation option for an ambiguous query.
type Candidate struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Summary         string  `json:"summary"`
	ImageURL        string  `json:"imageUrl,omitempty"`
	SimilarityScore float64 `json:"similarityScore"`
	Rank            int     `json:"rank"`
	Source          string  `json:"source,omitempty"`
	Link            string  `json:"link,omitempty"`
	// Attributes carries provider-specific identifiers (pdl_id, linkedin_url, ...)
	// that later stages use to seed enrichment.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Attribute returns a provider attribute or "".
func (c Candidate) Attribute(key string) string {
	if c.Attributes == nil {
		return ""
	}
	return c.Attributes[key]
}

// Kind is the closed set of enrichment adapter variants.
type Kind string

const (
	KindWebSummary   Kind = "web_summary"
	KindPeopleData   Kind = "people_data"
	KindSocialScrape Kind = "social_scrape"
	KindPageMeta     Kind = "page_meta"
	KindNews         Kind = "news"
)

// Precedence orders sources for basic attribute merging; higher wins.
func (k Kind) Precedence() int {
	switch k {
	case KindPeopleData:
		return 4
	case KindSocialScrape:
		return 3
	case KindPageMeta:
		return 2
	case KindWebSummary:
		return 1
	default:
		return 0
	}
}

// Status is the outcome of one adapter attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// BasicInfo holds the scalar identity attributes of a person.
type BasicInfo struct {
	Name       string   `json:"name,omitempty"`
	Age        string   `json:"age,omitempty"`
	Location   string   `json:"location,omitempty"`
	Occupation string   `json:"occupation,omitempty"`
	Company    string   `json:"company,omitempty"`
	Bio        string   `json:"bio,omitempty"`
	Education  []string `json:"education,omitempty"`
}

// SocialProfile is one platform account. Platform is unique within a Profile.
type SocialProfile struct {
	Platform      string `json:"platform"`
	Handle        string `json:"handle,omitempty"`
	URL           string `json:"url,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	Bio           string `json:"bio,omitempty"`
	Followers     int64  `json:"followers,omitempty"`
	Verified      bool   `json:"verified,omitempty"`
	ProfilePicURL string `json:"profile_pic,omitempty"`
	Source        string `json:"source,omitempty"`
}

// Richness counts populated sub-fields.
func (s SocialProfile) Richness() int {
	n := 0
	for _, v := range []string{s.Handle, s.URL, s.DisplayName, s.Bio, s.ProfilePicURL} {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	if s.Followers > 0 {
		n++
	}
	if s.Verified {
		n++
	}
	return n
}

// Identifier is a platform account discovered by the broad search phase,
// used to decide which scrape adapters run in the second phase.
type Identifier struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle,omitempty"`
	URL      string `json:"url,omitempty"`
}

// ImageRef is an externally hosted image reported by an adapter.
type ImageRef struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// Mention is a notable news or web mention.
type Mention struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	URL         string     `json:"url,omitempty"`
	Source      string     `json:"source,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// EnrichmentResult is one adapter's contribution. It is never mutated after
// the adapter returns it.
type EnrichmentResult struct {
	Source      string          `json:"source"`
	Kind        Kind            `json:"kind"`
	Status      Status          `json:"status"`
	Err         error           `json:"-"`
	Basic       BasicInfo       `json:"basic,omitzero"`
	Summary     string          `json:"summary,omitempty"`
	Socials     []SocialProfile `json:"socials,omitempty"`
	Identifiers []Identifier    `json:"identifiers,omitempty"`
	Images      []ImageRef      `json:"images,omitempty"`
	Mentions    []Mention       `json:"mentions,omitempty"`
	Links       []string        `json:"links,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration"`
}

// OK reports whether the adapter succeeded.
func (r EnrichmentResult) OK() bool { return r.Status == StatusSuccess }

// AssetRole distinguishes photos from profile pictures.
type AssetRole string

const (
	RolePhoto          AssetRole = "photo"
	RoleProfilePicture AssetRole = "profile_picture"
)

// Asset is one durably stored image.
type Asset struct {
	OriginalURL string    `json:"original_url"`
	DurableURL  string    `json:"url,omitempty"`
	Source      string    `json:"source"`
	Role        AssetRole `json:"role"`
	Caption     string    `json:"caption,omitempty"`
	Verified    bool      `json:"verified,omitempty"`
	Similarity  *float64  `json:"similarity,omitempty"`
	Fallback    bool      `json:"fallback,omitempty"`
}

// VerificationOutcome is a transient similarity result; it is folded into a
// Candidate or Asset and never persisted on its own.
type VerificationOutcome struct {
	ID     string
	Score  float64
	Passed bool
	Err    error
}

// SourceTrace records one attempted adapter, successful or not.
type SourceTrace struct {
	Source     string `json:"source"`
	Kind       Kind   `json:"kind"`
	Status     Status `json:"status"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Profile is the canonical merged record for a resolved identity.
type Profile struct {
	ID        string          `json:"id"`
	Key       CacheKey        `json:"cache_key"`
	Query     Query           `json:"query"`
	Basic     BasicInfo       `json:"basic_info"`
	Summary   string          `json:"summary,omitempty"`
	Socials   []SocialProfile `json:"social_profiles"`
	Assets    []Asset         `json:"photos"`
	Mentions  []Mention       `json:"notable_mentions"`
	Sources   []SourceTrace   `json:"sources"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Social returns the entry for platform, if any.
func (p *Profile) Social(platform string) (SocialProfile, bool) {
	for _, s := range p.Socials {
		if s.Platform == platform {
			return s, true
		}
	}
	return SocialProfile{}, false
}

// Partial reports whether any attempted source failed.
func (p *Profile) Partial() bool {
	for _, s := range p.Sources {
		if s.Status != StatusSuccess {
			return true
		}
	}
	return false
}

// Answer is a generated biography for a stored profile, with suggested
// follow-up questions. It is replaced whenever the profile is rebuilt.
type Answer struct {
	Key     CacheKey `json:"cache_key"`
	Text    string   `json:"answer"`
	Related []string `json:"related_questions"`
	// Fallback is set when the model declined and the text was condensed
	// from facts already on the profile.
	Fallback    bool      `json:"fallback,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ChatRole names the speaker of a chat message.
type ChatRole string

const (
	ChatUser      ChatRole = "user"
	ChatAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    ChatRole  `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"timestamp"`
}

// Chat is a conversation about one stored profile.
type Chat struct {
	ID        string        `json:"id"`
	Key       CacheKey      `json:"cache_key"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
