package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"dossier/internal/discovery"
	"dossier/internal/profile"
	"dossier/internal/textutil"
)

// SourceWebSummary names the primary adapter.
const SourceWebSummary = "web_summary"

const (
	maxSummaryPhotos   = 10
	maxSummaryMentions = 10
)

// Completer is the language model surface the web summary needs.
type Completer interface {
	CompleteInto(ctx context.Context, systemPrompt, userPrompt string, target any) error
}

// WebSummary asks a web-connected model for an overview of the person and
// the accounts, photos, and mentions it can find.
type WebSummary struct {
	model Completer
}

// NewWebSummary wraps a chat completion client.
func NewWebSummary(model Completer) *WebSummary {
	return &WebSummary{model: model}
}

// Source implements Adapter.
func (w *WebSummary) Source() string { return SourceWebSummary }

// Kind implements Adapter.
func (w *WebSummary) Kind() profile.Kind { return profile.KindWebSummary }

const summarySystemPrompt = `You are a person search assistant with web search capabilities. Respond with a JSON object only.`

// flexString accepts a JSON string, number, or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(string(data))
	return nil
}

// flexList accepts a JSON array of strings or a single string.
type flexList []string

func (f *flexList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}
	if data[0] == '[' {
		var items []flexString
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if item != "" {
				out = append(out, string(item))
			}
		}
		*f = out
		return nil
	}
	var single flexString
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if single != "" {
		*f = flexList{string(single)}
	}
	return nil
}

type summaryResponse struct {
	Summary   string `json:"summary"`
	BasicInfo struct {
		Name       flexString `json:"name"`
		Age        flexString `json:"age"`
		Location   flexString `json:"location"`
		Occupation flexString `json:"occupation"`
		Company    flexString `json:"company"`
		Education  flexList   `json:"education"`
	} `json:"basic_info"`
	SocialProfiles []struct {
		Platform  string     `json:"platform"`
		Username  string     `json:"username"`
		URL       string     `json:"url"`
		Followers flexString `json:"followers"`
		Verified  flexString `json:"verified"`
	} `json:"social_profiles"`
	Photos []struct {
		URL     string `json:"url"`
		Caption string `json:"caption"`
	} `json:"photos"`
	NotableMentions []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Source      string `json:"source"`
	} `json:"notable_mentions"`
	Websites flexList `json:"websites"`
}

// Enrich implements Adapter.
func (w *WebSummary) Enrich(ctx context.Context, subject Subject) (profile.EnrichmentResult, error) {
	if w.model == nil {
		return profile.EnrichmentResult{}, errors.New("language model not configured")
	}
	var resp summaryResponse
	if err := w.model.CompleteInto(ctx, summarySystemPrompt, summaryPrompt(subject), &resp); err != nil {
		return profile.EnrichmentResult{}, err
	}

	result := profile.EnrichmentResult{
		Summary: strings.TrimSpace(resp.Summary),
		Basic: profile.BasicInfo{
			Name:       string(resp.BasicInfo.Name),
			Age:        string(resp.BasicInfo.Age),
			Location:   string(resp.BasicInfo.Location),
			Occupation: string(resp.BasicInfo.Occupation),
			Company:    string(resp.BasicInfo.Company),
			Education:  []string(resp.BasicInfo.Education),
		},
	}
	for _, sp := range resp.SocialProfiles {
		platform := NormalizePlatform(sp.Platform)
		link := withScheme(sp.URL)
		if platform == "" {
			platform = PlatformFromURL(link)
		}
		handle := strings.TrimPrefix(strings.TrimSpace(sp.Username), "@")
		if handle == "" && link != "" {
			handle = HandleFromURL(platform, link)
		}
		if platform == "" || (handle == "" && link == "") {
			continue
		}
		result.Socials = append(result.Socials, profile.SocialProfile{
			Platform:  platform,
			Handle:    handle,
			URL:       link,
			Followers: ParseCount(string(sp.Followers)),
			Verified:  strings.EqualFold(string(sp.Verified), "true"),
		})
		result.Identifiers = appendIdentifier(result.Identifiers, profile.Identifier{Platform: platform, Handle: handle, URL: link})
	}
	for _, p := range resp.Photos {
		if u := strings.TrimSpace(p.URL); u != "" && len(result.Images) < maxSummaryPhotos {
			result.Images = append(result.Images, profile.ImageRef{URL: u, Caption: textutil.Truncate(p.Caption, 200)})
		}
	}
	for _, m := range resp.NotableMentions {
		title := strings.TrimSpace(m.Title)
		if title == "" || len(result.Mentions) >= maxSummaryMentions {
			continue
		}
		result.Mentions = append(result.Mentions, profile.Mention{
			Title:       title,
			Description: strings.TrimSpace(m.Description),
			URL:         strings.TrimSpace(m.URL),
			Source:      strings.TrimSpace(m.Source),
		})
	}
	for _, site := range resp.Websites {
		if link := withScheme(site); link != "" && PlatformFromURL(link) == "" {
			result.Links = append(result.Links, link)
		}
	}

	return result, nil
}

func summaryPrompt(subject Subject) string {
	target := discovery.RefinedQuery(subject.Query)
	if c := subject.Candidate; c != nil {
		target = subject.Name
		if summary := strings.TrimSpace(c.Summary); summary != "" {
			target = fmt.Sprintf("%s (%s)", subject.Name, summary)
		}
	}
	return fmt.Sprintf(`Search the web for information about: %s

Return a JSON object with these keys:
- summary: two or three sentences about who this person is
- basic_info: object with name, age, location, occupation, education, company
- social_profiles: array of objects with platform, username, url, followers, verified
- photos: array of objects with url, caption
- notable_mentions: array of objects with title, description, url, source. Include ONLY items directly about this person; exclude news about their company, industry, or people with similar names.
- websites: array of personal or official page URLs that are not social networks

If information is not found, use empty objects or arrays.`, target)
}

// ParseCount reads follower counts written as 1234, "1,234", or "1.2M".
func ParseCount(raw string) int64 {
	raw = strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(raw, ",", "")))
	raw = strings.TrimSuffix(raw, "+")
	if raw == "" {
		return 0
	}
	multiplier := 1.0
	switch {
	case strings.HasSuffix(raw, "K"):
		multiplier, raw = 1e3, strings.TrimSuffix(raw, "K")
	case strings.HasSuffix(raw, "M"):
		multiplier, raw = 1e6, strings.TrimSuffix(raw, "M")
	case strings.HasSuffix(raw, "B"):
		multiplier, raw = 1e9, strings.TrimSuffix(raw, "B")
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || value < 0 {
		return 0
	}
	return int64(math.Round(value * multiplier))
}
