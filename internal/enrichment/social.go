package enrichment

import (
	"context"
	"errors"
	"fmt"

	"dossier/internal/profile"
	"dossier/internal/services/apify"
)

// handlePlatforms are scraped by account name; the rest by profile URL.
var handlePlatforms = map[string]bool{"instagram": true, "twitter": true, "tiktok": true}

// SocialScrape scrapes one discovered account.
type SocialScrape struct {
	scraper apify.Scraper
	id      profile.Identifier
}

// NewSocialScrape builds the scrape adapter for id.
func NewSocialScrape(scraper apify.Scraper, id profile.Identifier) *SocialScrape {
	return &SocialScrape{scraper: scraper, id: id}
}

// Source implements Adapter.
func (s *SocialScrape) Source() string { return s.id.Platform + "_scrape" }

// Kind implements Adapter.
func (s *SocialScrape) Kind() profile.Kind { return profile.KindSocialScrape }

// Enrich implements Adapter.
func (s *SocialScrape) Enrich(ctx context.Context, _ Subject) (profile.EnrichmentResult, error) {
	key := scrapeKey(s.id)
	if key == "" {
		return profile.EnrichmentResult{}, fmt.Errorf("%s account has no usable identifier", s.id.Platform)
	}
	account, err := s.scraper.Scrape(ctx, s.id.Platform, key)
	if err != nil {
		return profile.EnrichmentResult{}, err
	}
	if account == nil {
		return profile.EnrichmentResult{}, errors.New("scraper returned no account")
	}
	return accountResult(s.id, account), nil
}

func scrapeKey(id profile.Identifier) string {
	if handlePlatforms[id.Platform] {
		if id.Handle != "" {
			return id.Handle
		}
		return HandleFromURL(id.Platform, id.URL)
	}
	if id.URL != "" {
		return id.URL
	}
	if id.Platform == "linkedin" && id.Handle != "" {
		return "https://www.linkedin.com/in/" + id.Handle
	}
	return ""
}

func accountResult(id profile.Identifier, account *apify.Account) profile.EnrichmentResult {
	social := profile.SocialProfile{
		Platform:      id.Platform,
		Handle:        firstOf(account.Handle, id.Handle),
		URL:           firstOf(account.URL, id.URL),
		DisplayName:   account.DisplayName,
		Bio:           account.Bio,
		Followers:     account.Followers,
		Verified:      account.Verified,
		ProfilePicURL: account.ProfilePic,
	}
	result := profile.EnrichmentResult{
		Socials: []profile.SocialProfile{social},
		Basic: profile.BasicInfo{
			Name:       account.DisplayName,
			Location:   account.Location,
			Occupation: account.Headline,
			Company:    account.Company,
			Education:  account.Education,
		},
	}
	// Only professional networks describe the person; other bios are
	// free-form and stay on the social entry.
	if id.Platform == "linkedin" {
		result.Basic.Bio = account.Bio
	}
	for _, p := range account.Photos {
		result.Images = append(result.Images, profile.ImageRef{URL: p.URL, Caption: p.Caption})
	}
	return result
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
