package discovery

import (
	"context"
	"strings"

	"dossier/internal/profile"
	"dossier/internal/query"
	"dossier/internal/services/peopledata"
)

// Candidate attribute keys set by PeopleData.
const (
	AttrPDLID       = "pdl_id"
	AttrLinkedInURL = "linkedin_url"
	AttrTwitterURL  = "twitter_url"
	AttrFacebookURL = "facebook_url"
)

// SourcePeopleData names the structured people-data source.
const SourcePeopleData = "people_data"

// PeopleData discovers candidates through a structured person search.
type PeopleData struct {
	api peopledata.API
}

// NewPeopleData wraps a people data client.
func NewPeopleData(api peopledata.API) *PeopleData {
	return &PeopleData{api: api}
}

// Name implements Source.
func (p *PeopleData) Name() string { return SourcePeopleData }

// FindCandidates implements Source.
func (p *PeopleData) FindCandidates(ctx context.Context, q profile.Query) ([]profile.Candidate, error) {
	people, err := p.api.Search(ctx, peopledata.SearchParams{
		Name:     query.Display(q),
		Location: q.Location,
		Company:  q.Company,
		Age:      q.Age,
	})
	if err != nil {
		return nil, err
	}
	candidates := make([]profile.Candidate, 0, len(people))
	for _, person := range people {
		name := strings.TrimSpace(person.FullName)
		if name == "" {
			continue
		}
		id := strings.TrimSpace(person.ID)
		if id == "" {
			id = slug(name)
		}
		attrs := map[string]string{}
		setAttr(attrs, AttrPDLID, person.ID)
		setAttr(attrs, AttrLinkedInURL, normalizeProfileURL(person.LinkedInURL))
		setAttr(attrs, AttrTwitterURL, normalizeProfileURL(person.TwitterURL))
		setAttr(attrs, AttrFacebookURL, normalizeProfileURL(person.FacebookURL))
		candidates = append(candidates, profile.Candidate{
			ID:         id,
			Name:       name,
			Summary:    person.Headline(),
			Source:     SourcePeopleData,
			Link:       attrs[AttrLinkedInURL],
			Attributes: attrs,
		})
	}
	return candidates, nil
}

func setAttr(attrs map[string]string, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		attrs[key] = value
	}
}

// normalizeProfileURL adds a scheme to PDL's bare "linkedin.com/in/x" values.
func normalizeProfileURL(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return value
	}
	return "https://" + value
}
