package enrichment

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"dossier/internal/discovery"
	"dossier/internal/profile"
	"dossier/internal/services/peopledata"
)

// SourcePeopleData names the structured enrichment adapter.
const SourcePeopleData = "people_data"

// PeopleData enriches a person from a structured people-data record, looked
// up by record ID when the candidate came from the same provider, otherwise
// by LinkedIn profile URL.
type PeopleData struct {
	api peopledata.API
	now func() time.Time
}

// NewPeopleData wraps a people data client.
func NewPeopleData(api peopledata.API) *PeopleData {
	return &PeopleData{api: api, now: time.Now}
}

// Source implements Adapter.
func (p *PeopleData) Source() string { return SourcePeopleData }

// Kind implements Adapter.
func (p *PeopleData) Kind() profile.Kind { return profile.KindPeopleData }

// Applies implements Conditional.
func (p *PeopleData) Applies(subject Subject) bool {
	params := enrichParams(subject)
	return params.ID != "" || params.ProfileURL != ""
}

func enrichParams(subject Subject) peopledata.EnrichParams {
	var params peopledata.EnrichParams
	if c := subject.Candidate; c != nil {
		params.ID = c.Attribute(discovery.AttrPDLID)
		params.ProfileURL = c.Attribute(discovery.AttrLinkedInURL)
	}
	if params.ProfileURL == "" {
		if id, ok := subject.Identifier("linkedin"); ok && id.URL != "" {
			params.ProfileURL = id.URL
		}
	}
	return params
}

// Enrich implements Adapter.
func (p *PeopleData) Enrich(ctx context.Context, subject Subject) (profile.EnrichmentResult, error) {
	person, err := p.api.Enrich(ctx, enrichParams(subject))
	if err != nil {
		return profile.EnrichmentResult{}, err
	}
	if person == nil {
		return profile.EnrichmentResult{}, errors.New("no matching people data record")
	}

	result := profile.EnrichmentResult{
		Basic: profile.BasicInfo{
			Name:       strings.TrimSpace(person.FullName),
			Age:        ageFromBirthYear(person.BirthYear.String(), p.now()),
			Location:   person.LocationName,
			Occupation: person.JobTitle,
			Company:    person.JobCompanyName,
			Bio:        person.Summary,
			Education:  person.Schools(),
		},
	}
	links := []string{person.LinkedInURL, person.TwitterURL, person.FacebookURL, person.GithubURL}
	for _, pr := range person.Profiles {
		links = append(links, pr.URL)
	}
	seen := map[string]bool{}
	for _, raw := range links {
		id, ok := IdentifierFromURL(raw)
		if !ok || seen[id.Platform] {
			continue
		}
		seen[id.Platform] = true
		result.Socials = append(result.Socials, profile.SocialProfile{Platform: id.Platform, Handle: id.Handle, URL: id.URL})
	}
	return result, nil
}

func ageFromBirthYear(raw string, now time.Time) string {
	year, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || year <= 1900 || year > now.Year() {
		return ""
	}
	return strconv.Itoa(now.Year() - year)
}
