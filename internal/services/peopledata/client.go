package peopledata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dossier/internal/httpclient"
)

const (
	serviceName       = "people_data"
	defaultTimeout    = 20 * time.Second
	defaultSearchSize = 10
)

// Person is the subset of a PDL person record dossier consumes.
type Person struct {
	ID             string      `json:"id"`
	FullName       string      `json:"full_name"`
	JobTitle       string      `json:"job_title"`
	JobCompanyName string      `json:"job_company_name"`
	LocationName   string      `json:"location_name"`
	BirthYear      json.Number `json:"birth_year"`
	Summary        string      `json:"summary"`
	Industry       string      `json:"industry"`
	LinkedInURL    string      `json:"linkedin_url"`
	TwitterURL     string      `json:"twitter_url"`
	FacebookURL    string      `json:"facebook_url"`
	GithubURL      string      `json:"github_url"`
	Education      []Education `json:"education"`
	Profiles       []Profile   `json:"profiles"`
}

// Education is one school entry.
type Education struct {
	School struct {
		Name string `json:"name"`
	} `json:"school"`
	Degrees []string `json:"degrees"`
}

// Profile is one social network account.
type Profile struct {
	Network  string `json:"network"`
	URL      string `json:"url"`
	Username string `json:"username"`
}

// SearchParams are the fields translated into a person search.
type SearchParams struct {
	Name     string
	Location string
	Company  string
	Age      string
	// Now anchors the age to birth-year conversion; zero means time.Now.
	Now time.Time
}

// EnrichParams selects one person. ID takes precedence over ProfileURL.
type EnrichParams struct {
	ID         string
	ProfileURL string
}

// API is the PDL surface used by discovery and enrichment.
type API interface {
	Search(ctx context.Context, params SearchParams) ([]Person, error)
	Enrich(ctx context.Context, params EnrichParams) (*Person, error)
}

// Client provides access to the People Data Labs API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	policy     httpclient.Policy
}

var _ API = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(policy httpclient.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// New creates a PDL client.
func New(apiKey, baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("people data api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("people data base url required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		policy: httpclient.Policy{
			Attempts: 2,
			Backoff:  httpclient.Backoff{Base: time.Second, Max: 5 * time.Second},
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Search runs a person search. An empty Name yields no results.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]Person, error) {
	sql := BuildSQL(params)
	if sql == "" {
		return nil, nil
	}
	values := url.Values{}
	values.Set("sql", sql)
	values.Set("size", strconv.Itoa(defaultSearchSize))

	var payload struct {
		Status int      `json:"status"`
		Data   []Person `json:"data"`
	}
	found, err := c.get(ctx, "/person/search", values, &payload)
	if err != nil || !found {
		return nil, err
	}
	return payload.Data, nil
}

// Enrich looks up one person. It returns nil when PDL has no match.
func (c *Client) Enrich(ctx context.Context, params EnrichParams) (*Person, error) {
	values := url.Values{}
	switch {
	case strings.TrimSpace(params.ID) != "":
		values.Set("pdl_id", strings.TrimSpace(params.ID))
	case strings.TrimSpace(params.ProfileURL) != "":
		values.Set("profile", strings.TrimSpace(params.ProfileURL))
	default:
		return nil, errors.New("people data enrich: id or profile url required")
	}

	var payload struct {
		Status int     `json:"status"`
		Data   *Person `json:"data"`
	}
	found, err := c.get(ctx, "/person/enrich", values, &payload)
	if err != nil || !found {
		return nil, err
	}
	if payload.Status != 0 && payload.Status != http.StatusOK {
		return nil, nil
	}
	return payload.Data, nil
}

func (c *Client) get(ctx context.Context, path string, values url.Values, target any) (bool, error) {
	endpoint := c.baseURL + path + "?" + values.Encode()
	found := true
	err := c.policy.Do(ctx, func(int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		req.Header.Set("Accept", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s request: %w", serviceName, err)
		}
		defer resp.Body.Close()
		body, err := httpclient.ReadBody(resp, serviceName, 0)
		if err != nil {
			var statusErr *httpclient.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
				found = false
				return nil
			}
			return err
		}
		if err := json.Unmarshal(body, target); err != nil {
			return fmt.Errorf("decode %s response: %w", serviceName, err)
		}
		return nil
	})
	return found, err
}

// BuildSQL renders params as a PDL person query. Values are single-quote
// escaped; the age becomes a three-year birth_year window.
func BuildSQL(params SearchParams) string {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return ""
	}
	clauses := []string{fmt.Sprintf("full_name='%s'", escape(strings.ToLower(name)))}
	if loc := strings.TrimSpace(params.Location); loc != "" {
		clauses = append(clauses, fmt.Sprintf("location_name LIKE '%%%s%%'", escape(strings.ToLower(loc))))
	}
	if company := strings.TrimSpace(params.Company); company != "" {
		clauses = append(clauses, fmt.Sprintf("job_company_name LIKE '%%%s%%'", escape(strings.ToLower(company))))
	}
	if age, err := strconv.Atoi(strings.TrimSpace(params.Age)); err == nil && age > 0 && age < 130 {
		now := params.Now
		if now.IsZero() {
			now = time.Now()
		}
		birth := now.Year() - age
		clauses = append(clauses, fmt.Sprintf("birth_year BETWEEN %d AND %d", birth-1, birth+1))
	}
	return "SELECT * FROM person WHERE " + strings.Join(clauses, " AND ")
}

func escape(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

// Headline renders "Title at Company • Location" from whatever is present.
func (p Person) Headline() string {
	var parts []string
	switch {
	case p.JobTitle != "" && p.JobCompanyName != "":
		parts = append(parts, p.JobTitle+" at "+p.JobCompanyName)
	case p.JobTitle != "":
		parts = append(parts, p.JobTitle)
	case p.JobCompanyName != "":
		parts = append(parts, p.JobCompanyName)
	}
	if p.LocationName != "" {
		parts = append(parts, p.LocationName)
	}
	return strings.Join(parts, " • ")
}

// Schools returns the distinct school names in record order.
func (p Person) Schools() []string {
	seen := make(map[string]struct{}, len(p.Education))
	var out []string
	for _, e := range p.Education {
		name := strings.TrimSpace(e.School.Name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
