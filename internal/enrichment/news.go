package enrichment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"dossier/internal/httpclient"
	"dossier/internal/profile"
	"dossier/internal/textutil"
)

// SourceNews names the news mention adapter.
const SourceNews = "news"

const (
	defaultNewsItems     = 10
	newsDescriptionLimit = 300
	newsFeedLimit        = 4 << 20
)

// News searches an RSS news feed for mentions of the person.
type News struct {
	feedURL    string
	maxItems   int
	httpClient *http.Client
	parser     *gofeed.Parser
}

// NewsOption configures News.
type NewsOption func(*News)

// WithNewsHTTPClient overrides the feed HTTP client.
func WithNewsHTTPClient(client *http.Client) NewsOption {
	return func(n *News) {
		if client != nil {
			n.httpClient = client
		}
	}
}

// NewNews builds the adapter. feedURL is a search feed endpoint taking the
// query in its q parameter.
func NewNews(feedURL string, maxItems int, timeout time.Duration, opts ...NewsOption) *News {
	if maxItems <= 0 {
		maxItems = defaultNewsItems
	}
	n := &News{
		feedURL:    strings.TrimSpace(feedURL),
		maxItems:   maxItems,
		httpClient: &http.Client{Timeout: timeout},
		parser:     gofeed.NewParser(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Source implements Adapter.
func (n *News) Source() string { return SourceNews }

// Kind implements Adapter.
func (n *News) Kind() profile.Kind { return profile.KindNews }

// Applies implements Conditional.
func (n *News) Applies(subject Subject) bool {
	return n.feedURL != "" && newsName(subject) != ""
}

// newsName is the person's real name; bare handles make poor news queries.
func newsName(subject Subject) string {
	name := strings.TrimSpace(subject.Name)
	if strings.HasPrefix(strings.TrimSpace(subject.Query.Text), "@") && subject.Name == SearchName(subject.Query.Text) {
		return ""
	}
	return name
}

// Enrich implements Adapter.
func (n *News) Enrich(ctx context.Context, subject Subject) (profile.EnrichmentResult, error) {
	name := newsName(subject)
	if name == "" {
		return profile.EnrichmentResult{}, errors.New("no name to search news for")
	}
	endpoint, err := url.Parse(n.feedURL)
	if err != nil {
		return profile.EnrichmentResult{}, fmt.Errorf("parse feed url: %w", err)
	}
	values := endpoint.Query()
	values.Set("q", fmt.Sprintf("%q", name))
	if values.Get("hl") == "" {
		values.Set("hl", "en-US")
		values.Set("gl", "US")
		values.Set("ceid", "US:en")
	}
	endpoint.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return profile.EnrichmentResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.8")
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return profile.EnrichmentResult{}, fmt.Errorf("news request: %w", err)
	}
	defer resp.Body.Close()
	body, err := httpclient.ReadBody(resp, "news", newsFeedLimit)
	if err != nil {
		return profile.EnrichmentResult{}, err
	}
	feed, err := n.parser.ParseString(string(body))
	if err != nil {
		return profile.EnrichmentResult{}, fmt.Errorf("parse news feed: %w", err)
	}

	key := textutil.NameKey(name)
	var result profile.EnrichmentResult
	for _, item := range feed.Items {
		if len(result.Mentions) >= n.maxItems {
			break
		}
		title, publisher := splitHeadline(item.Title)
		description := htmlText(item.Description)
		if !strings.Contains(textutil.NameKey(title+" "+description), key) {
			continue
		}
		mention := profile.Mention{
			Title:       title,
			Description: textutil.Truncate(description, newsDescriptionLimit),
			URL:         strings.TrimSpace(item.Link),
			Source:      publisher,
		}
		if item.PublishedParsed != nil {
			published := item.PublishedParsed.UTC()
			mention.PublishedAt = &published
		}
		result.Mentions = append(result.Mentions, mention)
	}
	return result, nil
}

// splitHeadline separates the "Headline - Publisher" form news feeds use.
func splitHeadline(title string) (string, string) {
	title = strings.TrimSpace(title)
	idx := strings.LastIndex(title, " - ")
	if idx <= 0 {
		return title, ""
	}
	return strings.TrimSpace(title[:idx]), strings.TrimSpace(title[idx+3:])
}

func htmlText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return textutil.CollapseSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return textutil.CollapseSpace(fragment)
	}
	return textutil.CollapseSpace(doc.Text())
}
