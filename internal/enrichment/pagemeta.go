package enrichment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"dossier/internal/httpclient"
	"dossier/internal/profile"
	"dossier/internal/textutil"
)

// SourcePageMeta names the page metadata adapter.
const SourcePageMeta = "page_meta"

const (
	defaultMaxPages = 2
	pageBodyLimit   = 2 << 20
	pageBioLimit    = 500

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// PageMeta reads Open Graph metadata and outbound profile links from the
// personal or official pages phase one discovered.
type PageMeta struct {
	maxPages   int
	httpClient *http.Client
}

// PageMetaOption configures PageMeta.
type PageMetaOption func(*PageMeta)

// WithPageHTTPClient overrides the page HTTP client.
func WithPageHTTPClient(client *http.Client) PageMetaOption {
	return func(p *PageMeta) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// NewPageMeta builds the adapter.
func NewPageMeta(maxPages int, timeout time.Duration, opts ...PageMetaOption) *PageMeta {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	p := &PageMeta{maxPages: maxPages, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Source implements Adapter.
func (p *PageMeta) Source() string { return SourcePageMeta }

// Kind implements Adapter.
func (p *PageMeta) Kind() profile.Kind { return profile.KindPageMeta }

// Applies implements Conditional.
func (p *PageMeta) Applies(subject Subject) bool { return len(subject.Links) > 0 }

type pageMeta struct {
	title       string
	description string
	image       string
	profiles    []string
}

// Enrich implements Adapter. The first page that loads supplies the bio;
// images and profile links are collected from every page.
func (p *PageMeta) Enrich(ctx context.Context, subject Subject) (profile.EnrichmentResult, error) {
	var (
		result profile.EnrichmentResult
		errs   []error
		loaded int
		seen   = map[string]bool{}
	)
	for _, link := range subject.Links {
		if loaded >= p.maxPages {
			break
		}
		meta, err := p.fetch(ctx, link)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", link, err))
			continue
		}
		loaded++
		if result.Basic.Bio == "" {
			result.Basic.Bio = textutil.Truncate(meta.description, pageBioLimit)
		}
		if meta.image != "" {
			result.Images = append(result.Images, profile.ImageRef{URL: meta.image, Caption: meta.title})
		}
		for _, raw := range meta.profiles {
			id, ok := IdentifierFromURL(raw)
			if !ok || id.Handle == "" || seen[id.Platform] {
				continue
			}
			seen[id.Platform] = true
			result.Socials = append(result.Socials, profile.SocialProfile{Platform: id.Platform, Handle: id.Handle, URL: id.URL})
		}
	}
	if loaded == 0 {
		if len(errs) == 0 {
			return profile.EnrichmentResult{}, errors.New("no pages to read")
		}
		return profile.EnrichmentResult{}, errors.Join(errs...)
	}
	return result, nil
}

func (p *PageMeta) fetch(ctx context.Context, link string) (pageMeta, error) {
	base, err := url.Parse(link)
	if err != nil || base.Host == "" {
		return pageMeta{}, fmt.Errorf("invalid page url %q", link)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return pageMeta{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return pageMeta{}, fmt.Errorf("page request: %w", err)
	}
	defer resp.Body.Close()
	body, err := httpclient.ReadBody(resp, "page", pageBodyLimit)
	if err != nil {
		return pageMeta{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageMeta{}, fmt.Errorf("parse page: %w", err)
	}
	return extractMeta(doc, base), nil
}

func extractMeta(doc *goquery.Document, base *url.URL) pageMeta {
	meta := pageMeta{
		title: textutil.FirstNonEmpty(
			metaContent(doc, `meta[property="og:title"]`),
			metaContent(doc, `meta[name="twitter:title"]`),
			doc.Find("title").First().Text(),
		),
		description: textutil.CollapseSpace(textutil.FirstNonEmpty(
			metaContent(doc, `meta[property="og:description"]`),
			metaContent(doc, `meta[name="description"]`),
			metaContent(doc, `meta[name="twitter:description"]`),
		)),
		image: resolve(base, textutil.FirstNonEmpty(
			metaContent(doc, `meta[property="og:image"]`),
			metaContent(doc, `meta[name="twitter:image"]`),
		)),
	}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := resolve(base, s.AttrOr("href", ""))
		if href != "" && PlatformFromURL(href) != "" {
			meta.profiles = append(meta.profiles, href)
		}
	})
	return meta
}

func metaContent(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().AttrOr("content", ""))
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.String()
}
