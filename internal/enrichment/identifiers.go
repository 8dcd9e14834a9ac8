package enrichment

import (
	"net/url"
	"strings"

	"dossier/internal/discovery"
	"dossier/internal/profile"
)

// platformHosts maps registrable domains to platform names.
var platformHosts = map[string]string{
	"instagram.com": "instagram",
	"twitter.com":   "twitter",
	"x.com":         "twitter",
	"linkedin.com":  "linkedin",
	"tiktok.com":    "tiktok",
	"facebook.com":  "facebook",
	"fb.com":        "facebook",
	"youtube.com":   "youtube",
	"github.com":    "github",
}

// NormalizePlatform maps the many spellings providers use to one platform
// name ("X", "Twitter/X" and "twitter" all become "twitter").
func NormalizePlatform(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "x", "twitter/x", "x/twitter", "x (twitter)", "twitter (x)":
		return "twitter"
	case "linked in":
		return "linkedin"
	case "ig":
		return "instagram"
	case "yt":
		return "youtube"
	}
	return strings.ReplaceAll(name, " ", "")
}

// SearchName strips a leading "@" from a display name.
func SearchName(name string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}

// PlatformFromURL returns the platform a profile URL belongs to, or "".
func PlatformFromURL(raw string) string {
	u, err := url.Parse(withScheme(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	for {
		if platform, ok := platformHosts[host]; ok {
			return platform
		}
		_, rest, found := strings.Cut(host, ".")
		if !found || !strings.Contains(rest, ".") {
			return ""
		}
		host = rest
	}
}

// IdentifierFromURL turns a profile URL into an account identifier.
func IdentifierFromURL(raw string) (profile.Identifier, bool) {
	platform := PlatformFromURL(raw)
	if platform == "" {
		return profile.Identifier{}, false
	}
	return profile.Identifier{Platform: platform, Handle: HandleFromURL(platform, raw), URL: withScheme(raw)}, true
}

// HandleFromURL extracts the account name from a profile URL path.
func HandleFromURL(platform, raw string) string {
	u, err := url.Parse(withScheme(raw))
	if err != nil {
		return ""
	}
	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return ""
	}
	first := segments[0]
	switch platform {
	case "linkedin":
		if (first == "in" || first == "pub") && len(segments) > 1 {
			return segments[1]
		}
		return ""
	case "youtube":
		if (first == "c" || first == "channel" || first == "user") && len(segments) > 1 {
			return segments[1]
		}
	case "facebook":
		if first == "profile.php" {
			return u.Query().Get("id")
		}
	}
	return strings.TrimPrefix(first, "@")
}

// appendIdentifier keeps the first account seen per platform and fills its
// missing handle or URL from later sightings.
func appendIdentifier(list []profile.Identifier, id profile.Identifier) []profile.Identifier {
	id.Platform = NormalizePlatform(id.Platform)
	id.Handle = strings.TrimPrefix(strings.TrimSpace(id.Handle), "@")
	id.URL = strings.TrimSpace(id.URL)
	if id.Platform == "" || (id.Handle == "" && id.URL == "") {
		return list
	}
	for i := range list {
		if list[i].Platform != id.Platform {
			continue
		}
		if list[i].Handle == "" {
			list[i].Handle = id.Handle
		}
		if list[i].URL == "" {
			list[i].URL = id.URL
		}
		return list
	}
	return append(list, id)
}

func candidateProfileURLs(c profile.Candidate) []string {
	urls := []string{
		c.Attribute(discovery.AttrLinkedInURL),
		c.Attribute(discovery.AttrTwitterURL),
		c.Attribute(discovery.AttrFacebookURL),
		c.Link,
	}
	out := urls[:0]
	for _, u := range urls {
		if strings.TrimSpace(u) != "" {
			out = append(out, u)
		}
	}
	return out
}

func withScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}
