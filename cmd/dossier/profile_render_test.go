package main

import (
	"bytes"
	"testing"

	"dossier/internal/api"
	"dossier/internal/profile"
)

func TestRenderProfileTables(t *testing.T) {
	score := 0.91
	resp := api.ProfileResponse{
		Cached:  true,
		Partial: true,
		Profile: &profile.Profile{
			ID:      "p1",
			Key:     "ada lovelace",
			Basic:   profile.BasicInfo{Name: "Ada Lovelace", Occupation: "Mathematician"},
			Summary: "Wrote the first published algorithm.",
			Socials: []profile.SocialProfile{{Platform: "twitter", Handle: "ada", Followers: 1200}},
			Assets:  []profile.Asset{{DurableURL: "http://127.0.0.1:7490/assets/a.jpg", Source: "web_summary", Role: profile.RolePhoto, Similarity: &score}},
			Sources: []profile.SourceTrace{
				{Source: "web_summary", Kind: profile.KindWebSummary, Status: profile.StatusSuccess, DurationMS: 1500},
				{Source: "news", Kind: profile.KindNews, Status: profile.StatusTimeout, ErrorKind: "adapter_timeout"},
			},
		},
	}
	var buf bytes.Buffer
	renderProfile(&buf, resp)
	out := buf.String()
	for _, want := range []string{"Ada Lovelace", "Mathematician", "twitter", "1200", "0.91", "adapter_timeout", "1.5s", "Partial: yes"} {
		requireContains(t, out, want)
	}
}

func TestRenderCandidatesEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderCandidates(&buf, nil)
	requireContains(t, buf.String(), "No candidates found")
}
