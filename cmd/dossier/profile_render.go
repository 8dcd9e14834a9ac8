package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"dossier/internal/api"
	"dossier/internal/profile"
	"dossier/internal/textutil"
)

const stampLayout = "2006-01-02 15:04"

func renderProfile(out io.Writer, resp api.ProfileResponse) {
	p := resp.Profile
	if p == nil {
		fmt.Fprintln(out, "No profile")
		return
	}

	name := textutil.FirstNonEmpty(p.Basic.Name, p.Query.Text, "(unnamed)")
	fmt.Fprintf(out, "%s\n", name)
	fmt.Fprintf(out, "Key:     %s\n", p.Key)
	fmt.Fprintf(out, "ID:      %s\n", p.ID)
	fmt.Fprintf(out, "Cached:  %s    Partial: %s\n", yesNo(resp.Cached), yesNo(resp.Partial))
	fmt.Fprintf(out, "Updated: %s\n", formatStamp(p.UpdatedAt))

	basic := [][]string{}
	for _, field := range []struct{ label, value string }{
		{"Age", p.Basic.Age},
		{"Location", p.Basic.Location},
		{"Occupation", p.Basic.Occupation},
		{"Company", p.Basic.Company},
		{"Education", strings.Join(p.Basic.Education, "; ")},
	} {
		if strings.TrimSpace(field.value) != "" {
			basic = append(basic, []string{field.label, field.value})
		}
	}
	if len(basic) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, basic, nil))
	}

	if summary := strings.TrimSpace(textutil.FirstNonEmpty(p.Summary, p.Basic.Bio)); summary != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, summary)
	}

	if len(p.Socials) > 0 {
		rows := make([][]string, 0, len(p.Socials))
		for _, s := range p.Socials {
			followers := ""
			if s.Followers > 0 {
				followers = strconv.FormatInt(s.Followers, 10)
			}
			rows = append(rows, []string{s.Platform, s.Handle, followers, yesNo(s.Verified), s.URL})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(
			[]string{"Platform", "Handle", "Followers", "Verified", "URL"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
		))
	}

	if len(p.Assets) > 0 {
		rows := make([][]string, 0, len(p.Assets))
		for _, a := range p.Assets {
			score := ""
			if a.Similarity != nil {
				score = strconv.FormatFloat(*a.Similarity, 'f', 2, 64)
			}
			rows = append(rows, []string{string(a.Role), a.Source, score, textutil.FirstNonEmpty(a.DurableURL, a.OriginalURL)})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(
			[]string{"Photo", "Source", "Score", "URL"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
		))
	}

	if len(p.Mentions) > 0 {
		rows := make([][]string, 0, len(p.Mentions))
		for _, m := range p.Mentions {
			published := ""
			if m.PublishedAt != nil {
				published = m.PublishedAt.Local().Format("2006-01-02")
			}
			rows = append(rows, []string{published, m.Source, textutil.Truncate(m.Title, 80)})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"Date", "Source", "Mention"}, rows, nil))
	}

	if len(p.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(
			[]string{"Source", "Kind", "Status", "Duration", "Error"},
			sourceRows(p.Sources),
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		))
	}
}

func sourceRows(trace []profile.SourceTrace) [][]string {
	rows := make([][]string, 0, len(trace))
	for _, s := range trace {
		detail := s.ErrorKind
		if s.Error != "" {
			detail = strings.TrimSpace(detail + " " + textutil.Truncate(s.Error, 60))
		}
		rows = append(rows, []string{
			s.Source,
			string(s.Kind),
			string(s.Status),
			(time.Duration(s.DurationMS) * time.Millisecond).String(),
			detail,
		})
	}
	return rows
}

func renderCandidates(out io.Writer, list []profile.Candidate) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No candidates found")
		return
	}
	rows := make([][]string, 0, len(list))
	for _, c := range list {
		score := ""
		if c.SimilarityScore > 0 {
			score = strconv.FormatFloat(c.SimilarityScore, 'f', 2, 64)
		}
		rows = append(rows, []string{
			strconv.Itoa(c.Rank),
			c.ID,
			c.Name,
			textutil.Truncate(c.Summary, 60),
			score,
			c.Source,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "ID", "Name", "Summary", "Score", "Source"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Local().Format(stampLayout)
}
