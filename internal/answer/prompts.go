package answer

import (
	"encoding/json"
	"fmt"
	"strings"

	"dossier/internal/profile"
	"dossier/internal/query"
	"dossier/internal/textutil"
)

const biographySystemPrompt = `You are a knowledgeable assistant that writes comprehensive, well-structured biographical summaries about people in a clear, encyclopedic style. Focus on facts, achievements, and notable information. Respond with a JSON object only: {"biography": "..."}.`

const validitySystemPrompt = `Decide whether the text contains specific biographical facts about a person.
Reply INVALID when it refuses, says it has no information, cannot verify, is a template, or asks for more details.
Reply VALID when it gives any specific fact such as a job, age, works, or background.
Respond with a JSON object only: {"validity": "VALID"} or {"validity": "INVALID"}.`

const relatedSystemPrompt = `You generate relevant follow-up questions about people. Respond with a JSON object only: {"questions": ["..."]}.`

const followUpSystemPrompt = `You give SHORT, direct answers to specific questions about a person: two or three sentences at most, starting with the answer and using only the context provided. Respond with a JSON object only: {"answer": "..."}.`

const chatSystemPrompt = `You are an assistant helping users understand information about a person. Answer from the information below. When the user asks about something it does not cover, say you do not have that information. Support requests such as "show me only Instagram data" or "summarize their professional background". Respond with a JSON object only: {"reply": "..."}.`

// refusalPhrases mark a biography the model declined to write.
var refusalPhrases = []string{
	"i don't have", "i do not have", "i cannot provide", "i can't provide",
	"no reliable", "no verifiable", "doesn't have information",
	"don't have information", "unable to provide", "cannot fabricate",
}

func condenseSystemPrompt(name string) string {
	return fmt.Sprintf(`Summarize the known data into a two paragraph profile of %s. Do not add outside information; only make it read professionally. Respond with a JSON object only: {"summary": "..."}.`, name)
}

func displayName(p *profile.Profile) string {
	return textutil.FirstNonEmpty(p.Basic.Name, query.Display(p.Query), "this person")
}

// knownFacts is the descriptive text already on the profile.
func knownFacts(p *profile.Profile) string {
	summary := strings.TrimSpace(p.Summary)
	bio := strings.TrimSpace(p.Basic.Bio)
	switch {
	case summary == "":
		return bio
	case bio == "" || strings.Contains(summary, bio):
		return summary
	default:
		return summary + "\n" + bio
	}
}

func biographyPrompt(p *profile.Profile) string {
	return fmt.Sprintf("Provide a biographical summary about %s. Include their background, major achievements, career, and notable contributions.\n\nAvailable information:\n%s",
		displayName(p), briefContext(p))
}

// briefContext lists the headline facts of a profile, one per line.
func briefContext(p *profile.Profile) string {
	var lines []string
	add := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			lines = append(lines, label+": "+value)
		}
	}
	add("Name", p.Basic.Name)
	add("Occupation", p.Basic.Occupation)
	add("Company", p.Basic.Company)
	add("Location", p.Basic.Location)
	add("Education", strings.Join(p.Basic.Education, ", "))

	platforms := make([]string, 0, len(p.Socials))
	for _, social := range p.Socials {
		if social.Platform != "" {
			platforms = append(platforms, social.Platform)
		}
	}
	add("Social media", strings.Join(platforms, ", "))

	var titles []string
	for _, m := range p.Mentions {
		if m.Title == "" {
			continue
		}
		titles = append(titles, m.Title)
		if len(titles) == 3 {
			break
		}
	}
	add("Notable mentions", strings.Join(titles, "; "))

	if len(lines) == 0 {
		return "Person: " + displayName(p)
	}
	return strings.Join(lines, "\n")
}

func relatedPrompt(p *profile.Profile) string {
	role := textutil.FirstNonEmpty(p.Basic.Occupation, "a notable person")
	if company := strings.TrimSpace(p.Basic.Company); company != "" {
		role += " at " + company
	}
	return fmt.Sprintf("Generate %d relevant follow-up questions about %s, considering their role as %s. Focus on commonly searched topics like companies, achievements, personal life, and career milestones.",
		maxRelatedQuestions, displayName(p), role)
}

// focusedContext is briefContext plus age and described mentions, for
// answering one question.
func focusedContext(p *profile.Profile) string {
	var lines []string
	add := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			lines = append(lines, label+": "+value)
		}
	}
	add("Name", p.Basic.Name)
	add("Occupation", p.Basic.Occupation)
	add("Company", p.Basic.Company)
	add("Location", p.Basic.Location)
	add("Age", p.Basic.Age)
	add("Summary", p.Summary)

	var mentions []string
	for _, m := range p.Mentions {
		if m.Title == "" {
			continue
		}
		mentions = append(mentions, "- "+strings.TrimSuffix(m.Title+": "+m.Description, ": "))
		if len(mentions) == 5 {
			break
		}
	}
	if len(mentions) > 0 {
		lines = append(lines, "Notable achievements:\n"+strings.Join(mentions, "\n"))
	}
	if len(lines) == 0 {
		return "Person: " + displayName(p)
	}
	return strings.Join(lines, "\n")
}

// fullContext renders every section of the profile for a chat.
func fullContext(p *profile.Profile) string {
	var b strings.Builder
	if basic, err := json.MarshalIndent(p.Basic, "", "  "); err == nil {
		b.WriteString("BASIC INFORMATION:\n")
		b.Write(basic)
		b.WriteString("\n\n")
	}
	if summary := strings.TrimSpace(p.Summary); summary != "" {
		b.WriteString("SUMMARY:\n" + summary + "\n\n")
	}
	if len(p.Socials) > 0 {
		b.WriteString("SOCIAL MEDIA PROFILES:\n")
		for _, social := range p.Socials {
			entry, err := json.Marshal(social)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", strings.ToUpper(social.Platform), entry)
		}
		b.WriteString("\n")
	}
	if len(p.Assets) > 0 {
		fmt.Fprintf(&b, "PHOTOS: %d photos available\n\n", len(p.Assets))
	}
	if len(p.Mentions) > 0 {
		b.WriteString("NOTABLE MENTIONS:\n")
		for _, m := range p.Mentions {
			entry, err := json.Marshal(m)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "- %s\n", entry)
		}
		b.WriteString("\n")
	}
	if len(p.Sources) > 0 {
		fmt.Fprintf(&b, "DATA SOURCES: information gathered from %d sources\n", len(p.Sources))
	}
	return strings.TrimSpace(b.String())
}
