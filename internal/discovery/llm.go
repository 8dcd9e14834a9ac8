package discovery

import (
	"context"
	"fmt"
	"strings"

	"dossier/internal/profile"
	"dossier/internal/query"
)

// SourceLanguageModel names the model-backed source.
const SourceLanguageModel = "language_model"

const maxModelCandidates = 5

// Completer is the language model surface discovery needs.
type Completer interface {
	CompleteInto(ctx context.Context, systemPrompt, userPrompt string, target any) error
}

// LanguageModel asks a chat model for likely candidates. It is the last
// resort when structured and web sources come back empty.
type LanguageModel struct {
	model Completer
}

// NewLanguageModel wraps a chat completion client.
func NewLanguageModel(model Completer) *LanguageModel {
	return &LanguageModel{model: model}
}

// Name implements Source.
func (l *LanguageModel) Name() string { return SourceLanguageModel }

const candidateSystemPrompt = `You are a person search assistant. Respond with a JSON object only.`

type modelCandidates struct {
	Candidates []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		ImageURL    string `json:"imageUrl"`
	} `json:"candidates"`
}

// FindCandidates implements Source.
func (l *LanguageModel) FindCandidates(ctx context.Context, q profile.Query) ([]profile.Candidate, error) {
	prompt := fmt.Sprintf(`Find people matching the query %q.
Return {"candidates": [...]} where each entry has:
- id: a unique string identifier
- name: full name without titles or listicle prefixes
- description: "Occupation • Location"
- imageUrl: a profile photo URL or null
If several people match, return the %d most relevant.`, RefinedQuery(q), maxModelCandidates)

	var decoded modelCandidates
	if err := l.model.CompleteInto(ctx, candidateSystemPrompt, prompt, &decoded); err != nil {
		return nil, err
	}
	ids := map[string]int{}
	out := make([]profile.Candidate, 0, len(decoded.Candidates))
	for _, c := range decoded.Candidates {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		base := strings.TrimSpace(c.ID)
		if base == "" {
			base = slug(name)
		}
		out = append(out, profile.Candidate{
			ID:       uniqueID(ids, base),
			Name:     name,
			Summary:  strings.TrimSpace(c.Description),
			ImageURL: strings.TrimSpace(c.ImageURL),
			Source:   SourceLanguageModel,
		})
		if len(out) == maxModelCandidates {
			break
		}
	}
	if len(out) == 0 {
		// A handle query still deserves one candidate to enrich.
		if handle, ok := query.Handle(q); ok {
			out = append(out, profile.Candidate{ID: slug(handle), Name: "@" + handle, Source: SourceLanguageModel})
		}
	}
	return out, nil
}
