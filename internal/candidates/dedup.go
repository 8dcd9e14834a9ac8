package candidates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"dossier/internal/profile"
	"dossier/internal/textutil"
)

const (
	descriptorOverlap    = 0.5
	modelDescriptorLimit = 500

	// minIDFDocuments is the corpus size below which IDF weighting would erase
	// every shared term.
	minIDFDocuments = 4
)

// Deduper merges candidates that describe the same person. Implementations
// must keep every field of the inputs they merge.
type Deduper interface {
	Dedup(ctx context.Context, list []profile.Candidate) ([]profile.Candidate, error)
}

// RuleDeduper merges candidates with the same normalized name whose
// descriptors overlap, or where one has no descriptor at all.
type RuleDeduper struct {
	threshold float64
}

// NewRuleDeduper returns a deduper using the default overlap threshold.
func NewRuleDeduper() *RuleDeduper {
	return &RuleDeduper{threshold: descriptorOverlap}
}

// Dedup implements Deduper. The first occurrence of a person is the primary
// entry; later duplicates only fill its empty fields.
func (d *RuleDeduper) Dedup(_ context.Context, list []profile.Candidate) ([]profile.Candidate, error) {
	fingerprints := make([]*textutil.Fingerprint, len(list))
	corpus := textutil.NewCorpus()
	for i, c := range list {
		fingerprints[i] = textutil.NewFingerprint(c.Summary)
		corpus.Add(fingerprints[i])
	}
	if len(list) >= minIDFDocuments {
		idf := corpus.IDF()
		for i := range fingerprints {
			fingerprints[i] = fingerprints[i].WithIDF(idf)
		}
	}

	out := make([]profile.Candidate, 0, len(list))
	primaries := make([]int, 0, len(list))
	for i, c := range list {
		merged := false
		for j, p := range primaries {
			if !sameName(list[p], c) {
				continue
			}
			if descriptorsMatch(list[p], c, fingerprints[p], fingerprints[i], d.threshold) {
				out[j] = fill(out[j], c)
				merged = true
				break
			}
		}
		if !merged {
			primaries = append(primaries, i)
			out = append(out, clone(c))
		}
	}
	return out, nil
}

func sameName(a, b profile.Candidate) bool {
	key := textutil.NameKey(a.Name)
	return key != "" && key == textutil.NameKey(b.Name)
}

func descriptorsMatch(a, b profile.Candidate, fa, fb *textutil.Fingerprint, threshold float64) bool {
	if strings.TrimSpace(a.Summary) == "" || strings.TrimSpace(b.Summary) == "" {
		return true
	}
	return textutil.CosineSimilarity(fa, fb) >= threshold
}

// fill copies non-empty fields from dup into any empty field of primary.
func fill(primary, dup profile.Candidate) profile.Candidate {
	primary.Summary = textutil.FirstNonEmpty(primary.Summary, dup.Summary)
	primary.ImageURL = textutil.FirstNonEmpty(primary.ImageURL, dup.ImageURL)
	primary.Link = textutil.FirstNonEmpty(primary.Link, dup.Link)
	primary.Source = textutil.FirstNonEmpty(primary.Source, dup.Source)
	for k, v := range dup.Attributes {
		if primary.Attributes == nil {
			primary.Attributes = map[string]string{}
		}
		if _, ok := primary.Attributes[k]; !ok {
			primary.Attributes[k] = v
		}
	}
	return primary
}

func clone(c profile.Candidate) profile.Candidate {
	c.Attributes = maps.Clone(c.Attributes)
	return c
}

// Completer is the language model surface the semantic deduper needs.
type Completer interface {
	CompleteInto(ctx context.Context, systemPrompt, userPrompt string, target any) error
}

// ModelDeduper asks a language model which candidates are the same person.
// The model only chooses groupings; every output candidate is rebuilt from
// the inputs by ID so no field is lost or invented.
type ModelDeduper struct {
	model Completer
}

// NewModelDeduper wraps a chat completion client.
func NewModelDeduper(model Completer) *ModelDeduper {
	return &ModelDeduper{model: model}
}

type modelCandidate struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ImageURL    *string  `json:"imageUrl"`
	MergedIDs   []string `json:"merged_ids,omitempty"`
}

type modelDedupResponse struct {
	Candidates []modelCandidate `json:"candidates"`
}

const dedupSystemPrompt = `You are a data deduplication expert. Respond with a JSON object only.`

// Dedup implements Deduper.
func (d *ModelDeduper) Dedup(ctx context.Context, list []profile.Candidate) ([]profile.Candidate, error) {
	if len(list) < 2 {
		return list, nil
	}
	payload := make([]modelCandidate, len(list))
	for i, c := range list {
		var image *string
		if c.ImageURL != "" {
			image = &list[i].ImageURL
		}
		payload[i] = modelCandidate{ID: c.ID, Name: c.Name, Description: textutil.Truncate(c.Summary, modelDescriptorLimit), ImageURL: image}
	}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode candidates: %w", err)
	}
	prompt := fmt.Sprintf(`Some of these person candidates refer to the same real-world person.
Merge entries ONLY when they are definitely the same person. Same name with different
occupations or places are different people. When unsure, keep them separate.
For each merged entry keep the id of the primary entry and list the absorbed ids in "merged_ids".

Candidates:
%s

Return {"candidates": [{"id", "name", "description", "imageUrl", "merged_ids"}]}.`, encoded)

	var resp modelDedupResponse
	if err := d.model.CompleteInto(ctx, dedupSystemPrompt, prompt, &resp); err != nil {
		return nil, err
	}
	return rejoin(list, resp.Candidates)
}

// rejoin rebuilds the model's grouping from the original candidates. Inputs
// the model neither returned nor listed as merged are folded into a returned
// entry with the same name, or kept as their own entry.
func rejoin(list []profile.Candidate, groups []modelCandidate) ([]profile.Candidate, error) {
	if len(groups) == 0 {
		return nil, errors.New("model returned no candidates")
	}
	byID := make(map[string]int, len(list))
	for i, c := range list {
		byID[c.ID] = i
	}
	used := make([]bool, len(list))
	out := make([]profile.Candidate, 0, len(groups))
	for _, g := range groups {
		idx, ok := byID[strings.TrimSpace(g.ID)]
		if !ok || used[idx] {
			continue
		}
		used[idx] = true
		merged := clone(list[idx])
		for _, id := range g.MergedIDs {
			j, ok := byID[strings.TrimSpace(id)]
			if !ok || used[j] {
				continue
			}
			used[j] = true
			merged = fill(merged, list[j])
		}
		out = append(out, merged)
	}
	if len(out) == 0 {
		return nil, errors.New("model returned no known candidate ids")
	}
	for i, c := range list {
		if used[i] {
			continue
		}
		folded := false
		for j := range out {
			if sameName(out[j], c) {
				out[j] = fill(out[j], c)
				folded = true
				break
			}
		}
		if !folded {
			out = append(out, clone(c))
		}
	}
	return out, nil
}
