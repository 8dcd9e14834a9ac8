package answer

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dossier/internal/logging"
	"dossier/internal/profile"
	"dossier/internal/services"
	"dossier/internal/textutil"
)

// Source points the reader at where a follow-up answer's facts live.
type Source struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// FollowUp is a short answer to one question about a stored profile.
type FollowUp struct {
	Question string          `json:"question"`
	Answer   string          `json:"answer"`
	Photos   []profile.Asset `json:"photos"`
	Sources  []Source        `json:"sources"`
	Related  []string        `json:"relatedQuestions"`
}

// FollowUp answers question from the stored profile named by ref. No new data
// is gathered.
func (s *Service) FollowUp(ctx context.Context, ref, question string) (FollowUp, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return FollowUp{}, services.Wrap(services.ErrInvalidQuery, "answer", "followup", "question is empty", nil)
	}
	p, err := s.Resolve(ctx, ref)
	if err != nil {
		return FollowUp{}, err
	}
	logger := logging.WithContext(ctx, s.logger).With(logging.String(logging.FieldCacheKey, p.Key.String()))

	var out struct {
		Answer string `json:"answer"`
	}
	prompt := fmt.Sprintf("Question: %s\n\nContext about %s:\n%s", question, displayName(p), focusedContext(p))
	if err := s.model.CompleteInto(ctx, followUpSystemPrompt, prompt, &out); err != nil {
		return FollowUp{}, services.Wrap(services.ErrAdapterError, "answer", "followup", "language model request failed", err)
	}
	text := strings.TrimSpace(out.Answer)
	if text == "" {
		return FollowUp{}, services.Wrap(services.ErrAdapterError, "answer", "followup", "model returned an empty answer", nil)
	}

	var related questionList
	relatedPrompt := fmt.Sprintf("The user just asked %q about %s (%s). Generate up to %d related questions they might ask next.",
		question, displayName(p), textutil.FirstNonEmpty(p.Basic.Occupation, "person"), maxFollowUpQuestions)
	if err := s.model.CompleteInto(ctx, relatedSystemPrompt, relatedPrompt, &related); err != nil {
		logger.Warn("follow-up questions failed", logging.Error(err))
	}

	logger.Debug("follow-up answered", logging.String(logging.FieldEventType, "followup_answered"))
	return FollowUp{
		Question: question,
		Answer:   text,
		Photos:   followUpPhotos(p),
		Sources:  followUpSources(p),
		Related:  related.take(maxFollowUpQuestions),
	}, nil
}

func followUpPhotos(p *profile.Profile) []profile.Asset {
	photos := make([]profile.Asset, 0, maxFollowUpPhotos)
	for _, a := range p.Assets {
		if a.DurableURL == "" {
			continue
		}
		photos = append(photos, a)
		if len(photos) == maxFollowUpPhotos {
			break
		}
	}
	return photos
}

// followUpSources lists up to two titled mentions, then up to two social
// accounts.
func followUpSources(p *profile.Profile) []Source {
	sources := make([]Source, 0, maxFollowUpSources)
	mentions := 0
	for _, m := range p.Mentions {
		if m.Title == "" {
			continue
		}
		sources = append(sources, Source{
			Name:        textutil.FirstNonEmpty(m.Source, "Source"),
			URL:         m.URL,
			Type:        "news",
			Description: m.Title,
		})
		if mentions++; mentions == 2 {
			break
		}
	}
	title := cases.Title(language.English)
	for i, social := range p.Socials {
		if i == 2 {
			break
		}
		description := "@" + strings.ToLower(social.Platform)
		if social.Handle != "" {
			description = "@" + social.Handle
		}
		sources = append(sources, Source{
			Name:        title.String(social.Platform),
			URL:         social.URL,
			Type:        "social",
			Description: description,
		})
	}
	return sources
}
