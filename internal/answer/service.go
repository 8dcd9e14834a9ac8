package answer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"dossier/internal/logging"
	"dossier/internal/profile"
	"dossier/internal/services"
)

const (
	maxRelatedQuestions  = 6
	maxFollowUpQuestions = 4
	maxFollowUpPhotos    = 3
	maxFollowUpSources   = 4
	maxChatHistory       = 20
)

// Completer is the language model surface the service needs.
type Completer interface {
	CompleteInto(ctx context.Context, systemPrompt, userPrompt string, target any) error
}

// Store is the persistence the service reads profiles from and writes
// answers and chats to.
type Store interface {
	Get(ctx context.Context, key profile.CacheKey) (*profile.Profile, error)
	GetByID(ctx context.Context, id string) (*profile.Profile, error)
	GetAnswer(ctx context.Context, key profile.CacheKey) (*profile.Answer, error)
	PutAnswer(ctx context.Context, a *profile.Answer) error
	GetChat(ctx context.Context, id string) (*profile.Chat, error)
	LatestChat(ctx context.Context, key profile.CacheKey) (*profile.Chat, error)
	PutChat(ctx context.Context, c *profile.Chat) error
}

// Service answers questions about stored profiles.
type Service struct {
	model  Completer
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a service over model and store.
func New(model Completer, store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		model:  model,
		store:  store,
		logger: logging.NewComponentLogger(logger, "answer"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is a biography and whether it came from the store.
type Result struct {
	Profile *profile.Profile
	Answer  *profile.Answer
	Cached  bool
}

// Resolve returns the stored profile named by ref, a cache key or a profile
// identifier.
func (s *Service) Resolve(ctx context.Context, ref string) (*profile.Profile, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, services.Wrap(services.ErrInvalidQuery, "answer", "resolve", "profile reference is empty", nil)
	}
	p, err := s.store.Get(ctx, profile.CacheKey(ref))
	if err != nil {
		return nil, err
	}
	if p == nil {
		if p, err = s.store.GetByID(ctx, ref); err != nil {
			return nil, err
		}
	}
	if p == nil {
		return nil, services.Wrap(services.ErrProfileNotFound, "answer", "resolve", "no stored profile matches "+ref, nil)
	}
	return p, nil
}

// Stored returns the previously generated answer without generating one.
func (s *Service) Stored(ctx context.Context, ref string) (Result, error) {
	p, err := s.Resolve(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	a, err := s.store.GetAnswer(ctx, p.Key)
	if err != nil {
		return Result{}, err
	}
	if a == nil {
		return Result{}, services.Wrap(services.ErrProfileNotFound, "answer", "get", "answer not generated yet", nil)
	}
	return Result{Profile: p, Answer: a, Cached: true}, nil
}

// Generate returns the biography for the profile named by ref. A stored
// answer is reused unless regenerate is set. When the model declines to
// describe the person, the facts already on the profile are condensed
// instead. A failed store write is logged and the answer still returned.
func (s *Service) Generate(ctx context.Context, ref string, regenerate bool) (Result, error) {
	p, err := s.Resolve(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	logger := logging.WithContext(ctx, s.logger).With(logging.String(logging.FieldCacheKey, p.Key.String()))

	if !regenerate {
		existing, err := s.store.GetAnswer(ctx, p.Key)
		switch {
		case err != nil:
			logger.Warn("stored answer lookup failed; generating", logging.Error(err))
		case existing != nil:
			return Result{Profile: p, Answer: existing, Cached: true}, nil
		}
	}

	text, fallback, err := s.biography(ctx, logger, p)
	if err != nil {
		return Result{}, err
	}
	a := &profile.Answer{
		Key:         p.Key,
		Text:        text,
		Related:     s.relatedQuestions(ctx, logger, p),
		Fallback:    fallback,
		GeneratedAt: s.now().UTC(),
	}
	if err := s.store.PutAnswer(ctx, a); err != nil {
		logging.WarnWithContext(logger, "answer store write failed", "answer_store_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the profile database with dossier doctor"),
			logging.String(logging.FieldImpact, "answer returned but regenerated next time"),
		)
	}
	logger.Info("answer generated",
		logging.String(logging.FieldEventType, "answer_generated"),
		logging.Bool("fallback", fallback),
		logging.Int("related_questions", len(a.Related)),
	)
	return Result{Profile: p, Answer: a}, nil
}

func (s *Service) biography(ctx context.Context, logger *slog.Logger, p *profile.Profile) (string, bool, error) {
	var out struct {
		Biography string `json:"biography"`
	}
	err := s.model.CompleteInto(ctx, biographySystemPrompt, biographyPrompt(p), &out)
	text := strings.TrimSpace(out.Biography)
	if err == nil && text != "" && s.valid(ctx, text) {
		return text, false, nil
	}

	known := knownFacts(p)
	if known == "" {
		if err != nil {
			return "", false, services.Wrap(services.ErrAdapterError, "answer", "biography", "language model request failed", err)
		}
		if text == "" {
			return "", false, services.Wrap(services.ErrAdapterError, "answer", "biography", "model returned an empty biography", nil)
		}
		logger.Warn("biography looks like a refusal and the profile has no facts to fall back on")
		return text, false, nil
	}
	if err != nil {
		logger.Warn("biography request failed; condensing stored facts", logging.Error(err))
	} else {
		logger.Info("biography rejected as a refusal; condensing stored facts")
	}
	return s.condense(ctx, logger, p, known), true, nil
}

// valid reports whether text carries biographical facts rather than a
// refusal. An unreachable evaluator counts as valid.
func (s *Service) valid(ctx context.Context, text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	var out struct {
		Validity string `json:"validity"`
	}
	if err := s.model.CompleteInto(ctx, validitySystemPrompt, text, &out); err != nil {
		return true
	}
	return !strings.EqualFold(strings.TrimSpace(out.Validity), "invalid")
}

func (s *Service) condense(ctx context.Context, logger *slog.Logger, p *profile.Profile, known string) string {
	name := displayName(p)
	var out struct {
		Summary string `json:"summary"`
	}
	err := s.model.CompleteInto(ctx, condenseSystemPrompt(name), "Data:\n"+known, &out)
	if summary := strings.TrimSpace(out.Summary); err == nil && summary != "" {
		return summary
	}
	if err != nil {
		logger.Warn("fact summary failed; returning stored facts", logging.Error(err))
	}
	return name + ": " + known
}

func (s *Service) relatedQuestions(ctx context.Context, logger *slog.Logger, p *profile.Profile) []string {
	var out questionList
	if err := s.model.CompleteInto(ctx, relatedSystemPrompt, relatedPrompt(p), &out); err != nil {
		logger.Warn("related questions failed", logging.Error(err))
		return []string{}
	}
	return out.take(maxRelatedQuestions)
}

type questionList struct {
	Questions []string `json:"questions"`
}

func (q questionList) take(limit int) []string {
	out := make([]string, 0, min(len(q.Questions), limit))
	for _, question := range q.Questions {
		if question = strings.TrimSpace(question); question == "" {
			continue
		}
		out = append(out, question)
		if len(out) == limit {
			break
		}
	}
	return out
}
