package answer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"dossier/internal/logging"
	"dossier/internal/profile"
	"dossier/internal/services"
	"dossier/internal/store"
	"dossier/internal/testsupport"
)

const condenseKey = "condense"

// scriptedModel replies by system prompt.
type scriptedModel struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	systems []string
	users   []string
}

func (m *scriptedModel) CompleteInto(_ context.Context, system, user string, target any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systems = append(m.systems, system)
	m.users = append(m.users, user)
	key := system
	switch {
	case strings.HasPrefix(system, chatSystemPrompt):
		key = chatSystemPrompt
	case strings.HasPrefix(system, "Summarize the known data"):
		key = condenseKey
	}
	if err := m.errs[key]; err != nil {
		return err
	}
	reply, ok := m.replies[key]
	if !ok {
		return errors.New("unscripted prompt")
	}
	return json.Unmarshal([]byte(reply), target)
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.systems)
}

func (m *scriptedModel) called(system string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.systems {
		if s == system {
			return true
		}
	}
	return false
}

func (m *scriptedModel) lastUser() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[len(m.users)-1]
}

func adaProfile() *profile.Profile {
	return &profile.Profile{
		ID:    "p-ada",
		Key:   "ada lovelace",
		Query: profile.Query{Text: "Ada Lovelace"},
		Basic: profile.BasicInfo{Name: "Ada Lovelace", Occupation: "Mathematician", Company: "Analytical Engines"},
	}
}

func newTestService(t *testing.T, model *scriptedModel, p *profile.Profile) (*Service, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if p != nil {
		if err := st.Put(context.Background(), p); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	return New(model, st, logging.NewNop()), st
}

func TestGenerateStoresAndReusesAnswer(t *testing.T) {
	model := &scriptedModel{replies: map[string]string{
		biographySystemPrompt: `{"biography": "Ada Lovelace was an English mathematician."}`,
		validitySystemPrompt:  `{"validity": "VALID"}`,
		relatedSystemPrompt:   `{"questions": ["q1", "q2", " ", "q3", "q4", "q5", "q6", "q7"]}`,
	}}
	svc, st := newTestService(t, model, adaProfile())
	ctx := context.Background()

	if _, err := svc.Stored(ctx, "ada lovelace"); !errors.Is(err, services.ErrProfileNotFound) {
		t.Fatalf("expected no stored answer yet, got %v", err)
	}

	first, err := svc.Generate(ctx, "ada lovelace", false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if first.Cached || first.Answer.Fallback || first.Answer.Text != "Ada Lovelace was an English mathematician." {
		t.Fatalf("unexpected answer %+v", first.Answer)
	}
	if len(first.Answer.Related) != maxRelatedQuestions || first.Answer.Related[2] != "q3" {
		t.Fatalf("expected six non-blank questions, got %q", first.Answer.Related)
	}
	if stored, err := st.GetAnswer(ctx, "ada lovelace"); err != nil || stored == nil {
		t.Fatalf("answer not stored: %+v, %v", stored, err)
	}

	calls := model.calls()
	again, err := svc.Generate(ctx, "p-ada", false)
	if err != nil {
		t.Fatalf("Generate by id: %v", err)
	}
	if !again.Cached || model.calls() != calls {
		t.Fatalf("expected the stored answer without model calls, got %+v after %d calls", again, model.calls()-calls)
	}

	fresh, err := svc.Generate(ctx, "ada lovelace", true)
	if err != nil {
		t.Fatalf("Generate regenerate: %v", err)
	}
	if fresh.Cached || model.calls() == calls {
		t.Fatalf("regenerate must call the model again")
	}
}

func TestGenerateCondensesFactsOnRefusal(t *testing.T) {
	model := &scriptedModel{
		replies: map[string]string{
			biographySystemPrompt: `{"biography": "I don't have information about this person."}`,
			condenseKey:           `{"summary": "Ada Lovelace is a mathematician at Analytical Engines."}`,
		},
		errs: map[string]error{relatedSystemPrompt: errors.New("model down")},
	}
	p := adaProfile()
	p.Summary = "Mathematician who wrote the first published algorithm."
	svc, _ := newTestService(t, model, p)

	res, err := svc.Generate(context.Background(), "ada lovelace", false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.Answer.Fallback || res.Answer.Text != "Ada Lovelace is a mathematician at Analytical Engines." {
		t.Fatalf("expected condensed facts, got %+v", res.Answer)
	}
	if model.called(validitySystemPrompt) {
		t.Fatal("an obvious refusal should not need the evaluator")
	}
	if res.Answer.Related == nil || len(res.Answer.Related) != 0 {
		t.Fatalf("expected an empty question list, got %#v", res.Answer.Related)
	}
}

func TestGenerateFailsWithoutFactsToFallBackOn(t *testing.T) {
	model := &scriptedModel{errs: map[string]error{biographySystemPrompt: errors.New("model down")}}
	svc, _ := newTestService(t, model, adaProfile())

	_, err := svc.Generate(context.Background(), "ada lovelace", false)
	if !errors.Is(err, services.ErrAdapterError) {
		t.Fatalf("expected adapter error, got %v", err)
	}

	if _, err := svc.Generate(context.Background(), "grace hopper", false); !errors.Is(err, services.ErrProfileNotFound) {
		t.Fatalf("expected unknown profile to be reported, got %v", err)
	}
}

func TestFollowUpUsesStoredProfile(t *testing.T) {
	model := &scriptedModel{replies: map[string]string{
		followUpSystemPrompt: `{"answer": "She worked with Charles Babbage."}`,
		relatedSystemPrompt:  `{"questions": ["a", "b", "c", "d", "e", "f"]}`,
	}}
	p := adaProfile()
	p.Assets = []profile.Asset{
		{OriginalURL: "https://img/1", DurableURL: "https://assets/1.jpg"},
		{OriginalURL: "https://img/2"},
		{OriginalURL: "https://img/3", DurableURL: "https://assets/3.jpg"},
		{OriginalURL: "https://img/4", DurableURL: "https://assets/4.jpg"},
		{OriginalURL: "https://img/5", DurableURL: "https://assets/5.jpg"},
	}
	p.Mentions = []profile.Mention{
		{Title: "Notes on the Analytical Engine", URL: "https://news/1", Source: "Scientific Memoirs"},
		{Description: "untitled"},
		{Title: "Ada Lovelace Day", URL: "https://news/2"},
		{Title: "Third mention", URL: "https://news/3"},
	}
	p.Socials = []profile.SocialProfile{
		{Platform: "twitter", Handle: "ada", URL: "https://twitter.com/ada"},
		{Platform: "instagram", URL: "https://instagram.com/ada"},
		{Platform: "tiktok", Handle: "ada"},
	}
	svc, _ := newTestService(t, model, p)

	out, err := svc.FollowUp(context.Background(), "ada lovelace", "  Who did she work with? ")
	if err != nil {
		t.Fatalf("FollowUp: %v", err)
	}
	if out.Question != "Who did she work with?" || out.Answer != "She worked with Charles Babbage." {
		t.Fatalf("unexpected follow-up %+v", out)
	}
	if len(out.Photos) != maxFollowUpPhotos || out.Photos[1].DurableURL != "https://assets/3.jpg" {
		t.Fatalf("expected the first three durable photos, got %+v", out.Photos)
	}
	if len(out.Sources) != maxFollowUpSources {
		t.Fatalf("expected four sources, got %+v", out.Sources)
	}
	if out.Sources[0].Name != "Scientific Memoirs" || out.Sources[1].Name != "Source" || out.Sources[1].Type != "news" {
		t.Fatalf("unexpected mention sources %+v", out.Sources[:2])
	}
	if out.Sources[2].Name != "Twitter" || out.Sources[2].Description != "@ada" || out.Sources[3].Description != "@instagram" {
		t.Fatalf("unexpected social sources %+v", out.Sources[2:])
	}
	if len(out.Related) != maxFollowUpQuestions {
		t.Fatalf("expected four related questions, got %q", out.Related)
	}
	if !strings.Contains(model.users[0], "Who did she work with?") || !strings.Contains(model.users[0], "Mathematician") {
		t.Fatalf("question or context missing from prompt: %q", model.users[0])
	}

	if _, err := svc.FollowUp(context.Background(), "ada lovelace", "   "); !errors.Is(err, services.ErrInvalidQuery) {
		t.Fatalf("expected empty question to be rejected, got %v", err)
	}
}

func TestChatContinuesConversation(t *testing.T) {
	model := &scriptedModel{replies: map[string]string{
		chatSystemPrompt: `{"reply": "She worked with Charles Babbage."}`,
	}}
	svc, st := newTestService(t, model, adaProfile())
	ctx := context.Background()

	first, err := svc.Chat(ctx, "ada lovelace", "", "Who did she work with?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if first.ChatID == "" || first.Messages != 2 || first.Reply != "She worked with Charles Babbage." {
		t.Fatalf("unexpected reply %+v", first)
	}

	second, err := svc.Chat(ctx, "p-ada", "", "On what machine?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if second.ChatID != first.ChatID || second.Messages != 4 {
		t.Fatalf("expected the conversation to continue, got %+v", second)
	}
	prompt := model.lastUser()
	for _, want := range []string{"User: Who did she work with?", "Assistant: She worked with Charles Babbage.", "User: On what machine?"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("transcript missing %q:\n%s", want, prompt)
		}
	}

	if _, err := svc.Chat(ctx, "ada lovelace", "someone-else", "Hello"); !errors.Is(err, services.ErrProfileNotFound) {
		t.Fatalf("expected unknown chat to be rejected, got %v", err)
	}

	model.mu.Lock()
	model.errs = map[string]error{chatSystemPrompt: errors.New("model down")}
	model.mu.Unlock()
	if _, err := svc.Chat(ctx, "ada lovelace", first.ChatID, "Anything else?"); !errors.Is(err, services.ErrAdapterError) {
		t.Fatalf("expected model failure, got %v", err)
	}
	saved, err := st.GetChat(ctx, first.ChatID)
	if err != nil || saved == nil {
		t.Fatalf("GetChat: %+v, %v", saved, err)
	}
	if len(saved.Messages) != 4 {
		t.Fatalf("failed exchange must not be saved, got %d messages", len(saved.Messages))
	}
}
