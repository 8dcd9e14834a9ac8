package store_test

import (
	"context"
	"testing"

	"dossier/internal/profile"
	"dossier/internal/testsupport"
)

func TestAnswerRoundTripAndInvalidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	orphan := &profile.Answer{Key: "nobody", Text: "orphan"}
	if err := s.PutAnswer(ctx, orphan); err == nil {
		t.Fatal("expected answer without a stored profile to be rejected")
	}

	p := sampleProfile("ada lovelace", "p-1", "Ada Lovelace")
	if err := s.Put(ctx, p); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	answer := &profile.Answer{Key: p.Key, Text: "Ada Lovelace was a mathematician.", Related: []string{"What did she write?"}}
	if err := s.PutAnswer(ctx, answer); err != nil {
		t.Fatalf("PutAnswer failed: %v", err)
	}
	got, err := s.GetAnswer(ctx, p.Key)
	if err != nil {
		t.Fatalf("GetAnswer failed: %v", err)
	}
	if got == nil || got.Text != answer.Text || len(got.Related) != 1 || got.GeneratedAt.IsZero() {
		t.Fatalf("unexpected answer %+v", got)
	}

	if err := s.Put(ctx, sampleProfile("ada lovelace", "p-2", "Ada Lovelace")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err = s.GetAnswer(ctx, p.Key)
	if err != nil {
		t.Fatalf("GetAnswer failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected rebuilt profile to drop its stale answer, got %+v", got)
	}
}

func TestChatsFollowProfileLifetime(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	p := sampleProfile("ada lovelace", "p-1", "Ada Lovelace")
	if err := s.Put(ctx, p); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	chat := &profile.Chat{ID: "chat-1", Key: p.Key, Messages: []profile.ChatMessage{
		{Role: profile.ChatUser, Content: "Where did she work?"},
	}}
	if err := s.PutChat(ctx, chat); err != nil {
		t.Fatalf("PutChat failed: %v", err)
	}
	chat.Messages = append(chat.Messages, profile.ChatMessage{Role: profile.ChatAssistant, Content: "With Babbage."})
	if err := s.PutChat(ctx, chat); err != nil {
		t.Fatalf("PutChat failed: %v", err)
	}

	latest, err := s.LatestChat(ctx, p.Key)
	if err != nil {
		t.Fatalf("LatestChat failed: %v", err)
	}
	if latest == nil || latest.ID != "chat-1" || len(latest.Messages) != 2 || latest.Messages[1].Role != profile.ChatAssistant {
		t.Fatalf("unexpected chat %+v", latest)
	}
	byID, err := s.GetChat(ctx, "chat-1")
	if err != nil || byID == nil || byID.Key != p.Key {
		t.Fatalf("GetChat = %+v, %v", byID, err)
	}

	if _, err := s.Delete(ctx, p.Key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	gone, err := s.GetChat(ctx, "chat-1")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if gone != nil {
		t.Fatalf("expected chat to be removed with its profile, got %+v", gone)
	}
}
