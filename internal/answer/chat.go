package answer

import (
	"context"
	"strings"

	"dossier/internal/logging"
	"dossier/internal/profile"
	"dossier/internal/services"
)

// ChatReply is the assistant's answer within a conversation.
type ChatReply struct {
	ChatID   string `json:"chatId"`
	Reply    string `json:"reply"`
	Messages int    `json:"messages"`
}

// Chat sends message in a conversation about the stored profile named by ref.
// An empty chatID continues the profile's most recent conversation or starts
// a new one. The exchange is persisted only when the model replies.
func (s *Service) Chat(ctx context.Context, ref, chatID, message string) (ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatReply{}, services.Wrap(services.ErrInvalidQuery, "answer", "chat", "message is empty", nil)
	}
	p, err := s.Resolve(ctx, ref)
	if err != nil {
		return ChatReply{}, err
	}
	logger := logging.WithContext(ctx, s.logger).With(logging.String(logging.FieldCacheKey, p.Key.String()))

	chat, err := s.openChat(ctx, p.Key, strings.TrimSpace(chatID))
	if err != nil {
		return ChatReply{}, err
	}
	now := s.now().UTC()
	chat.Messages = append(chat.Messages, profile.ChatMessage{Role: profile.ChatUser, Content: message, At: now})

	var out struct {
		Reply string `json:"reply"`
	}
	system := chatSystemPrompt + "\n\n" + fullContext(p)
	if err := s.model.CompleteInto(ctx, system, transcript(chat.Messages), &out); err != nil {
		return ChatReply{}, services.Wrap(services.ErrAdapterError, "answer", "chat", "language model request failed", err)
	}
	reply := strings.TrimSpace(out.Reply)
	if reply == "" {
		return ChatReply{}, services.Wrap(services.ErrAdapterError, "answer", "chat", "model returned an empty reply", nil)
	}
	chat.Messages = append(chat.Messages, profile.ChatMessage{Role: profile.ChatAssistant, Content: reply, At: s.now().UTC()})

	if err := s.store.PutChat(ctx, chat); err != nil {
		logging.WarnWithContext(logger, "chat store write failed", "chat_store_failed",
			logging.Error(err),
			logging.String("chat_id", chat.ID),
			logging.String(logging.FieldErrorHint, "check the profile database with dossier doctor"),
			logging.String(logging.FieldImpact, "reply returned but the conversation was not saved"),
		)
	}
	return ChatReply{ChatID: chat.ID, Reply: reply, Messages: len(chat.Messages)}, nil
}

func (s *Service) openChat(ctx context.Context, key profile.CacheKey, chatID string) (*profile.Chat, error) {
	if chatID != "" {
		chat, err := s.store.GetChat(ctx, chatID)
		if err != nil {
			return nil, err
		}
		if chat == nil || chat.Key != key {
			return nil, services.Wrap(services.ErrProfileNotFound, "answer", "chat", "no conversation "+chatID+" for this profile", nil)
		}
		return chat, nil
	}
	chat, err := s.store.LatestChat(ctx, key)
	if err != nil {
		return nil, err
	}
	if chat != nil {
		return chat, nil
	}
	return &profile.Chat{ID: s.newID(), Key: key}, nil
}

// transcript renders the most recent messages, oldest first.
func transcript(messages []profile.ChatMessage) string {
	if len(messages) > maxChatHistory {
		messages = messages[len(messages)-maxChatHistory:]
	}
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		speaker := "User"
		if m.Role == profile.ChatAssistant {
			speaker = "Assistant"
		}
		parts = append(parts, speaker+": "+m.Content)
	}
	return strings.Join(parts, "\n\n")
}
