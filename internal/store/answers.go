package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"dossier/internal/profile"
	"dossier/internal/services"
)

// GetAnswer returns the generated answer for key, or nil when none exists.
func (s *Store) GetAnswer(ctx context.Context, key profile.CacheKey) (*profile.Answer, error) {
	ctx = ensureContext(ctx)
	var (
		text, relatedJSON, generated string
		fallback                     int
	)
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT answer, related_json, fallback, generated_at FROM answers WHERE cache_key = ?", string(key),
		).Scan(&text, &relatedJSON, &fallback, &generated)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStorageError, "store", "get answer", "query answer", err)
	}
	a := &profile.Answer{Key: key, Text: text, Fallback: fallback != 0}
	if err := json.Unmarshal([]byte(relatedJSON), &a.Related); err != nil {
		return nil, services.Wrap(services.ErrStorageError, "store", "get answer", "decode related questions", err)
	}
	a.GeneratedAt, _ = time.Parse(timeLayout, generated)
	return a, nil
}

// PutAnswer stores a under a.Key, replacing any previous answer. The profile
// must already be stored.
func (s *Store) PutAnswer(ctx context.Context, a *profile.Answer) error {
	ctx = ensureContext(ctx)
	if a == nil || strings.TrimSpace(string(a.Key)) == "" {
		return services.Wrap(services.ErrStorageError, "store", "put answer", "answer cache key is empty", nil)
	}
	if a.GeneratedAt.IsZero() {
		a.GeneratedAt = s.now().UTC()
	}
	related := a.Related
	if related == nil {
		related = []string{}
	}
	relatedJSON, err := json.Marshal(related)
	if err != nil {
		return services.Wrap(services.ErrStorageError, "store", "put answer", "encode related questions", err)
	}
	res, err := s.execWithRetry(ctx, `INSERT INTO answers (cache_key, answer, related_json, fallback, generated_at)
		SELECT ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM profiles WHERE cache_key = ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			answer = excluded.answer,
			related_json = excluded.related_json,
			fallback = excluded.fallback,
			generated_at = excluded.generated_at`,
		string(a.Key), a.Text, string(relatedJSON), boolToInt(a.Fallback),
		a.GeneratedAt.UTC().Format(timeLayout), string(a.Key),
	)
	if err != nil {
		return services.Wrap(services.ErrStorageError, "store", "put answer", "write answer", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(services.ErrStorageError, "store", "put answer", "profile "+a.Key.String()+" is not stored", nil)
	}
	return nil
}

// GetChat returns the chat with the given identifier, or nil when none exists.
func (s *Store) GetChat(ctx context.Context, id string) (*profile.Chat, error) {
	return s.getChat(ensureContext(ctx),
		"SELECT id, cache_key, messages_json, created_at, updated_at FROM chats WHERE id = ?", strings.TrimSpace(id))
}

// LatestChat returns the most recently updated chat for key, or nil.
func (s *Store) LatestChat(ctx context.Context, key profile.CacheKey) (*profile.Chat, error) {
	return s.getChat(ensureContext(ctx),
		"SELECT id, cache_key, messages_json, created_at, updated_at FROM chats WHERE cache_key = ? ORDER BY updated_at DESC, id ASC LIMIT 1",
		string(key))
}

func (s *Store) getChat(ctx context.Context, query, arg string) (*profile.Chat, error) {
	var (
		c                        profile.Chat
		key, messages            string
		createdText, updatedText string
	)
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, query, arg).Scan(&c.ID, &key, &messages, &createdText, &updatedText)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStorageError, "store", "get chat", "query chat", err)
	}
	if err := json.Unmarshal([]byte(messages), &c.Messages); err != nil {
		return nil, services.Wrap(services.ErrStorageError, "store", "get chat", "decode messages", err)
	}
	c.Key = profile.CacheKey(key)
	c.CreatedAt, _ = time.Parse(timeLayout, createdText)
	c.UpdatedAt, _ = time.Parse(timeLayout, updatedText)
	return &c, nil
}

// PutChat writes c, replacing the stored message history. c is updated in
// place with the stored timestamps.
func (s *Store) PutChat(ctx context.Context, c *profile.Chat) error {
	ctx = ensureContext(ctx)
	if c == nil || strings.TrimSpace(c.ID) == "" {
		return services.Wrap(services.ErrStorageError, "store", "put chat", "chat id is empty", nil)
	}
	if strings.TrimSpace(string(c.Key)) == "" {
		return services.Wrap(services.ErrStorageError, "store", "put chat", "chat cache key is empty", nil)
	}
	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	messages := c.Messages
	if messages == nil {
		messages = []profile.ChatMessage{}
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return services.Wrap(services.ErrStorageError, "store", "put chat", "encode messages", err)
	}
	if _, err := s.execWithRetry(ctx, `INSERT INTO chats (id, cache_key, messages_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			messages_json = excluded.messages_json,
			updated_at = excluded.updated_at`,
		c.ID, string(c.Key), string(payload), c.CreatedAt.UTC().Format(timeLayout), c.UpdatedAt.Format(timeLayout),
	); err != nil {
		return services.Wrap(services.ErrStorageError, "store", "put chat", "write chat", err)
	}
	return nil
}
