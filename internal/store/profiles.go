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

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Summary is the listing view of a stored profile.
type Summary struct {
	Key       profile.CacheKey
	ID        string
	Name      string
	Query     profile.Query
	Partial   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Get returns the profile stored under key, or nil when none exists.
func (s *Store) Get(ctx context.Context, key profile.CacheKey) (*profile.Profile, error) {
	return s.getOne(ensureContext(ctx), "SELECT profile_json FROM profiles WHERE cache_key = ?", string(key))
}

// GetByID returns the profile with the given identifier, or nil when none exists.
func (s *Store) GetByID(ctx context.Context, id string) (*profile.Profile, error) {
	return s.getOne(ensureContext(ctx), "SELECT profile_json FROM profiles WHERE id = ?", strings.TrimSpace(id))
}

func (s *Store) getOne(ctx context.Context, query string, arg string) (*profile.Profile, error) {
	var payload string
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, query, arg).Scan(&payload)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStorageError, "store", "get", "query profile", err)
	}
	var p profile.Profile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, services.Wrap(services.ErrStorageError, "store", "get", "decode profile", err)
	}
	return &p, nil
}

// Put writes p under p.Key, replacing any previous record for that key. The
// identifier and creation time of an existing record are carried forward so a
// refresh keeps the profile's identity. p is updated in place with the stored
// timestamps.
func (s *Store) Put(ctx context.Context, p *profile.Profile) error {
	ctx = ensureContext(ctx)
	if p == nil || strings.TrimSpace(string(p.Key)) == "" {
		return services.Wrap(services.ErrStorageError, "store", "put", "profile cache key is empty", nil)
	}
	if strings.TrimSpace(p.ID) == "" {
		return services.Wrap(services.ErrStorageError, "store", "put", "profile id is empty", nil)
	}

	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var existingID, existingCreated string
		switch err := tx.QueryRowContext(ctx,
			"SELECT id, created_at FROM profiles WHERE cache_key = ?", string(p.Key),
		).Scan(&existingID, &existingCreated); {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		default:
			p.ID = existingID
			if created, parseErr := time.Parse(timeLayout, existingCreated); parseErr == nil {
				p.CreatedAt = created
			}
		}

		now := s.now().UTC()
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now

		queryJSON, err := json.Marshal(p.Query)
		if err != nil {
			return err
		}
		profileJSON, err := json.Marshal(p)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO profiles
			(cache_key, id, display_name, query_json, profile_json, partial, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(cache_key) DO UPDATE SET
				display_name = excluded.display_name,
				query_json = excluded.query_json,
				profile_json = excluded.profile_json,
				partial = excluded.partial,
				updated_at = excluded.updated_at`,
			string(p.Key), p.ID, p.Basic.Name, string(queryJSON), string(profileJSON),
			boolToInt(p.Partial()), p.CreatedAt.UTC().Format(timeLayout), p.UpdatedAt.Format(timeLayout),
		); err != nil {
			return err
		}
		// A generated answer describes the previous version of the profile.
		if _, err := tx.ExecContext(ctx, "DELETE FROM answers WHERE cache_key = ?", string(p.Key)); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return services.Wrap(services.ErrStorageError, "store", "put", "write profile", err)
	}
	return nil
}

// List returns stored profiles ordered by most recently updated. A limit of
// zero or less returns every record.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	ctx = ensureContext(ctx)
	query := "SELECT cache_key, id, display_name, query_json, partial, created_at, updated_at FROM profiles ORDER BY updated_at DESC, cache_key ASC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var summaries []Summary
	err := retryOnBusy(ctx, func() error {
		summaries = summaries[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				sum              Summary
				key, queryJSON   string
				partial          int
				created, updated string
			)
			if err := rows.Scan(&key, &sum.ID, &sum.Name, &queryJSON, &partial, &created, &updated); err != nil {
				return err
			}
			sum.Key = profile.CacheKey(key)
			sum.Partial = partial != 0
			_ = json.Unmarshal([]byte(queryJSON), &sum.Query)
			sum.CreatedAt, _ = time.Parse(timeLayout, created)
			sum.UpdatedAt, _ = time.Parse(timeLayout, updated)
			summaries = append(summaries, sum)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, services.Wrap(services.ErrStorageError, "store", "list", "query profiles", err)
	}
	return summaries, nil
}

// Delete removes the profile stored under key, with its answer and chats, and
// reports whether one existed.
func (s *Store) Delete(ctx context.Context, key profile.CacheKey) (bool, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM profiles WHERE cache_key = ?", string(key))
	if err != nil {
		return false, services.Wrap(services.ErrStorageError, "store", "delete", "delete profile", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, services.Wrap(services.ErrStorageError, "store", "delete", "rows affected", err)
	}
	if err := s.deleteDependents(ctx); err != nil {
		return affected > 0, services.Wrap(services.ErrStorageError, "store", "delete", "delete answers and chats", err)
	}
	return affected > 0, nil
}

// Prune deletes profiles last updated before cutoff, with their answers and
// chats, and returns how many profiles were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM profiles WHERE updated_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, services.Wrap(services.ErrStorageError, "store", "prune", "delete expired profiles", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, services.Wrap(services.ErrStorageError, "store", "prune", "rows affected", err)
	}
	if err := s.deleteDependents(ctx); err != nil {
		return affected, services.Wrap(services.ErrStorageError, "store", "prune", "delete answers and chats", err)
	}
	return affected, nil
}

// deleteDependents drops answers and chats whose profile no longer exists.
func (s *Store) deleteDependents(ctx context.Context) error {
	for _, stmt := range []string{
		"DELETE FROM answers WHERE cache_key NOT IN (SELECT cache_key FROM profiles)",
		"DELETE FROM chats WHERE cache_key NOT IN (SELECT cache_key FROM profiles)",
	} {
		if _, err := s.execWithRetry(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// AssetURLs returns every durable image URL referenced by a stored profile:
// photos plus proxied social profile pictures.
func (s *Store) AssetURLs(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	var urls []string
	err := retryOnBusy(ctx, func() error {
		urls = urls[:0]
		rows, err := s.db.QueryContext(ctx, "SELECT profile_json FROM profiles")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var payload string
			if err := rows.Scan(&payload); err != nil {
				return err
			}
			var p profile.Profile
			if err := json.Unmarshal([]byte(payload), &p); err != nil {
				continue
			}
			for _, a := range p.Assets {
				if a.DurableURL != "" {
					urls = append(urls, a.DurableURL)
				}
			}
			for _, social := range p.Socials {
				if social.ProfilePicURL != "" {
					urls = append(urls, social.ProfilePicURL)
				}
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, services.Wrap(services.ErrStorageError, "store", "asset urls", "query profiles", err)
	}
	return urls, nil
}

// Count returns the number of stored profiles.
func (s *Store) Count(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM profiles").Scan(&count)
	})
	if err != nil {
		return 0, services.Wrap(services.ErrStorageError, "store", "count", "count profiles", err)
	}
	return count, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
