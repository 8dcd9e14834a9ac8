// Package store persists canonical profiles in SQLite, keyed by the normalized
// query CacheKey.
//
// The database runs in WAL mode with a busy timeout; writes go through a
// bounded busy-retry loop. A refreshed profile overwrites the previous record
// for the same key inside a single transaction, so readers observe either the
// old record or the new one.
package store
