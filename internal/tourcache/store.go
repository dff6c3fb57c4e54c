package tourcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrKeyNotFound is returned by a Store when a key is absent or expired.
var ErrKeyNotFound = errors.New("cache key not found")

// NoExpiry is the TTL reported for entries that never expire.
const NoExpiry time.Duration = -1

// Store is a key-value store with per-entry expiry. Values are opaque blobs
// replaced atomically on Set.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value under key. A ttl <= 0 stores the entry without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every entry whose key starts with prefix and
	// returns how many were removed. An empty prefix removes everything.
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	// TTL returns the remaining lifetime of key, or NoExpiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// timeFormat is fixed width so stored timestamps compare correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000Z"

// SQLiteStore is a Store backed by the cache_entries table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a store over a migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) stamp() string {
	return s.now().UTC().Format(timeFormat)
}

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM cache_entries
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, key, s.stamp()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry %s: %w", key, err)
	}
	return []byte(value), nil
}

// Set upserts key. The previous value, if any, is replaced in one statement.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now().UTC()
	var expires sql.NullString
	if ttl > 0 {
		expires = sql.NullString{String: now.Add(ttl).Format(timeFormat), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, key, string(value), expires, now.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting cache entry %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes all entries under prefix.
func (s *SQLiteStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	// instr is case-sensitive, unlike LIKE.
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE instr(key, ?) = 1`, prefix)
	if err != nil {
		return 0, fmt.Errorf("deleting cache entries with prefix %q: %w", prefix, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted cache entries: %w", err)
	}
	return n, nil
}

// TTL returns how long key has left to live.
func (s *SQLiteStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	var expires sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT expires_at FROM cache_entries
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, key, s.stamp()).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrKeyNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("reading cache ttl %s: %w", key, err)
	}
	if !expires.Valid {
		return NoExpiry, nil
	}
	t, err := time.Parse(timeFormat, expires.String)
	if err != nil {
		return 0, fmt.Errorf("parsing cache expiry %q: %w", expires.String, err)
	}
	return t.Sub(s.now()), nil
}

// Keys lists live keys under prefix in key order.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM cache_entries
		WHERE instr(key, ?) = 1 AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key
	`, prefix, s.stamp())
	if err != nil {
		return nil, fmt.Errorf("listing cache keys: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning cache key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// PurgeExpired deletes entries whose expiry has passed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, s.stamp())
	if err != nil {
		return 0, fmt.Errorf("purging expired cache entries: %w", err)
	}
	return res.RowsAffected()
}

// Stats counts stored entries by state.
type Stats struct {
	Live     int64 `json:"live"`
	Expired  int64 `json:"expired"`
	Slugs    int64 `json:"slugs"`
	TourSets int64 `json:"tour_sets"`
}

// Stats reports how many entries are live or awaiting purge.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	now := s.stamp()
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN expires_at IS NULL OR expires_at > ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN expires_at IS NOT NULL AND expires_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN instr(key, ?) = 1 AND (expires_at IS NULL OR expires_at > ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN instr(key, ?) = 1 AND (expires_at IS NULL OR expires_at > ?) THEN 1 ELSE 0 END), 0)
		FROM cache_entries
	`, now, now, slugPrefix, now, toursPrefix, now).Scan(&st.Live, &st.Expired, &st.Slugs, &st.TourSets)
	if err != nil {
		return Stats{}, fmt.Errorf("counting cache entries: %w", err)
	}
	return st, nil
}
