// Package store persists compressed frame payloads in SQLite with a
// per-entry time to live.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	// sqlite driver
	_ "modernc.org/sqlite"

	"github.com/ajitpratap0/econdash/internal/clock"
	"github.com/ajitpratap0/econdash/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS payloads (
	key TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_payloads_expires_at ON payloads(expires_at);
`

// Options configures a Store.
type Options struct {
	// Clock stamps rows and decides expiry. Defaults to the system clock.
	Clock clock.Clock
}

// Stats summarizes the stored payloads.
type Stats struct {
	Entries int64 `json:"entries"`
	Expired int64 `json:"expired"`
	Bytes   int64 `json:"bytes"`
}

// Store is a SQLite-backed key/value store for payload bytes.
type Store struct {
	db    *sql.DB
	path  string
	clock clock.Clock
}

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to create store directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to open store")
	}
	// Pragmas below are per connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to connect to store")
	}

	s := &Store{db: db, path: path, clock: opts.Clock}
	if s.clock == nil {
		s.clock = clock.Real{}
	}

	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to create schema")
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(context.Background(), pragma); err != nil {
			return errors.Wrap(err, errors.ErrorTypeStorage, "failed to configure store").
				WithDetail("pragma", pragma)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Put stores data under key, replacing any previous value. A ttl of zero or
// less never expires.
func (s *Store) Put(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := s.clock.Now()
	var expires int64
	if ttl > 0 {
		expires = now.Add(ttl).UnixNano()
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payloads (key, data, created_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data,
			created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, data, now.UnixNano(), expires)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to store payload").WithDetail("key", key)
	}
	return nil
}

// Get returns the payload stored under key. Expired rows are deleted and
// reported as absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data    []byte
		expires int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, expires_at FROM payloads WHERE key = ?`, key).Scan(&data, &expires)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrorTypeStorage, "failed to read payload").WithDetail("key", key)
	}

	if expires != 0 && s.clock.Now().UnixNano() >= expires {
		if err := s.Delete(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return data, true, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM payloads WHERE key = ?`, key); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to delete payload").WithDetail("key", key)
	}
	return nil
}

// PurgeExpired deletes every expired row and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM payloads WHERE expires_at != 0 AND expires_at <= ?`, s.clock.Now().UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeStorage, "failed to purge expired payloads")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeStorage, "failed to count purged payloads")
	}
	return n, nil
}

// Stats counts entries, expired entries not yet purged, and stored bytes.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at != 0 AND expires_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(LENGTH(data)), 0)
		FROM payloads`, s.clock.Now().UnixNano()).Scan(&st.Entries, &st.Expired, &st.Bytes)
	if err != nil {
		return Stats{}, errors.Wrap(err, errors.ErrorTypeStorage, "failed to read store stats")
	}
	return st, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
