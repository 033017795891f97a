// Package sqlite persists offline caches in a SQLite database so an
// installed cache survives a restart.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wippyai/wasm-shell/errors"
	"github.com/wippyai/wasm-shell/offline"
)

// Store implements offline.Storage on SQLite.
type Store struct {
	db *sql.DB
}

var _ offline.Storage = (*Store)(nil)

// Open opens and migrates the cache database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.InvalidInput(errors.PhaseConfig, "cache database path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Storage("open database", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Storage("ping database", err)
	}
	if err := applyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, errors.Storage("migrate", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Open(ctx context.Context, name string) (offline.Cache, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseStorage, "cache name is required")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO caches (name, created_at) VALUES (?, ?)`,
		name, time.Now().UTC().UnixMilli(),
	); err != nil {
		return nil, errors.Storage("open cache", err)
	}
	return &cache{db: s.db, name: name}, nil
}

func (s *Store) Has(ctx context.Context, name string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM caches WHERE name = ?`, name).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Storage("has cache", err)
	}
	return true, nil
}

func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Storage("delete cache", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = ?`, name); err != nil {
		return false, errors.Storage("delete cache entries", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM caches WHERE name = ?`, name)
	if err != nil {
		return false, errors.Storage("delete cache", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Storage("delete cache", err)
	}
	if err := tx.Commit(); err != nil {
		return false, errors.Storage("delete cache", err)
	}
	return n > 0, nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, s.db, `SELECT name FROM caches ORDER BY name`)
}

type cache struct {
	db   *sql.DB
	name string
}

func (c *cache) Match(ctx context.Context, key string) (*offline.Entry, bool, error) {
	var (
		headerJSON string
		storedAt   int64
		e          = offline.Entry{Key: key}
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT status, header_json, body, stored_at
		 FROM cache_entries
		 WHERE cache_name = ? AND request_key = ?`,
		c.name, key,
	).Scan(&e.Status, &headerJSON, &e.Body, &storedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Storage("match", err)
	}

	e.Header = http.Header{}
	if err := json.Unmarshal([]byte(headerJSON), &e.Header); err != nil {
		return nil, false, errors.Storage("decode header", err)
	}
	e.StoredAt = time.UnixMilli(storedAt).UTC()
	return &e, true, nil
}

// PutAll writes every entry in one transaction.
func (c *cache) PutAll(ctx context.Context, entries []offline.Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Storage("begin put", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO caches (name, created_at) VALUES (?, ?)`,
		c.name, time.Now().UTC().UnixMilli(),
	); err != nil {
		return errors.Storage("put", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cache_entries (cache_name, request_key, status, header_json, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_name, request_key) DO UPDATE SET
		    status = excluded.status,
		    header_json = excluded.header_json,
		    body = excluded.body,
		    stored_at = excluded.stored_at`)
	if err != nil {
		return errors.Storage("prepare put", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		header := e.Header
		if header == nil {
			header = http.Header{}
		}
		headerJSON, err := json.Marshal(header)
		if err != nil {
			return errors.Storage("encode header", err)
		}
		body := e.Body
		if body == nil {
			body = []byte{}
		}
		storedAt := e.StoredAt
		if storedAt.IsZero() {
			storedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, c.name, e.Key, e.Status, string(headerJSON), body, storedAt.UnixMilli()); err != nil {
			return errors.Storage(fmt.Sprintf("put %s", e.Key), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Storage("commit put", err)
	}
	return nil
}

func (c *cache) Keys(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, c.db,
		`SELECT request_key FROM cache_entries WHERE cache_name = ? ORDER BY request_key`, c.name)
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Storage("query", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Storage("scan", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("query", err)
	}
	return out, nil
}
