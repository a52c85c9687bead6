// Package kvstore is the durable key-value store backing the credential cache,
// the saved cart and the catalog cache.
package kvstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// Store is a durable key-value store.
//
// note: fault injection point
type Store interface {
	// Get returns the values of the keys that exist, missing keys are absent from the map.
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, values map[string][]byte) error
	Remove(ctx context.Context, keys ...string) error
}

// SQLStore implements Store on a single sqlite (or libsql) table.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) SQLStore {
	return SQLStore{db: db}
}

func wrapOpen(err error) error {
	return fmt.Errorf("open kv store: %w", err)
}

func isRemote(path string) bool {
	return strings.HasPrefix(path, "libsql://") || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// Open opens the store at path and applies the schema. Paths starting with
// libsql:// (or http(s)://) use the libsql driver, anything else is a sqlite file or ":memory:".
func Open(path string) (*sql.DB, error) {
	driver := "sqlite"
	if isRemote(path) {
		driver = "libsql"
	} else if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, wrapOpen(err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, wrapOpen(err)
	}

	if driver == "sqlite" {
		// sqlite only supports one writer, see
		// https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
		db.SetMaxOpenConns(1)
		if path != ":memory:" {
			_, err = db.Exec("PRAGMA journal_mode=WAL")
			if err != nil {
				return nil, wrapOpen(err)
			}
		}
	}

	_, err = db.Exec(Schema)
	if err != nil {
		return nil, wrapOpen(err)
	}
	return db, nil
}

func (s SQLStore) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	query := fmt.Sprintf(
		"select key, value from kv where key in (%s)",
		strings.TrimSuffix(strings.Repeat("?,", len(keys)), ","),
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("kv get: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		err := rows.Scan(&key, &value)
		if err != nil {
			return nil, fmt.Errorf("kv get: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

func (s SQLStore) Set(ctx context.Context, values map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kv set: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for key, value := range values {
		_, err := tx.ExecContext(
			ctx,
			`insert into kv (key, value, updated_at) values (?, ?, ?)
			on conflict (key) do update set value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now,
		)
		if err != nil {
			return fmt.Errorf("kv set %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (s SQLStore) Remove(ctx context.Context, keys ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kv remove: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		_, err := tx.ExecContext(ctx, "delete from kv where key = ?", key)
		if err != nil {
			return fmt.Errorf("kv remove %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// GetJSON decodes the value at key into out, found is false when the key does not exist.
func GetJSON[T any](ctx context.Context, store Store, key string) (out T, found bool, err error) {
	values, err := store.Get(ctx, key)
	if err != nil {
		return out, false, err
	}
	raw, ok := values[key]
	if !ok {
		return out, false, nil
	}
	err = json.Unmarshal(raw, &out)
	if err != nil {
		return out, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, true, nil
}

// SetJSON encodes each value as json and writes them in one Set call.
func SetJSON(ctx context.Context, store Store, values map[string]any) error {
	encoded := make(map[string][]byte, len(values))
	for key, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		encoded[key] = raw
	}
	return store.Set(ctx, encoded)
}

// RemoteURL adds a libsql auth token to a remote database url, local paths are returned as is.
func RemoteURL(path, authToken string) string {
	if authToken == "" || !isRemote(path) {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "authToken=" + url.QueryEscape(authToken)
}
