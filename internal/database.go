package internal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// OpenDatabase opens (creating if needed) the client state database
func OpenDatabase(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps writes serialized and makes :memory: usable.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := EnsureSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// EnsureSchema creates the key/value table
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(kvSchema); err != nil {
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	return nil
}

// QueryKV returns all pairs whose key matches a LIKE pattern
func QueryKV(db *sql.DB, pattern string) ([]KeyValuePair, error) {
	rows, err := db.Query("SELECT key, value FROM kv WHERE key LIKE ? ORDER BY key", pattern)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var pairs []KeyValuePair
	for rows.Next() {
		var pair KeyValuePair
		if err := rows.Scan(&pair.Key, &pair.Value); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		pairs = append(pairs, pair)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return pairs, nil
}

// KeyValuePair represents a row of the kv table
type KeyValuePair struct {
	Key   string
	Value string
}
