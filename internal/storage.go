package internal

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// KVStore is the durable client key/value storage shared by the token,
// cookie and history records.
type KVStore interface {
	// Get returns the value and whether the key exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// SQLiteStore is a KVStore backed by the kv table
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore. The schema must already exist.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get reads a single key
func (s *SQLiteStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

// Set replaces the whole value stored under key
func (s *SQLiteStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli(),
	)
	if err != nil {
		return &PersistenceError{Key: key, Op: "set", Err: err}
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return &PersistenceError{Key: key, Op: "delete", Err: err}
	}
	return nil
}

// Keys lists stored keys matching a LIKE pattern
func (s *SQLiteStore) Keys(pattern string) ([]string, error) {
	pairs, err := QueryKV(s.db, pattern)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		keys = append(keys, pair.Key)
	}
	return keys, nil
}

// MemoryStore is an in-process KVStore, used when no durable storage is wanted
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]string
	// FailWrites makes Set and Delete fail, to exercise persistence errors.
	FailWrites bool
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return &PersistenceError{Key: key, Op: "set", Err: errors.New("storage unavailable")}
	}
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return &PersistenceError{Key: key, Op: "delete", Err: errors.New("storage unavailable")}
	}
	delete(m.data, key)
	return nil
}
