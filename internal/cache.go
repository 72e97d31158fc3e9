package internal

import (
	"encoding/json"
	"fmt"
)

const (
	historyKeyPrefix = "history:"
	anonIdentity     = "anon"
)

// HistoryCacheKey returns the storage key for an identity; "" is anonymous
func HistoryCacheKey(userID string) string {
	if userID == "" {
		return historyKeyPrefix + anonIdentity
	}
	return historyKeyPrefix + userID
}

// HistoryCache persists one history list per identity. Writes replace the
// whole list; only HistoryReconciler writes it.
type HistoryCache struct {
	store KVStore
}

// NewHistoryCache creates a HistoryCache over store
func NewHistoryCache(store KVStore) *HistoryCache {
	return &HistoryCache{store: store}
}

// Load returns the cached list for userID; a missing record is an empty list
func (hc *HistoryCache) Load(userID string) ([]HistoryEntry, error) {
	key := HistoryCacheKey(userID)
	raw, ok, err := hc.store.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return []HistoryEntry{}, nil
	}

	var entries []HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, &ParseError{Source: "history cache", Key: key, Err: err}
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return entries, nil
}

// save replaces the cached list for userID
func (hc *HistoryCache) save(userID string, entries []HistoryEntry) error {
	key := HistoryCacheKey(userID)
	if entries == nil {
		entries = []HistoryEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return hc.store.Set(key, string(data))
}

// clear removes the cached list for userID
func (hc *HistoryCache) clear(userID string) error {
	return hc.store.Delete(HistoryCacheKey(userID))
}
