package internal

// CreateTestEntry creates a history entry with a small geolocation payload.
// An empty id makes it local-only.
func CreateTestEntry(id, ip string, timestamp int64) HistoryEntry {
	return HistoryEntry{
		ID:         id,
		SearchedIP: ip,
		Timestamp:  timestamp,
		GeolocationData: map[string]interface{}{
			"ip":      ip,
			"city":    "Test City",
			"country": "US",
		},
	}
}

// entryKeys returns the dedup keys of entries in order
func entryKeys(entries []HistoryEntry) []string {
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key())
	}
	return keys
}
