package internal

import "sort"

// Deduplicator removes history entries that share a dedup key
type Deduplicator struct{}

// NewDeduplicator creates a new Deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Deduplicate keeps the first entry for each "<searchedIP>-<timestamp>" key
func (d *Deduplicator) Deduplicate(entries []HistoryEntry) []HistoryEntry {
	seen := make(map[string]bool, len(entries))
	unique := make([]HistoryEntry, 0, len(entries))

	for _, entry := range entries {
		key := entry.Key()
		if !seen[key] {
			seen[key] = true
			unique = append(unique, entry)
		}
	}

	return unique
}

// MergeHistory concatenates server then local entries, sorts them newest
// first (stable, so server copies stay ahead on ties) and drops repeated
// dedup keys. Timestamps are compared exactly.
func MergeHistory(server, local []HistoryEntry) []HistoryEntry {
	all := make([]HistoryEntry, 0, len(server)+len(local))
	all = append(all, server...)
	all = append(all, local...)

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp > all[j].Timestamp
	})

	return NewDeduplicator().Deduplicate(all)
}
