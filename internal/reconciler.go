package internal

import (
	"context"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"
)

// IdentitySource supplies the active identity and its bearer token.
// SessionManager implements it.
type IdentitySource interface {
	UserID() string
	Token() string
}

// HistoryReconciler keeps the active identity's history consistent between
// the server and the local cache. Every change recomputes and replaces the
// whole list; nothing is patched incrementally.
type HistoryReconciler struct {
	api      *APIClient
	csrf     *CsrfClient
	cache    *HistoryCache
	identity IdentitySource
	clock    clockwork.Clock

	mu         sync.Mutex
	entries    []HistoryEntry
	owner      string
	loaded     bool
	generation uint64
}

// NewHistoryReconciler creates a reconciler. clock may be nil.
func NewHistoryReconciler(api *APIClient, csrf *CsrfClient, cache *HistoryCache, identity IdentitySource, clock clockwork.Clock) *HistoryReconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HistoryReconciler{
		api:      api,
		csrf:     csrf,
		cache:    cache,
		identity: identity,
		clock:    clock,
	}
}

func copyEntries(entries []HistoryEntry) []HistoryEntry {
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out
}

// Entries returns the active identity's list. When the identity changed
// since the last call, the view switches to that identity's persisted list
// and any request still in flight for the old identity is superseded.
func (r *HistoryReconciler) Entries() []HistoryEntry {
	id := r.identity.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.switchIdentityLocked(id)
	return copyEntries(r.entries)
}

func (r *HistoryReconciler) switchIdentityLocked(id string) {
	if r.loaded && r.owner == id {
		return
	}
	cached, err := r.cache.Load(id)
	if err != nil {
		LogWarn("Ignoring unreadable history cache: %v", err)
		cached = []HistoryEntry{}
	}
	r.entries = cached
	r.owner = id
	r.loaded = true
	r.generation++
}

// commitLocked replaces the in-memory and persisted list for id. The
// in-memory list is kept even when persisting fails.
func (r *HistoryReconciler) commitLocked(id string, entries []HistoryEntry) error {
	if entries == nil {
		entries = []HistoryEntry{}
	}
	r.entries = entries
	r.owner = id
	r.loaded = true
	return r.cache.save(id, entries)
}

// FetchAndMerge pulls the server list, merges it with the local cache and
// persists the result. A failed fetch leaves memory and cache untouched. A
// persistence failure is returned together with the merged list.
func (r *HistoryReconciler) FetchAndMerge(ctx context.Context) ([]HistoryEntry, error) {
	id := r.identity.UserID()
	token := r.identity.Token()

	r.mu.Lock()
	r.switchIdentityLocked(id)
	r.generation++
	gen := r.generation
	r.mu.Unlock()

	var resp historyResponse
	err := r.api.do(ctx, apiRequest{op: "history", method: http.MethodGet, path: "/ip/history", token: token}, &resp)
	if err != nil {
		return nil, asServerError("history", "Failed to load history", err)
	}

	local, err := r.cache.Load(id)
	if err != nil {
		LogWarn("Ignoring unreadable history cache: %v", err)
		local = []HistoryEntry{}
	}
	merged := MergeHistory(resp.Items, local)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation || id != r.identity.UserID() {
		LogDebug("Discarding superseded history fetch for %s", HistoryCacheKey(id))
		return nil, ErrSuperseded
	}
	if err := r.commitLocked(id, merged); err != nil {
		return copyEntries(merged), err
	}
	LogDebug("Reconciled %d history entries (%d from server, %d cached)", len(merged), len(resp.Items), len(local))
	return copyEntries(merged), nil
}

// Delete removes the entries selected by dedup key on the server and then
// adopts the server's post-delete list as the whole history. Local-only
// entries are not deletable; a selection with none left fails with
// ErrNoDeletableItems before any request is made.
func (r *HistoryReconciler) Delete(ctx context.Context, keys []string) ([]HistoryEntry, error) {
	id := r.identity.UserID()
	token := r.identity.Token()

	selected := make(map[string]bool, len(keys))
	for _, k := range keys {
		selected[k] = true
	}

	var ids []string
	for _, e := range r.Entries() {
		if selected[e.Key()] && e.Deletable() {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return nil, ErrNoDeletableItems
	}

	csrf := r.csrf.FetchToken(ctx)
	var resp historyResponse
	err := r.api.do(ctx, apiRequest{
		op:     "delete",
		method: http.MethodPost,
		path:   "/ip/history/delete",
		token:  token,
		csrf:   csrfHeader(csrf),
		body:   deleteRequest{IDs: ids},
	}, &resp)
	if err != nil {
		return nil, asServerError("delete", "Failed to delete history", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id != r.identity.UserID() {
		return nil, ErrSuperseded
	}
	// the server list is newer than any fetch still in flight
	r.generation++
	if err := r.commitLocked(id, resp.Items); err != nil {
		return copyEntries(r.entries), err
	}
	LogDebug("Deleted %d history entries, %d remain", len(ids), len(r.entries))
	return copyEntries(r.entries), nil
}

// Record adds a local-only entry for a lookup the server has not reported
// yet and re-runs the merge over the current list.
func (r *HistoryReconciler) Record(query string, result *GeoResult) ([]HistoryEntry, error) {
	id := r.identity.UserID()
	entry := HistoryEntry{
		UserID:     id,
		SearchedIP: query,
		Timestamp:  r.clock.Now().UnixMilli(),
	}
	if result != nil {
		entry.GeolocationData = result.Geo
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.switchIdentityLocked(id)
	r.generation++
	merged := MergeHistory(r.entries, []HistoryEntry{entry})
	if err := r.commitLocked(id, merged); err != nil {
		return copyEntries(merged), err
	}
	return copyEntries(merged), nil
}

// ClearLocal drops the active identity's cached history
func (r *HistoryReconciler) ClearLocal() error {
	id := r.identity.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.entries = []HistoryEntry{}
	r.owner = id
	r.loaded = true
	return r.cache.clear(id)
}
