package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	// FakeCSRFToken is the anti-forgery token the fake API hands out
	FakeCSRFToken = "csrf-test-token"
	// FakeRefreshCookie is the name of the refresh cookie set on login
	FakeRefreshCookie = "refresh_token"
)

// FakeUser mirrors the API's user payload
type FakeUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// FakeEntry mirrors the API's history item payload
type FakeEntry struct {
	ID              string                 `json:"id,omitempty"`
	UserID          string                 `json:"userId,omitempty"`
	SearchedIP      string                 `json:"searchedIP"`
	Timestamp       int64                  `json:"timestamp"`
	GeolocationData map[string]interface{} `json:"geolocationData"`
}

type fakeAccount struct {
	password string
	user     FakeUser
}

// FakeAPI is an httptest server speaking the geolocation API
type FakeAPI struct {
	Server *httptest.Server

	mu       sync.Mutex
	calls    map[string]int
	headers  map[string]http.Header
	failures map[string]int
	bare     map[string]bool
	drops    map[string]bool
	holds    map[string]chan struct{}

	tokens       map[string]FakeUser
	accounts     map[string]fakeAccount
	refreshToken string
	refreshValue string
	refreshPath  string
	rotate       bool
	rotations    int
	history      []FakeEntry
	deletedIDs   []string
	nextID       int
	clock        int64
}

// NewFakeAPI starts a fake API server, closed on test cleanup
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		calls:        make(map[string]int),
		headers:      make(map[string]http.Header),
		failures:     make(map[string]int),
		bare:         make(map[string]bool),
		drops:        make(map[string]bool),
		holds:        make(map[string]chan struct{}),
		tokens:       make(map[string]FakeUser),
		accounts:     make(map[string]fakeAccount),
		refreshValue: "refresh-cookie-value",
		refreshPath:  "/",
		clock:        1_700_000_000_000,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/csrf", f.wrap(f.handleCSRF))
	mux.HandleFunc("/api/me", f.wrap(f.handleMe))
	mux.HandleFunc("/api/refresh", f.wrap(f.handleRefresh))
	mux.HandleFunc("/api/login", f.wrap(f.handleLogin))
	mux.HandleFunc("/api/signup", f.wrap(f.handleSignup))
	mux.HandleFunc("/api/logout", f.wrap(f.handleLogout))
	mux.HandleFunc("/api/ip/current", f.wrap(f.handleCurrent))
	mux.HandleFunc("/api/ip/lookup", f.wrap(f.handleLookup))
	mux.HandleFunc("/api/ip/history", f.wrap(f.handleHistory))
	mux.HandleFunc("/api/ip/history/delete", f.wrap(f.handleDelete))

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the server base URL (without /api)
func (f *FakeAPI) URL() string {
	return f.Server.URL
}

// AddUser registers an account and returns its user
func (f *FakeAPI) AddUser(id, email, password, displayName string) FakeUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := FakeUser{ID: id, Email: email, DisplayName: displayName}
	f.accounts[email] = fakeAccount{password: password, user: u}
	return u
}

// IssueToken makes token a valid access token for user
func (f *FakeAPI) IssueToken(token string, user FakeUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = user
}

// SetRefreshToken sets the access token /refresh hands out; empty makes refresh fail
func (f *FakeAPI) SetRefreshToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshToken = token
}

// RefreshCookieValue returns the refresh cookie value the server expects
func (f *FakeAPI) RefreshCookieValue() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshValue
}

// ScopeRefreshCookie makes login set the refresh cookie with the given Path
// and makes every successful refresh rotate it, invalidating the old value.
func (f *FakeAPI) ScopeRefreshCookie(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshPath = path
	f.rotate = true
}

// SetHistory replaces the server-side history
func (f *FakeAPI) SetHistory(items []FakeEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append([]FakeEntry(nil), items...)
}

// History returns a copy of the server-side history
func (f *FakeAPI) History() []FakeEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeEntry(nil), f.history...)
}

// DeletedIDs returns the ids received by the last delete call
func (f *FakeAPI) DeletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletedIDs...)
}

// Fail makes endpoint ("POST /api/logout") answer with status
func (f *FakeAPI) Fail(endpoint string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[endpoint] = status
}

// FailWithoutMessage makes endpoint answer with status and an empty body
func (f *FakeAPI) FailWithoutMessage(endpoint string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[endpoint] = status
	f.bare[endpoint] = true
}

// Drop makes endpoint close the connection without a response
func (f *FakeAPI) Drop(endpoint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops[endpoint] = true
}

// Hold blocks endpoint until the returned release func is called or the
// client goes away.
func (f *FakeAPI) Hold(endpoint string) (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.holds[endpoint] = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns how many times endpoint was hit
func (f *FakeAPI) Calls(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

// LastHeader returns a header from the most recent request to endpoint
func (f *FakeAPI) LastHeader(endpoint, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.headers[endpoint]
	if !ok {
		return ""
	}
	return h.Get(name)
}

func (f *FakeAPI) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.Method + " " + r.URL.Path

		f.mu.Lock()
		f.calls[endpoint]++
		f.headers[endpoint] = r.Header.Clone()
		status, failing := f.failures[endpoint]
		bare := f.bare[endpoint]
		drop := f.drops[endpoint]
		hold := f.holds[endpoint]
		f.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}

		if drop {
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, err := hj.Hijack()
				if err == nil {
					_ = conn.Close()
					return
				}
			}
			panic(http.ErrAbortHandler)
		}

		if failing && bare {
			w.WriteHeader(status)
			return
		}
		if failing {
			writeJSON(w, status, map[string]string{"message": fmt.Sprintf("forced failure on %s", endpoint)})
			return
		}

		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *FakeAPI) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("x-xsrf-token") != FakeCSRFToken {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "Invalid CSRF token"})
		return false
	}
	return true
}

func (f *FakeAPI) authenticate(w http.ResponseWriter, r *http.Request) (FakeUser, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	user, ok := f.tokens[token]
	f.mu.Unlock()
	if token == "" || !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return FakeUser{}, false
	}
	return user, true
}

func (f *FakeAPI) handleCSRF(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": FakeCSRFToken})
}

func (f *FakeAPI) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := f.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (f *FakeAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !f.checkCSRF(w, r) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	cookie, err := r.Cookie(FakeRefreshCookie)
	if f.refreshToken == "" || err != nil || cookie.Value != f.refreshValue {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Refresh token missing"})
		return
	}
	if f.rotate {
		f.rotations++
		f.refreshValue = fmt.Sprintf("refresh-cookie-value-%d", f.rotations)
		http.SetCookie(w, &http.Cookie{Name: FakeRefreshCookie, Value: f.refreshValue, Path: f.refreshPath, HttpOnly: true})
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": f.refreshToken})
}

func (f *FakeAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !f.checkCSRF(w, r) {
		return
	}
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid body"})
		return
	}

	f.mu.Lock()
	acct, ok := f.accounts[body.Email]
	if !ok || acct.password != body.Password {
		f.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
		return
	}
	token := "token-" + acct.user.ID
	f.tokens[token] = acct.user
	refresh := f.refreshValue
	path := f.refreshPath
	f.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: FakeRefreshCookie, Value: refresh, Path: path, HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]interface{}{"accessToken": token, "user": acct.user})
}

func (f *FakeAPI) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !f.checkCSRF(w, r) {
		return
	}
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid body"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.accounts[body.Email]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Email already registered"})
		return
	}
	f.nextID++
	f.accounts[body.Email] = fakeAccount{
		password: body.Password,
		user:     FakeUser{ID: fmt.Sprintf("u%d", f.nextID), Email: body.Email, DisplayName: body.DisplayName},
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{})
}

func (f *FakeAPI) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !f.checkCSRF(w, r) {
		return
	}
	f.mu.Lock()
	path := f.refreshPath
	f.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: FakeRefreshCookie, Value: "", Path: path, MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func fakeGeo(ip string) map[string]interface{} {
	return map[string]interface{}{
		"ip":      ip,
		"city":    "Mountain View",
		"region":  "California",
		"country": "US",
		"loc":     "37.4056,-122.0775",
	}
}

func (f *FakeAPI) handleCurrent(w http.ResponseWriter, r *http.Request) {
	if _, ok := f.authenticate(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ip": "203.0.113.7", "geo": fakeGeo("203.0.113.7")})
}

func (f *FakeAPI) handleLookup(w http.ResponseWriter, r *http.Request) {
	user, ok := f.authenticate(w, r)
	if !ok {
		return
	}
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Missing ip"})
		return
	}

	f.mu.Lock()
	f.nextID++
	f.clock += 1000
	geo := fakeGeo(ip)
	f.history = append([]FakeEntry{{
		ID:              fmt.Sprintf("h%d", f.nextID),
		UserID:          user.ID,
		SearchedIP:      ip,
		Timestamp:       f.clock,
		GeolocationData: geo,
	}}, f.history...)
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"ip": ip, "geo": geo})
}

func (f *FakeAPI) handleHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := f.authenticate(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": f.History()})
}

func (f *FakeAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := f.authenticate(w, r); !ok {
		return
	}
	if !f.checkCSRF(w, r) {
		return
	}
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid body"})
		return
	}

	f.mu.Lock()
	f.deletedIDs = body.IDs
	remove := make(map[string]bool, len(body.IDs))
	for _, id := range body.IDs {
		remove[id] = true
	}
	kept := make([]FakeEntry, 0, len(f.history))
	for _, item := range f.history {
		if !remove[item.ID] {
			kept = append(kept, item)
		}
	}
	f.history = kept
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": kept})
}
