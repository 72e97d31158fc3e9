package internal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iksnae/geo-trace/testutil"
)

const testPassword = "StrongP@ss1"

type harness struct {
	fake    *testutil.FakeAPI
	store   *MemoryStore
	api     *APIClient
	csrf    *CsrfClient
	tokens  *TokenStore
	session *SessionManager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, testutil.NewFakeAPI(t), NewMemoryStore())
}

// newHarnessWith builds fresh client components over an existing fake and store,
// the way a new process would.
func newHarnessWith(t *testing.T, fake *testutil.FakeAPI, store *MemoryStore) *harness {
	t.Helper()
	jar, err := NewPersistentJar(store, fake.URL()+"/api/")
	if err != nil {
		t.Fatalf("NewPersistentJar() error = %v", err)
	}
	api := NewAPIClient(fake.URL()+"/api", jar, 5*time.Second)
	csrf := NewCsrfClient(api)
	tokens := NewTokenStore(store)
	return &harness{
		fake:    fake,
		store:   store,
		api:     api,
		csrf:    csrf,
		tokens:  tokens,
		session: NewSessionManager(api, csrf, tokens),
	}
}

func (h *harness) seedRefreshCookie(t *testing.T) {
	t.Helper()
	raw := `[{"name":"` + testutil.FakeRefreshCookie + `","value":"` + h.fake.RefreshCookieValue() + `"}]`
	if err := h.store.Set(SessionCookiesKey, raw); err != nil {
		t.Fatalf("failed to seed cookie: %v", err)
	}
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) record(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.snaps))
	for _, s := range r.snaps {
		out = append(out, s.Status)
	}
	return out
}

type navSpy struct{ redirects int }

func (n *navSpy) RedirectToSignIn() { n.redirects++ }

func TestTransition(t *testing.T) {
	tests := []struct {
		name string
		from sessionState
		ev   Event
		want sessionState
	}{
		{"bootstrap resolves", sessionState{StatusInitializing, StatusInitializing}, EventIdentityResolved, sessionState{StatusAuthenticated, StatusAuthenticated}},
		{"bootstrap fails", sessionState{StatusInitializing, StatusInitializing}, EventIdentityLost, sessionState{StatusUnauthenticated, StatusUnauthenticated}},
		{"mutation starts", sessionState{StatusAuthenticated, StatusAuthenticated}, EventMutationStarted, sessionState{StatusMutating, StatusAuthenticated}},
		{"mutation ends unchanged", sessionState{StatusMutating, StatusAuthenticated}, EventMutationEnded, sessionState{StatusAuthenticated, StatusAuthenticated}},
		{"identity lost mid mutation", sessionState{StatusMutating, StatusAuthenticated}, EventIdentityLost, sessionState{StatusMutating, StatusUnauthenticated}},
		{"sign-in resolves mid mutation", sessionState{StatusMutating, StatusUnauthenticated}, EventIdentityResolved, sessionState{StatusMutating, StatusAuthenticated}},
		{"nested start keeps settled", sessionState{StatusMutating, StatusAuthenticated}, EventMutationStarted, sessionState{StatusMutating, StatusAuthenticated}},
		{"end without mutation", sessionState{StatusUnauthenticated, StatusUnauthenticated}, EventMutationEnded, sessionState{StatusUnauthenticated, StatusUnauthenticated}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transition(tt.from, tt.ev); got != tt.want {
				t.Errorf("transition(%v, %v) = %+v, want %+v", tt.from, tt.ev, got, tt.want)
			}
		})
	}
}

func TestInitialize_StoredTokenValid(t *testing.T) {
	h := newHarness(t)
	user := h.fake.AddUser("u1", "ada@example.com", testPassword, "Ada")
	h.fake.IssueToken("stored", user)
	_ = h.tokens.Set("stored")

	if got := h.session.Status(); got != StatusInitializing {
		t.Fatalf("initial status = %v, want initializing", got)
	}

	h.session.Initialize(context.Background())

	snap := h.session.Snapshot()
	if snap.Status != StatusAuthenticated || snap.User == nil || snap.User.ID != "u1" {
		t.Fatalf("Snapshot() = %+v, want authenticated u1", snap)
	}
	if snap.Loading {
		t.Error("Loading = true after bootstrap")
	}
	if n := h.fake.Calls("POST /api/refresh"); n != 0 {
		t.Errorf("refresh called %d times, want 0", n)
	}
	if n := h.fake.Calls("GET /api/csrf"); n != 0 {
		t.Errorf("csrf called %d times, want 0", n)
	}
}

func TestInitialize_RefreshThenRetry(t *testing.T) {
	h := newHarness(t)
	user := h.fake.AddUser("u1", "ada@example.com", testPassword, "")
	h.fake.SetRefreshToken("fresh")
	h.fake.IssueToken("fresh", user)
	_ = h.tokens.Set("expired")
	h.seedRefreshCookie(t)
	h = newHarnessWith(t, h.fake, h.store)

	h.session.Initialize(context.Background())

	if got := h.session.Status(); got != StatusAuthenticated {
		t.Fatalf("status = %v, want authenticated", got)
	}
	if got := h.tokens.Get(); got != "fresh" {
		t.Errorf("stored token = %q, want fresh", got)
	}
	if n := h.fake.Calls("POST /api/refresh"); n != 1 {
		t.Errorf("refresh called %d times, want 1", n)
	}
	if n := h.fake.Calls("GET /api/me"); n != 2 {
		t.Errorf("me called %d times, want 2 (stored + retry)", n)
	}
	if got := h.fake.LastHeader("POST /api/refresh", "x-xsrf-token"); got != testutil.FakeCSRFToken {
		t.Errorf("refresh csrf header = %q", got)
	}
	if got := h.fake.LastHeader("GET /api/me", "Authorization"); got != "Bearer fresh" {
		t.Errorf("retry Authorization = %q, want Bearer fresh", got)
	}
}

func TestInitialize_RetryFailsEndsUnauthenticated(t *testing.T) {
	h := newHarness(t)
	h.fake.SetRefreshToken("not-recognized-by-me")
	h.seedRefreshCookie(t)
	h = newHarnessWith(t, h.fake, h.store)

	h.session.Initialize(context.Background())

	if got := h.session.Status(); got != StatusUnauthenticated {
		t.Fatalf("status = %v, want unauthenticated", got)
	}
	if n := h.fake.Calls("GET /api/me"); n != 1 {
		t.Errorf("me called %d times, want exactly one retry", n)
	}
}

func TestInitialize_NoTokenRefreshFails(t *testing.T) {
	h := newHarness(t)

	h.session.Initialize(context.Background())

	if got := h.session.Status(); got != StatusUnauthenticated {
		t.Fatalf("status = %v, want unauthenticated", got)
	}
	if n := h.fake.Calls("GET /api/me"); n != 0 {
		t.Errorf("me called %d times, want 0", n)
	}
	if n := h.fake.Calls("POST /api/refresh"); n != 1 {
		t.Errorf("refresh called %d times, want 1", n)
	}
}

func TestInitialize_NetworkErrorsAreSwallowed(t *testing.T) {
	h := newHarness(t)
	_ = h.tokens.Set("stored")
	h.fake.Drop("GET /api/me")
	h.fake.Drop("GET /api/csrf")
	h.fake.Drop("POST /api/refresh")

	h.session.Initialize(context.Background())

	if got := h.session.Status(); got != StatusUnauthenticated {
		t.Errorf("status = %v, want unauthenticated", got)
	}
}

func TestInitialize_RunsOnce(t *testing.T) {
	h := newHarness(t)
	user := h.fake.AddUser("u1", "ada@example.com", testPassword, "")
	h.fake.IssueToken("stored", user)
	_ = h.tokens.Set("stored")

	h.session.Initialize(context.Background())
	h.session.Initialize(context.Background())

	if n := h.fake.Calls("GET /api/me"); n != 1 {
		t.Errorf("me called %d times, want 1", n)
	}
}

func TestInitialize_ConcurrentCallIsNoop(t *testing.T) {
	h := newHarness(t)
	user := h.fake.AddUser("u1", "ada@example.com", testPassword, "")
	h.fake.IssueToken("stored", user)
	_ = h.tokens.Set("stored")
	release := h.fake.Hold("GET /api/me")
	defer release()

	first := make(chan struct{})
	go func() {
		h.session.Initialize(context.Background())
		close(first)
	}()
	waitForCalls(t, h.fake, "GET /api/me", 1)

	second := make(chan struct{})
	go func() {
		h.session.Initialize(context.Background())
		close(second)
	}()
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("Initialize during a running bootstrap did not return right away")
	}
	if got := h.session.Status(); got != StatusInitializing {
		t.Errorf("status = %v while the first bootstrap is held", got)
	}

	release()
	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("first Initialize did not finish")
	}
	if got := h.session.Status(); got != StatusAuthenticated {
		t.Errorf("status = %v, want authenticated", got)
	}
	if n := h.fake.Calls("GET /api/me"); n != 1 {
		t.Errorf("me called %d times, want 1", n)
	}
}

func waitForCalls(t *testing.T, fake *testutil.FakeAPI, endpoint string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for fake.Calls(endpoint) < n {
		if time.Now().After(deadline) {
			t.Fatalf("%s not called %d times", endpoint, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInitialize_CancelledResultIsDiscarded(t *testing.T) {
	h := newHarness(t)
	user := h.fake.AddUser("u1", "ada@example.com", testPassword, "")
	h.fake.IssueToken("stored", user)
	_ = h.tokens.Set("stored")
	release := h.fake.Hold("GET /api/me")
	defer release()

	rec := &recorder{}
	h.session.Subscribe(rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.session.Initialize(ctx)
		close(done)
	}()

	waitForCalls(t, h.fake, "GET /api/me", 1)

	// a second bootstrap while one is in flight is a no-op
	h.session.Initialize(context.Background())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Initialize did not return after cancel")
	}

	if got := h.session.Status(); got != StatusInitializing {
		t.Errorf("status = %v, want initializing after cancelled bootstrap", got)
	}
	if len(rec.statuses()) != 0 {
		t.Errorf("subscribers notified of cancelled bootstrap: %v", rec.statuses())
	}
	if n := h.fake.Calls("POST /api/refresh"); n != 0 {
		t.Errorf("refresh attempted after cancel: %d", n)
	}

	release()
	h.session.Initialize(context.Background())
	if got := h.session.Status(); got != StatusAuthenticated {
		t.Errorf("status after re-run = %v, want authenticated", got)
	}
}

func TestSignIn_Success(t *testing.T) {
	h := newHarness(t)
	h.fake.AddUser("u1", "ada@example.com", testPassword, "Ada")
	h.session.Initialize(context.Background())

	rec := &recorder{}
	h.session.Subscribe(rec.record)

	user, err := h.session.SignIn(context.Background(), " ada@example.com ", testPassword)
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if user.ID != "u1" || user.DisplayName != "Ada" {
		t.Errorf("SignIn() user = %+v", user)
	}
	if got := h.tokens.Get(); got != "token-u1" {
		t.Errorf("stored token = %q, want token-u1", got)
	}
	if got := h.fake.LastHeader("POST /api/login", "x-xsrf-token"); got != testutil.FakeCSRFToken {
		t.Errorf("login csrf header = %q", got)
	}

	statuses := rec.statuses()
	if len(statuses) == 0 || statuses[0] != StatusMutating {
		t.Errorf("first status = %v, want mutating", statuses)
	}
	if last := statuses[len(statuses)-1]; last != StatusAuthenticated {
		t.Errorf("last status = %v, want authenticated", last)
	}
	if h.session.Snapshot().Loading {
		t.Error("busy flag not cleared")
	}
}

func TestSignIn_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		email   string
		wantMsg string
	}{
		{
			name:    "server message",
			setup:   func(h *harness) { h.fake.AddUser("u1", "ada@example.com", testPassword, "") },
			email:   "nobody@example.com",
			wantMsg: "Invalid email or password",
		},
		{
			name:    "generic fallback",
			setup:   func(h *harness) { h.fake.FailWithoutMessage("POST /api/login", 500) },
			email:   "ada@example.com",
			wantMsg: "Login failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)
			h.session.Initialize(context.Background())

			_, err := h.session.SignIn(context.Background(), tt.email, testPassword)
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("SignIn() error = %v, want AuthError", err)
			}
			if authErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", authErr.Message, tt.wantMsg)
			}

			snap := h.session.Snapshot()
			if snap.Status != StatusUnauthenticated || snap.Loading {
				t.Errorf("Snapshot() after failure = %+v", snap)
			}
			if h.tokens.Get() != "" {
				t.Error("token stored after failed sign-in")
			}
		})
	}
}

func TestSignIn_ValidationNeverReachesNetwork(t *testing.T) {
	h := newHarness(t)

	_, err := h.session.SignIn(context.Background(), "bad", testPassword)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("SignIn() error = %v, want ValidationError", err)
	}
	if n := h.fake.Calls("GET /api/csrf") + h.fake.Calls("POST /api/login"); n != 0 {
		t.Errorf("network used %d times", n)
	}
}

func TestSignUp(t *testing.T) {
	h := newHarness(t)
	h.session.Initialize(context.Background())

	if err := h.session.SignUp(context.Background(), "new@example.com", testPassword, "Newbie"); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if h.tokens.Get() != "" {
		t.Error("SignUp() stored a token")
	}
	if got := h.session.Status(); got != StatusUnauthenticated {
		t.Errorf("status = %v, want unauthenticated", got)
	}

	err := h.session.SignUp(context.Background(), "new@example.com", testPassword, "Again")
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Message != "Email already registered" {
		t.Errorf("duplicate SignUp() error = %v", err)
	}

	h.fake.FailWithoutMessage("POST /api/signup", 500)
	err = h.session.SignUp(context.Background(), "other@example.com", testPassword, "Other")
	if !errors.As(err, &authErr) || authErr.Message != "Sign up failed" {
		t.Errorf("fallback SignUp() error = %v", err)
	}
}

func TestLogout_Success(t *testing.T) {
	h := newHarness(t)
	h.fake.AddUser("u1", "ada@example.com", testPassword, "")
	if _, err := h.session.SignIn(context.Background(), "ada@example.com", testPassword); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	if err := h.session.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if h.tokens.Get() != "" {
		t.Error("token not cleared")
	}
	if snap := h.session.Snapshot(); snap.Status != StatusUnauthenticated || snap.User != nil {
		t.Errorf("Snapshot() = %+v, want unauthenticated", snap)
	}
	if got := h.fake.LastHeader("POST /api/logout", "x-xsrf-token"); got != testutil.FakeCSRFToken {
		t.Errorf("logout csrf header = %q", got)
	}
}

func TestLogout_ServerFailureStillSignsOutLocally(t *testing.T) {
	h := newHarness(t)
	h.fake.AddUser("u1", "ada@example.com", testPassword, "")
	if _, err := h.session.SignIn(context.Background(), "ada@example.com", testPassword); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	h.fake.Drop("POST /api/logout")

	err := h.session.Logout(context.Background())
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Errorf("Logout() error = %v, want NetworkError", err)
	}
	if h.tokens.Get() != "" {
		t.Error("token not cleared after failed server logout")
	}
	if got := h.session.Status(); got != StatusUnauthenticated {
		t.Errorf("status = %v, want unauthenticated", got)
	}
}

func TestLogout_CsrfMissingSendsEmptyHeader(t *testing.T) {
	h := newHarness(t)
	h.fake.Fail("GET /api/csrf", 500)

	if err := h.session.Logout(context.Background()); err != nil {
		t.Errorf("Logout() error = %v, non-2xx logout is best effort", err)
	}
	if n := h.fake.Calls("POST /api/logout"); n != 1 {
		t.Errorf("logout called %d times, want 1", n)
	}
	if got := h.fake.LastHeader("POST /api/logout", "x-xsrf-token"); got != "" {
		t.Errorf("csrf header = %q, want empty", got)
	}
}

func TestInvalidateAndRequireUser(t *testing.T) {
	h := newHarness(t)
	h.fake.AddUser("u1", "ada@example.com", testPassword, "")
	if _, err := h.session.SignIn(context.Background(), "ada@example.com", testPassword); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	nav := &navSpy{}
	if u, err := h.session.RequireUser(nav); err != nil || u.ID != "u1" {
		t.Fatalf("RequireUser() = %+v, %v", u, err)
	}

	h.session.Invalidate()
	if _, err := h.session.RequireUser(nav); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("RequireUser() error = %v, want ErrNotSignedIn", err)
	}
	if nav.redirects != 1 {
		t.Errorf("redirects = %d, want 1", nav.redirects)
	}
	if h.tokens.Get() != "" {
		t.Error("Invalidate() kept the token")
	}
}

func TestRefreshCookieSurvivesRestart(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		scoped bool
	}{
		{name: "root path", path: "/"},
		{name: "scoped to the refresh endpoint", path: "/api/refresh", scoped: true},
		{name: "scoped to the api and rotated", path: "/api", scoped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.scoped {
				h.fake.ScopeRefreshCookie(tt.path)
			}
			user := h.fake.AddUser("u1", "ada@example.com", testPassword, "")
			if _, err := h.session.SignIn(context.Background(), "ada@example.com", testPassword); err != nil {
				t.Fatalf("SignIn() error = %v", err)
			}
			h.fake.SetRefreshToken("after-restart")
			h.fake.IssueToken("after-restart", user)

			for run := 1; run <= 3; run++ {
				_ = h.tokens.Clear()
				restarted := newHarnessWith(t, h.fake, h.store)
				restarted.session.Initialize(context.Background())
				if got := restarted.session.Status(); got != StatusAuthenticated {
					t.Fatalf("run %d: status = %v, want authenticated via refresh cookie", run, got)
				}
			}
			if n := h.fake.Calls("POST /api/refresh"); n != 3 {
				t.Errorf("refresh called %d times, want 3", n)
			}

			raw, _, _ := h.store.Get(SessionCookiesKey)
			if !strings.Contains(raw, `"path":"`+tt.path+`"`) {
				t.Errorf("stored cookies %s lost path %s", raw, tt.path)
			}
			if n := strings.Count(raw, `"name":"`+testutil.FakeRefreshCookie+`"`); n != 1 {
				t.Errorf("stored %d refresh cookies, want 1: %s", n, raw)
			}
			if !strings.Contains(raw, h.fake.RefreshCookieValue()) {
				t.Errorf("stored cookies %s do not hold the current value %s", raw, h.fake.RefreshCookieValue())
			}
		})
	}
}
