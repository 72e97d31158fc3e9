package internal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
)

// Status is the session lifecycle state
type Status int

const (
	StatusInitializing Status = iota
	StatusAuthenticated
	StatusUnauthenticated
	StatusMutating
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusMutating:
		return "mutating"
	default:
		return "unknown"
	}
}

// Event drives the session state machine
type Event int

const (
	EventIdentityResolved Event = iota
	EventIdentityLost
	EventMutationStarted
	EventMutationEnded
)

// sessionState pairs the visible status with the last settled (non-mutating)
// status, which is where a mutation returns to.
type sessionState struct {
	status  Status
	settled Status
}

// transition is the single state transition function. Identity events that
// arrive mid-mutation only move the settled status; the mutation's end
// then exposes it.
func transition(st sessionState, ev Event) sessionState {
	switch ev {
	case EventMutationStarted:
		if st.status != StatusMutating {
			st.settled = st.status
		}
		st.status = StatusMutating
	case EventMutationEnded:
		if st.status == StatusMutating {
			st.status = st.settled
		}
	case EventIdentityResolved:
		st.settled = StatusAuthenticated
		if st.status != StatusMutating {
			st.status = StatusAuthenticated
		}
	case EventIdentityLost:
		st.settled = StatusUnauthenticated
		if st.status != StatusMutating {
			st.status = StatusUnauthenticated
		}
	}
	return st
}

// Snapshot is the {user, loading} projection handed to presentation
type Snapshot struct {
	User    *UserRef
	Status  Status
	Loading bool
}

// Navigator is the host's "redirect to sign-in" capability
type Navigator interface {
	RedirectToSignIn()
}

// SessionManager owns the client session: bootstrap, sign-in, sign-up,
// logout and silent refresh. It is passed explicitly to its consumers.
type SessionManager struct {
	api    *APIClient
	csrf   *CsrfClient
	tokens *TokenStore

	// opMu serializes mutations so the token has one writer at a time.
	opMu sync.Mutex

	mu            sync.Mutex
	state         sessionState
	user          *UserRef
	bootstrapping bool
	bootstrapped  bool
	subscribers   map[int]func(Snapshot)
	nextSub       int
}

// NewSessionManager creates a manager in the Initializing state
func NewSessionManager(api *APIClient, csrf *CsrfClient, tokens *TokenStore) *SessionManager {
	return &SessionManager{
		api:         api,
		csrf:        csrf,
		tokens:      tokens,
		state:       sessionState{status: StatusInitializing, settled: StatusInitializing},
		subscribers: make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current projection
func (s *SessionManager) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *SessionManager) snapshotLocked() Snapshot {
	var user *UserRef
	if s.user != nil {
		u := *s.user
		user = &u
	}
	return Snapshot{
		User:    user,
		Status:  s.state.status,
		Loading: s.state.status == StatusInitializing || s.state.status == StatusMutating,
	}
}

// Status returns the current status
func (s *SessionManager) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.status
}

// User returns a copy of the signed-in user, or nil
func (s *SessionManager) User() *UserRef {
	return s.Snapshot().User
}

// UserID returns the signed-in user's id, or "" when there is none
func (s *SessionManager) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// Token returns the current access token
func (s *SessionManager) Token() string {
	return s.tokens.Get()
}

// Subscribe registers fn for every state change. The returned func removes it.
func (s *SessionManager) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// apply runs ev through the state machine and notifies subscribers
func (s *SessionManager) apply(ev Event, user *UserRef) {
	s.mu.Lock()
	snap, subs := s.applyLocked(ev, user)
	s.mu.Unlock()
	notify(subs, snap)
}

func (s *SessionManager) applyLocked(ev Event, user *UserRef) (Snapshot, []func(Snapshot)) {
	s.state = transition(s.state, ev)
	switch ev {
	case EventIdentityResolved:
		s.user = user
	case EventIdentityLost:
		s.user = nil
	}
	subs := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return s.snapshotLocked(), subs
}

func notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

// Initialize resolves the current identity once per manager. It tries the
// stored token, then a silent refresh followed by one retry. Every failure
// ends in Unauthenticated without an error. If ctx is cancelled first the
// result is discarded and the manager stays Initializing; a later call may
// try again. Calls made while a bootstrap is in flight are no-ops.
func (s *SessionManager) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.bootstrapping || s.bootstrapped {
		s.mu.Unlock()
		return
	}
	s.bootstrapping = true
	s.mu.Unlock()

	user := s.bootstrap(ctx)

	s.mu.Lock()
	s.bootstrapping = false
	if ctx.Err() != nil {
		s.mu.Unlock()
		LogDebug("Session bootstrap cancelled, discarding result")
		return
	}
	s.bootstrapped = true
	if s.state.settled != StatusInitializing {
		// A sign-in or logout already decided the identity.
		s.mu.Unlock()
		return
	}
	ev := EventIdentityLost
	if user != nil {
		ev = EventIdentityResolved
	}
	snap, subs := s.applyLocked(ev, user)
	s.mu.Unlock()
	notify(subs, snap)
}

func (s *SessionManager) bootstrap(ctx context.Context) *UserRef {
	if token := s.tokens.Get(); token != "" {
		user, err := s.fetchIdentity(ctx, token)
		if err == nil {
			return user
		}
		LogDebug("Stored access token rejected: %v", err)
	}
	if ctx.Err() != nil {
		return nil
	}

	token, err := s.refresh(ctx)
	if err != nil {
		LogDebug("Silent refresh failed: %v", err)
		return nil
	}

	user, err := s.fetchIdentity(ctx, token)
	if err != nil {
		LogDebug("Identity lookup after refresh failed: %v", err)
		return nil
	}
	return user
}

func (s *SessionManager) fetchIdentity(ctx context.Context, token string) (*UserRef, error) {
	var resp meResponse
	err := s.api.do(ctx, apiRequest{op: "me", method: http.MethodGet, path: "/me", token: token}, &resp)
	if err != nil {
		return nil, asAuthError("me", "Not authenticated", err)
	}
	if resp.User == nil {
		return nil, &AuthError{Op: "me", Status: http.StatusOK, Message: "Identity response had no user"}
	}
	return resp.User, nil
}

// refresh exchanges the refresh cookie for a new access token and stores it
func (s *SessionManager) refresh(ctx context.Context) (string, error) {
	csrf := s.csrf.FetchToken(ctx)
	var resp tokenResponse
	err := s.api.do(ctx, apiRequest{
		op:     "refresh",
		method: http.MethodPost,
		path:   "/refresh",
		csrf:   csrfHeader(csrf),
		body:   struct{}{},
	}, &resp)
	if err != nil {
		return "", asAuthError("refresh", "Session refresh failed", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("refresh returned no access token")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.tokens.Set(resp.AccessToken); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

func (s *SessionManager) beginMutation() {
	s.apply(EventMutationStarted, nil)
}

func (s *SessionManager) endMutation() {
	s.apply(EventMutationEnded, nil)
}

// SignIn authenticates with email and password and stores the access token
func (s *SessionManager) SignIn(ctx context.Context, email, password string) (*UserRef, error) {
	email = strings.TrimSpace(email)
	if err := ValidateSignIn(email, password); err != nil {
		return nil, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.beginMutation()
	defer s.endMutation()

	csrf := s.csrf.FetchToken(ctx)
	var resp tokenResponse
	err := s.api.do(ctx, apiRequest{
		op:     "login",
		method: http.MethodPost,
		path:   "/login",
		csrf:   csrfHeader(csrf),
		body:   credentialsRequest{Email: email, Password: password},
	}, &resp)
	if err != nil {
		return nil, asAuthError("login", "Login failed", err)
	}
	if resp.AccessToken == "" || resp.User == nil {
		return nil, &AuthError{Op: "login", Status: http.StatusOK, Message: "Login failed"}
	}

	if err := s.tokens.Set(resp.AccessToken); err != nil {
		return nil, err
	}
	s.apply(EventIdentityResolved, resp.User)
	LogDebug("Signed in as %s", resp.User.ID)
	return resp.User, nil
}

// SignUp creates an account. It does not sign the caller in.
func (s *SessionManager) SignUp(ctx context.Context, email, password, displayName string) error {
	email = strings.TrimSpace(email)
	displayName = strings.TrimSpace(displayName)
	if err := ValidateSignUp(email, password, displayName); err != nil {
		return err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.beginMutation()
	defer s.endMutation()

	csrf := s.csrf.FetchToken(ctx)
	err := s.api.do(ctx, apiRequest{
		op:     "signup",
		method: http.MethodPost,
		path:   "/signup",
		csrf:   csrfHeader(csrf),
		body:   credentialsRequest{Email: email, Password: password, DisplayName: displayName},
	}, nil)
	if err != nil {
		return asAuthError("signup", "Sign up failed", err)
	}
	return nil
}

// Logout tells the server (best effort), then always clears the token and
// ends Unauthenticated. A network failure of the server call is returned
// after the local sign-out has happened.
func (s *SessionManager) Logout(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.beginMutation()
	defer s.endMutation()

	csrf := s.csrf.FetchToken(ctx)
	serverErr := s.api.do(ctx, apiRequest{
		op:     "logout",
		method: http.MethodPost,
		path:   "/logout",
		csrf:   csrfHeader(csrf),
	}, nil)

	if err := s.tokens.Clear(); err != nil {
		LogWarn("Failed to clear access token: %v", err)
	}
	s.apply(EventIdentityLost, nil)

	var netErr *NetworkError
	if errors.As(serverErr, &netErr) {
		LogWarn("Server logout failed: %v", serverErr)
		return serverErr
	}
	if serverErr != nil {
		LogDebug("Server logout answered: %v", serverErr)
	}
	return nil
}

// Invalidate drops the session after a data request was rejected with 401
func (s *SessionManager) Invalidate() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.tokens.Clear(); err != nil {
		LogWarn("Failed to clear access token: %v", err)
	}
	s.apply(EventIdentityLost, nil)
}

// RequireUser returns the signed-in user, or redirects to sign-in through
// nav and fails with ErrNotSignedIn.
func (s *SessionManager) RequireUser(nav Navigator) (*UserRef, error) {
	snap := s.Snapshot()
	if snap.Status == StatusAuthenticated && snap.User != nil {
		return snap.User, nil
	}
	if nav != nil {
		nav.RedirectToSignIn()
	}
	return nil, ErrNotSignedIn
}
