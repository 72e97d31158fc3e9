package internal

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoDeletableItems is returned when a delete selection holds no server-persisted entries.
	ErrNoDeletableItems = errors.New("no deletable items selected")
	// ErrNotSignedIn is returned by operations that need an authenticated session.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrSuperseded is returned when a newer request for the same resource finished first.
	ErrSuperseded = errors.New("request superseded by a newer one")
)

// NetworkError represents a request that never completed
type NetworkError struct {
	Op  string // "csrf", "login", "history", ...
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error [%s]: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthError represents a non-2xx response from an auth endpoint.
// Message is the server-provided text, or an operation-specific fallback.
type AuthError struct {
	Op      string
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// ServerError represents a non-2xx response from a data endpoint
type ServerError struct {
	Op      string
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// ValidationError represents input rejected before any network call
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PersistenceError represents a failed write to local storage
type PersistenceError struct {
	Key string
	Op  string // "set", "delete"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ParseError represents errors parsing stored or received data
type ParseError struct {
	Source string // "history cache", "cookies"
	Key    string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s] %s: %v", e.Source, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Status == http.StatusUnauthorized
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Status == http.StatusUnauthorized
	}
	return false
}
