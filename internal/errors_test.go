package internal

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNetworkError(t *testing.T) {
	originalErr := errors.New("connection refused")
	err := &NetworkError{Op: "login", Err: originalErr}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "network error") {
		t.Errorf("NetworkError.Error() should contain 'network error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "login") {
		t.Errorf("NetworkError.Error() should contain op, got: %q", errorMsg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("NetworkError.Unwrap() should return original error")
	}
}

func TestAuthError_MessageIsHumanReadable(t *testing.T) {
	err := &AuthError{Op: "login", Status: 401, Message: "Invalid email or password"}
	if err.Error() != "Invalid email or password" {
		t.Errorf("AuthError.Error() = %q, want server message", err.Error())
	}
}

func TestServerError(t *testing.T) {
	err := &ServerError{Op: "history", Status: 500, Message: "Failed to load history"}
	if !strings.Contains(err.Error(), "Failed to load history") {
		t.Errorf("ServerError.Error() should contain message, got: %q", err.Error())
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("ServerError.Error() should contain status, got: %q", err.Error())
	}
}

func TestPersistenceError(t *testing.T) {
	originalErr := errors.New("disk full")
	err := &PersistenceError{Key: "history:u1", Op: "set", Err: originalErr}

	if !strings.Contains(err.Error(), "history:u1") {
		t.Errorf("PersistenceError.Error() should contain key, got: %q", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("PersistenceError.Unwrap() should return original error")
	}
}

func TestParseError(t *testing.T) {
	originalErr := errors.New("invalid JSON")
	err := &ParseError{Source: "history cache", Key: "history:anon", Err: originalErr}

	if !strings.Contains(err.Error(), "parse error") {
		t.Errorf("ParseError.Error() should contain 'parse error', got: %q", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("ParseError.Unwrap() should return original error")
	}
}

func TestIsUnauthorized(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"auth 401", &AuthError{Status: 401}, true},
		{"auth 400", &AuthError{Status: 400}, false},
		{"server 401 wrapped", fmt.Errorf("history: %w", &ServerError{Status: 401}), true},
		{"server 500", &ServerError{Status: 500}, false},
		{"network", &NetworkError{Op: "me", Err: errors.New("boom")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUnauthorized(tt.err); got != tt.want {
				t.Errorf("IsUnauthorized() = %v, want %v", got, tt.want)
			}
		})
	}
}
