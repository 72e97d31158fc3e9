package internal

import (
	"fmt"
	"time"
)

// UserRef identifies the signed-in user
type UserRef struct {
	ID          string `json:"id" yaml:"id"`
	Email       string `json:"email" yaml:"email"`
	DisplayName string `json:"displayName,omitempty" yaml:"display_name,omitempty"`
}

// Name returns the display name, falling back to the email
func (u *UserRef) Name() string {
	if u == nil {
		return "User"
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Email != "" {
		return u.Email
	}
	return "User"
}

// HistoryEntry is one past lookup. Entries without ID exist only locally.
type HistoryEntry struct {
	ID              string                 `json:"id,omitempty" yaml:"id,omitempty"`
	UserID          string                 `json:"userId,omitempty" yaml:"user_id,omitempty"`
	SearchedIP      string                 `json:"searchedIP" yaml:"searched_ip"`
	Timestamp       int64                  `json:"timestamp" yaml:"timestamp"` // epoch ms
	GeolocationData map[string]interface{} `json:"geolocationData" yaml:"geolocation_data"`
}

// Key returns the dedup key "<searchedIP>-<timestamp>"
func (e HistoryEntry) Key() string {
	return fmt.Sprintf("%s-%d", e.SearchedIP, e.Timestamp)
}

// Deletable reports whether the server knows this entry
func (e HistoryEntry) Deletable() bool {
	return e.ID != ""
}

// Time returns the timestamp as a time.Time
func (e HistoryEntry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// GeoResult is the payload of /ip/current and /ip/lookup
type GeoResult struct {
	IP  string                 `json:"ip" yaml:"ip"`
	Geo map[string]interface{} `json:"geo" yaml:"geo"`
}

// Field returns a string field of the geo payload, or ""
func (g *GeoResult) Field(name string) string {
	if g == nil || g.Geo == nil {
		return ""
	}
	if v, ok := g.Geo[name]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

type csrfResponse struct {
	CSRFToken string `json:"csrfToken"`
}

type meResponse struct {
	User *UserRef `json:"user"`
}

type tokenResponse struct {
	AccessToken string   `json:"accessToken"`
	User        *UserRef `json:"user,omitempty"`
}

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

type historyResponse struct {
	Items []HistoryEntry `json:"items"`
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

type messageResponse struct {
	Message string `json:"message"`
}
