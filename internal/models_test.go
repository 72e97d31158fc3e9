package internal

import (
	"encoding/json"
	"testing"
)

func TestHistoryEntry_Key(t *testing.T) {
	e := HistoryEntry{SearchedIP: "1.1.1.1", Timestamp: 1000}
	if got := e.Key(); got != "1.1.1.1-1000" {
		t.Errorf("Key() = %q, want 1.1.1.1-1000", got)
	}
}

func TestHistoryEntry_Deletable(t *testing.T) {
	if (HistoryEntry{SearchedIP: "1.1.1.1"}).Deletable() {
		t.Error("entry without id should not be deletable")
	}
	if !(HistoryEntry{ID: "h1", SearchedIP: "1.1.1.1"}).Deletable() {
		t.Error("entry with id should be deletable")
	}
}

func TestHistoryEntry_DecodesServerShape(t *testing.T) {
	raw := `{"id":"h1","userId":"u1","searchedIP":"8.8.8.8","timestamp":1700000000000,"geolocationData":{"city":"Mountain View"}}`

	var e HistoryEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if e.ID != "h1" || e.UserID != "u1" || e.SearchedIP != "8.8.8.8" {
		t.Errorf("decoded entry = %+v", e)
	}
	if e.Timestamp != 1700000000000 {
		t.Errorf("Timestamp = %d", e.Timestamp)
	}
	if e.GeolocationData["city"] != "Mountain View" {
		t.Errorf("GeolocationData = %v", e.GeolocationData)
	}
}

func TestUserRef_Name(t *testing.T) {
	tests := []struct {
		name string
		user *UserRef
		want string
	}{
		{"nil user", nil, "User"},
		{"display name", &UserRef{Email: "a@b.co", DisplayName: "Ada"}, "Ada"},
		{"email fallback", &UserRef{Email: "a@b.co"}, "a@b.co"},
		{"empty", &UserRef{}, "User"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.Name(); got != tt.want {
				t.Errorf("Name() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGeoResult_Field(t *testing.T) {
	g := &GeoResult{IP: "8.8.8.8", Geo: map[string]interface{}{"city": "Mountain View", "missing": nil}}
	if got := g.Field("city"); got != "Mountain View" {
		t.Errorf("Field(city) = %q", got)
	}
	if got := g.Field("missing"); got != "" {
		t.Errorf("Field(missing) = %q, want empty", got)
	}
	var nilResult *GeoResult
	if got := nilResult.Field("city"); got != "" {
		t.Errorf("nil Field() = %q, want empty", got)
	}
}
