package export

import (
	"bytes"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/iksnae/geo-trace/internal"
)

func TestYAMLExporter_Export(t *testing.T) {
	entries := []internal.HistoryEntry{
		internal.CreateTestEntry("h2", "8.8.8.8", 2000),
		internal.CreateTestEntry("", "1.1.1.1", 1000),
	}

	var buf bytes.Buffer
	if err := (&YAMLExporter{}).Export(entries, &buf); err != nil {
		t.Fatalf("YAMLExporter.Export() error = %v", err)
	}

	var decoded []internal.HistoryEntry
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d entries, want 2", len(decoded))
	}
	if decoded[0].ID != "h2" || decoded[1].ID != "" {
		t.Errorf("decoded ids = %q, %q", decoded[0].ID, decoded[1].ID)
	}
	if decoded[1].GeolocationData["city"] != "Test City" {
		t.Errorf("geolocation data lost: %v", decoded[1].GeolocationData)
	}
	if !strings.Contains(buf.String(), "searched_ip: 8.8.8.8") {
		t.Errorf("unexpected YAML field names:\n%s", buf.String())
	}
}

func TestYAMLExporter_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := (&YAMLExporter{}).Export(nil, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty export = %q, want []", buf.String())
	}
}
