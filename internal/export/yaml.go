package export

import (
	"io"

	"github.com/iksnae/geo-trace/internal"
	"gopkg.in/yaml.v3"
)

// YAMLExporter exports history in YAML format
type YAMLExporter struct{}

// Export writes entries as a YAML sequence
func (e *YAMLExporter) Export(entries []internal.HistoryEntry, w io.Writer) error {
	if entries == nil {
		entries = []internal.HistoryEntry{}
	}
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()

	return enc.Encode(entries)
}

// Extension returns the file extension for this format
func (e *YAMLExporter) Extension() string {
	return "yaml"
}
