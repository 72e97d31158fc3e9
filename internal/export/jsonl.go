package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iksnae/geo-trace/internal"
)

// JSONLExporter exports history in JSONL format (one entry per line)
type JSONLExporter struct{}

// Export writes each entry as a single JSON line
func (e *JSONLExporter) Export(entries []internal.HistoryEntry, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", entry.Key(), err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
