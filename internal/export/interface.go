package export

import (
	"fmt"
	"io"

	"github.com/iksnae/geo-trace/internal"
)

// Exporter writes a history list in one output format
type Exporter interface {
	Export(entries []internal.HistoryEntry, w io.Writer) error
	Extension() string
}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, jsonl, yaml, md)", format)
	}
}
