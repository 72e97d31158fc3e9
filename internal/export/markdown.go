package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iksnae/geo-trace/internal"
)

// MarkdownExporter exports history as a Markdown table
type MarkdownExporter struct{}

// Export writes a heading and one table row per entry
func (e *MarkdownExporter) Export(entries []internal.HistoryEntry, w io.Writer) error {
	_, _ = fmt.Fprintf(w, "# Search History\n\n")
	_, _ = fmt.Fprintf(w, "**Entries:** %d\n\n", len(entries))

	if len(entries) == 0 {
		_, _ = fmt.Fprintf(w, "_No searches yet._\n")
		return nil
	}

	_, _ = fmt.Fprintf(w, "| When | Query | Location | Synced |\n")
	_, _ = fmt.Fprintf(w, "|---|---|---|---|\n")

	for _, entry := range entries {
		synced := "yes"
		if !entry.Deletable() {
			synced = "local"
		}
		_, err := fmt.Fprintf(w, "| %s | %s | %s | %s |\n",
			entry.Time().UTC().Format(time.RFC3339),
			escapeCell(entry.SearchedIP),
			escapeCell(location(entry.GeolocationData)),
			synced,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// location joins the city, region and country fields that are present
func location(geo map[string]interface{}) string {
	var parts []string
	for _, key := range []string{"city", "region", "country"} {
		if v, ok := geo[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

// escapeCell keeps a value inside its table cell
func escapeCell(text string) string {
	text = strings.ReplaceAll(text, "|", "\\|")
	return strings.ReplaceAll(text, "\n", " ")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
