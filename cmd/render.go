package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/geo-trace/internal"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	ipStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	placeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// geoFields are shown first, in this order; other fields follow sorted
var geoFields = []string{"city", "region", "country", "postal", "loc", "org", "timezone"}

// formatWhen renders t relative to now
func formatWhen(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < 0:
		return t.Format("2006-01-02 15:04")
	case diff < 24*time.Hour && t.Day() == now.Day():
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

// placeOf joins city, region and country
func placeOf(geo map[string]interface{}) string {
	var parts []string
	for _, key := range []string{"city", "region", "country"} {
		if v, ok := geo[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

func renderGeo(w io.Writer, title string, result *internal.GeoResult) {
	_, _ = fmt.Fprintln(w, headerStyle.Render(title))
	_, _ = fmt.Fprintf(w, "  %s %s\n", titleStyle.Render("IP:"), ipStyle.Render(result.IP))

	seen := make(map[string]bool, len(geoFields))
	for _, key := range geoFields {
		seen[key] = true
		if v := result.Field(key); v != "" {
			_, _ = fmt.Fprintf(w, "  %s %s\n", titleStyle.Render(key+":"), v)
		}
	}

	var rest []string
	for key := range result.Geo {
		if !seen[key] && key != "ip" {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		_, _ = fmt.Fprintf(w, "  %s %v\n", titleStyle.Render(key+":"), result.Geo[key])
	}
	_, _ = fmt.Fprintln(w)
}

func renderHistory(w io.Writer, entries []internal.HistoryEntry, now time.Time) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, headerStyle.Render("📋 No searches yet"))
		return
	}

	_, _ = fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("📋 %d search(es)", len(entries))))
	_, _ = fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, titleStyle.Render("Key")+"\t"+titleStyle.Render("Query")+"\t"+titleStyle.Render("Location")+"\t"+titleStyle.Render("When")+"\t")
	_, _ = fmt.Fprintln(tw, strings.Repeat("─", 90))

	for _, entry := range entries {
		place := placeOf(entry.GeolocationData)
		if place == "" {
			place = "-"
		}
		if len(place) > 40 {
			place = place[:37] + "..."
		}
		key := keyStyle.Render(entry.Key())
		if !entry.Deletable() {
			key += keyStyle.Render(" (local)")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n",
			key,
			ipStyle.Render(entry.SearchedIP),
			placeStyle.Render(place),
			dateStyle.Render(formatWhen(entry.Time(), now)),
		)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintln(w)
}
