package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iksnae/geo-trace/internal"
	"github.com/spf13/cobra"
)

var (
	historyClearCache bool
	historyOffline    bool
	historyLimit      int
)

// historyCmd groups the history subcommands
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Review and manage your search history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past lookups",
	Long: `List past lookups, most recent first. The server's history is merged
with the local cache; entries marked (local) are only stored on this machine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if _, err := a.requireUser(ctx); err != nil {
			return err
		}

		if historyClearCache {
			if err := a.history.ClearLocal(); err != nil {
				internal.LogWarn("Failed to clear history cache: %v", err)
			} else {
				internal.LogInfo("History cache cleared")
			}
		}

		entries, err := a.loadHistory(ctx, historyOffline)
		if err != nil {
			return err
		}
		if historyLimit > 0 && len(entries) > historyLimit {
			entries = entries[:historyLimit]
		}
		renderHistory(a.out, entries, time.Now())
		if len(entries) > 0 {
			_, _ = fmt.Fprintln(a.out, keyStyle.Render("💡 Tip: use a key (e.g. ")+
				ipStyle.Render(entries[0].Key())+
				keyStyle.Render(") with `geo-trace history show <key>` or `geo-trace history delete <key>`"))
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show the stored location of one past lookup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.requireUser(cmd.Context()); err != nil {
			return err
		}
		for _, entry := range a.history.Entries() {
			if entry.Key() != args[0] {
				continue
			}
			renderGeo(a.out, "📍 "+entry.SearchedIP, &internal.GeoResult{IP: entry.SearchedIP, Geo: entry.GeolocationData})
			_, _ = fmt.Fprintf(a.out, "  %s %s\n", titleStyle.Render("searched:"), entry.Time().Format(time.RFC1123))
			if !entry.Deletable() {
				_, _ = fmt.Fprintf(a.out, "  %s\n", keyStyle.Render("stored locally only"))
			}
			return nil
		}
		return fmt.Errorf("history entry not found: %s (use 'geo-trace history list' to see keys)", args[0])
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <key> [key...]",
	Short: "Delete past lookups from the server",
	Long: `Delete past lookups by key (shown by 'geo-trace history list').
Only lookups saved on the server can be deleted. After deleting, the
server's remaining history replaces the local copy.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if _, err := a.requireUser(ctx); err != nil {
			return err
		}
		// keys may refer to entries the cache has not seen yet
		if _, err := a.refreshHistory(ctx); errors.Is(err, internal.ErrNotSignedIn) {
			return err
		}

		entries, err := a.history.Delete(ctx, args)
		switch {
		case errors.Is(err, internal.ErrNoDeletableItems):
			return fmt.Errorf("nothing to delete: only lookups saved on the server can be deleted")
		case internal.IsUnauthorized(err):
			return a.handleUnauthorized(err)
		case err != nil:
			var perr *internal.PersistenceError
			if !errors.As(err, &perr) {
				return fmt.Errorf("delete failed: %w", err)
			}
			internal.PrintWarning(a.out, fmt.Sprintf("History could not be saved locally: %v", err))
		}

		internal.PrintSuccess(a.out, "History updated")
		renderHistory(a.out, entries, time.Now())
		return nil
	},
}

// loadHistory returns the reconciled list, or the cached one when offline
// or when the server cannot be reached.
func (a *app) loadHistory(ctx context.Context, offline bool) ([]internal.HistoryEntry, error) {
	if offline {
		return a.history.Entries(), nil
	}
	entries, err := a.refreshHistory(ctx)
	if errors.Is(err, internal.ErrNotSignedIn) {
		return nil, err
	}
	return entries, nil
}

// selectEntries keeps the entries whose keys are listed, in list order
func selectEntries(entries []internal.HistoryEntry, keys []string) []internal.HistoryEntry {
	if len(keys) == 0 {
		return entries
	}
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}
	var out []internal.HistoryEntry
	for _, e := range entries {
		if wanted[e.Key()] {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd)

	historyListCmd.Flags().BoolVar(&historyClearCache, "clear-cache", false, "Clear the local history cache before listing")
	historyListCmd.Flags().BoolVar(&historyOffline, "offline", false, "Show the cached history without contacting the server")
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Show at most n entries")
}
