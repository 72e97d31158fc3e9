package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iksnae/geo-trace/internal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// currentCmd represents the current command
var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show your own IP, its location and your search history",
	Long: `Show the location of your own IP address together with your search
history. Both are fetched at the same time; when the history cannot be
loaded the locally cached copy is shown instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		user, err := a.requireUser(ctx)
		if err != nil {
			return err
		}

		var (
			current    *internal.GeoResult
			entries    []internal.HistoryEntry
			historyErr error
		)
		// the two fetches write disjoint state; one failing does not cancel the other
		var g errgroup.Group
		g.Go(func() error {
			var err error
			current, err = a.geo.Current(ctx)
			return err
		})
		g.Go(func() error {
			entries, historyErr = a.refreshHistory(ctx)
			return nil
		})
		err = internal.ShowProgress(ctx, "Locating you", func(context.Context) error { return g.Wait() })
		if errors.Is(historyErr, internal.ErrNotSignedIn) {
			return historyErr
		}
		if err != nil {
			if internal.IsUnauthorized(err) {
				return a.handleUnauthorized(err)
			}
			return fmt.Errorf("failed to fetch current IP: %w", err)
		}

		_, _ = fmt.Fprintf(a.out, "Welcome, %s\n\n", user.Name())
		renderGeo(a.out, "📍 Your location", current)
		renderHistory(a.out, entries, time.Now())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(currentCmd)
}
