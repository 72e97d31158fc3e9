package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iksnae/geo-trace/internal"
	"github.com/spf13/cobra"
)

// lookupCmd represents the lookup command
var lookupCmd = &cobra.Command{
	Use:   "lookup <ip-or-domain>",
	Short: "Look up where an IPv4 address or domain is located",
	Long: `Look up an IPv4 address (e.g. 8.8.8.8) or a domain (e.g. example.com).
IPv6 addresses, URLs and ports are not accepted.

The lookup is added to your history. When the updated history cannot be
loaded from the server, the lookup is kept locally until the next sync.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if _, err := internal.ValidateLookup(args[0]); err != nil {
			return err
		}
		if _, err := a.requireUser(ctx); err != nil {
			return err
		}

		var (
			result  *internal.GeoResult
			entries []internal.HistoryEntry
		)
		err = internal.ShowProgress(ctx, "Looking up "+strings.TrimSpace(args[0]), func(ctx context.Context) error {
			var err error
			result, entries, err = a.lookup(ctx, args[0])
			return err
		})
		if err != nil {
			return err
		}

		renderGeo(a.out, "📍 "+result.IP, result)
		renderHistory(a.out, entries, time.Now())
		return nil
	},
}

// lookup geolocates input and reconciles the history afterwards. When the
// history cannot be fetched the lookup is recorded locally instead.
func (a *app) lookup(ctx context.Context, input string) (*internal.GeoResult, []internal.HistoryEntry, error) {
	result, err := a.geo.Lookup(ctx, input)
	if err != nil {
		var verr *internal.ValidationError
		switch {
		case errors.As(err, &verr):
			return nil, nil, err
		case internal.IsUnauthorized(err):
			return nil, nil, a.handleUnauthorized(err)
		default:
			return nil, nil, fmt.Errorf("lookup failed: %w", err)
		}
	}

	entries, err := a.refreshHistory(ctx)
	switch {
	case err == nil:
		return result, entries, nil
	case errors.Is(err, internal.ErrNotSignedIn):
		return nil, nil, err
	}

	entries, err = a.history.Record(strings.TrimSpace(input), result)
	if err != nil {
		a.warn(fmt.Sprintf("Lookup could not be saved locally: %v", err))
	}
	return result, entries, nil
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}
