package cmd

import (
	"fmt"

	"github.com/iksnae/geo-trace/internal"
	"github.com/spf13/cobra"
)

var (
	healthcheckDetails bool
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check configuration, local storage and API reachability",
	Long: `Check the health of geo-trace by verifying:
  • Configuration loading
  • Local state database access
  • API reachability
  • Session state

This command is useful for debugging connection and sign-in issues.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, sectionStyle.Render("🔍 Geo Trace Health Check"))
		_, _ = fmt.Fprintln(out)

		// Step 1: Configuration
		_, _ = fmt.Fprintln(out, infoStyle.Render("Step 1: Loading configuration..."))
		cfg, err := loadConfig()
		if err != nil {
			_, _ = fmt.Fprintln(out, errorStyle.Render("❌ Failed to load configuration:"), err)
			return err
		}
		_, _ = fmt.Fprintln(out, successStyle.Render("✅ Configuration loaded"))
		if healthcheckDetails {
			_, _ = fmt.Fprintf(out, "   API: %s\n", cfg.APIRoot())
			_, _ = fmt.Fprintf(out, "   Storage: %s\n", cfg.StoragePath)
			_, _ = fmt.Fprintf(out, "   Request timeout: %s\n", cfg.RequestTimeout)
			_, _ = fmt.Fprintf(out, "   Debounce delay: %s\n", cfg.DebounceDelay)
		}
		_, _ = fmt.Fprintln(out)

		// Step 2: Local storage
		_, _ = fmt.Fprintln(out, infoStyle.Render("Step 2: Opening local storage..."))
		a, err := newApp(cmd)
		if err != nil {
			_, _ = fmt.Fprintln(out, errorStyle.Render("❌ Failed to open local storage:"), err)
			return err
		}
		defer a.Close()
		_, _ = fmt.Fprintln(out, successStyle.Render("✅ Local storage available"))
		if keys, err := a.store.Keys("history:%"); err == nil {
			_, _ = fmt.Fprintf(out, "   Cached histories: %d\n", len(keys))
			if healthcheckDetails {
				for _, k := range keys {
					_, _ = fmt.Fprintf(out, "   • %s\n", k)
				}
			}
		} else {
			_, _ = fmt.Fprintln(out, warningStyle.Render("⚠️  Could not list cached histories:"), err)
		}
		_, _ = fmt.Fprintln(out)

		// Step 3: API
		_, _ = fmt.Fprintln(out, infoStyle.Render("Step 3: Contacting the API..."))
		ctx := cmd.Context()
		apiOK := a.csrf.FetchToken(ctx) != ""
		if apiOK {
			_, _ = fmt.Fprintln(out, successStyle.Render("✅ API reachable"))
		} else {
			_, _ = fmt.Fprintln(out, errorStyle.Render("❌ API not reachable at "+cfg.APIRoot()))
		}
		_, _ = fmt.Fprintln(out)

		// Step 4: Session
		_, _ = fmt.Fprintln(out, infoStyle.Render("Step 4: Resolving session..."))
		a.session.Initialize(ctx)
		snap := a.session.Snapshot()
		if snap.Status == internal.StatusAuthenticated {
			_, _ = fmt.Fprintln(out, successStyle.Render("✅ Signed in as "+snap.User.Name()))
		} else {
			_, _ = fmt.Fprintln(out, warningStyle.Render("⚠️  Not signed in"))
		}
		_, _ = fmt.Fprintln(out)

		// Summary
		_, _ = fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
		_, _ = fmt.Fprintln(out)
		if !apiOK {
			_, _ = fmt.Fprintln(out, errorStyle.Render("❌ Health check failed"))
			_, _ = fmt.Fprintln(out, "   • Check api_base_url in your config or the --api flag")
			return fmt.Errorf("health check failed: API not reachable")
		}
		_, _ = fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
		_, _ = fmt.Fprintf(out, "   • Session: %s\n", snap.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckDetails, "details", "d", false, "Show detailed diagnostic information")
}
