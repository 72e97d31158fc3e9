package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/geo-trace/internal"
	"github.com/spf13/cobra"
)

var (
	verbose     bool
	configPath  string
	apiBaseURL  string
	storagePath string
	version     string = "dev"
	commit      string = "unknown"
	date        string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "geo-trace",
	Short: "Look up where IP addresses and domains are located",
	Long: `A terminal client for the Geo Trace IP-geolocation service.

Sign in, see where your own IP is located, look up any IPv4 address or
domain, and review a deduplicated history of past lookups. History is kept
in sync between the server and a local cache, so it stays available when the
service is unreachable.

Quick Start:
  geo-trace signup                       # Create an account
  geo-trace login                        # Sign in
  geo-trace current                      # Your IP, location and history
  geo-trace lookup 8.8.8.8               # Look up an address or domain
  geo-trace search                       # Interactive lookup
  geo-trace history export --format md   # Export your history`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.geo-trace/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api", "", "API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&storagePath, "storage", "", "Path to the local state database (overrides config)")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
