package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/iksnae/geo-trace/internal"
	"github.com/iksnae/geo-trace/internal/export"
	"github.com/spf13/cobra"
)

var (
	exportFormat  string
	exportOutput  string
	exportOffline bool
)

// historyExportCmd represents the history export command
var historyExportCmd = &cobra.Command{
	Use:   "export [key...]",
	Short: "Export your search history",
	Long: `Export your search history as JSON, JSONL, YAML or a Markdown table.
Without keys the whole history is exported. Output goes to stdout unless
--out names a file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(exportFormat)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if _, err := a.requireUser(ctx); err != nil {
			return err
		}
		entries, err := a.loadHistory(ctx, exportOffline)
		if err != nil {
			return err
		}
		entries = selectEntries(entries, args)

		var w io.Writer = a.out
		if exportOutput != "" {
			if err := os.MkdirAll(filepath.Dir(exportOutput), 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			file, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", exportOutput, err)
			}
			defer func() {
				if err := file.Close(); err != nil {
					internal.LogWarn("Failed to close file %s: %v", exportOutput, err)
				}
			}()
			w = file
		}

		if err := exporter.Export(entries, w); err != nil {
			return fmt.Errorf("failed to export history: %w", err)
		}
		if exportOutput != "" {
			internal.PrintSuccess(a.out, fmt.Sprintf("Exported %d entries to %s", len(entries), exportOutput))
		}
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyExportCmd)
	historyExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Export format (json, jsonl, yaml, md)")
	historyExportCmd.Flags().StringVarP(&exportOutput, "out", "o", "", "Output file (default stdout)")
	historyExportCmd.Flags().BoolVar(&exportOffline, "offline", false, "Export the cached history without contacting the server")
}
