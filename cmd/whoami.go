package cmd

import (
	"fmt"

	"github.com/iksnae/geo-trace/internal"
	"github.com/spf13/cobra"
)

// whoamiCmd represents the whoami command
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		a.session.Initialize(cmd.Context())
		snap := a.session.Snapshot()
		if snap.Status != internal.StatusAuthenticated || snap.User == nil {
			internal.PrintInfo(a.out, "Not signed in")
			return nil
		}

		_, _ = fmt.Fprintln(a.out, headerStyle.Render(snap.User.Name()))
		_, _ = fmt.Fprintf(a.out, "  %s %s\n", titleStyle.Render("email:"), snap.User.Email)
		_, _ = fmt.Fprintf(a.out, "  %s %s\n", titleStyle.Render("id:"), keyStyle.Render(snap.User.ID))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
