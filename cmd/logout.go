package cmd

import (
	"errors"

	"github.com/iksnae/geo-trace/internal"
	"github.com/spf13/cobra"
)

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	Long: `Sign out on the server and locally. The local sign-out always happens,
even when the server cannot be reached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.session.Logout(cmd.Context())
		var netErr *internal.NetworkError
		if errors.As(err, &netErr) {
			internal.PrintWarning(a.out, "Could not reach the server; signed out locally")
			return nil
		}
		internal.PrintSuccess(a.out, "Signed out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
