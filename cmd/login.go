package cmd

import (
	"fmt"

	"github.com/iksnae/geo-trace/internal"
	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Geo Trace",
	Long: `Sign in with your email and password. Missing values are prompted for;
the password is read without echo.

The access token and session cookie are kept in the local state database,
so later commands stay signed in and refresh the session silently.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		p := newPrompter(cmd.InOrStdin(), a.out)
		email, err := p.ask("Email", loginEmail)
		if err != nil {
			return err
		}
		password, err := p.askSecret("Password", loginPassword)
		if err != nil {
			return err
		}

		user, err := a.session.SignIn(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		internal.PrintSuccess(a.out, fmt.Sprintf("Signed in as %s", user.Name()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password (prompted when omitted)")
}
