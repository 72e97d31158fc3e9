package cmd

import (
	"fmt"

	"github.com/iksnae/geo-trace/internal"
	"github.com/spf13/cobra"
)

var (
	signupEmail    string
	signupPassword string
	signupName     string
)

// signupCmd represents the signup command
var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create a Geo Trace account",
	Long: `Create an account. The password needs 8+ characters with an uppercase
letter, a lowercase letter, a number and a symbol.

Signing up does not sign you in; run 'geo-trace login' afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		p := newPrompter(cmd.InOrStdin(), a.out)
		name, err := p.ask("Display name", signupName)
		if err != nil {
			return err
		}
		email, err := p.ask("Email", signupEmail)
		if err != nil {
			return err
		}
		password, err := p.askSecret("Password", signupPassword)
		if err != nil {
			return err
		}

		if err := a.session.SignUp(cmd.Context(), email, password, name); err != nil {
			return fmt.Errorf("sign up failed: %w", err)
		}
		internal.PrintSuccess(a.out, "Account created. Run 'geo-trace login' to sign in.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signupCmd)
	signupCmd.Flags().StringVarP(&signupEmail, "email", "e", "", "Account email")
	signupCmd.Flags().StringVarP(&signupPassword, "password", "p", "", "Account password (prompted when omitted)")
	signupCmd.Flags().StringVarP(&signupName, "name", "n", "", "Display name")
}
