package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fastygo/deadlines/domain"
)

func newLoginCmd(st *state) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the deadlines backend",
		Long:  `Signs in with email and password and stores the session token for later commands.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd)
			email, err := p.valueOr(email, "Email: ")
			if err != nil {
				return err
			}
			password, err := p.password("Password: ")
			if err != nil {
				return err
			}

			user, err := st.App().Session.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("sign in failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", user.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func newRegisterCmd(st *state) *cobra.Command {
	var email, fullName string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Creates an account. Depending on the backend's email verification policy you are
either signed in right away or asked to confirm your email first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd)
			email, err := p.valueOr(email, "Email: ")
			if err != nil {
				return err
			}
			fullName, err := p.valueOr(fullName, "Full name: ")
			if err != nil {
				return err
			}
			password, err := p.password("Password: ")
			if err != nil {
				return err
			}

			res, err := st.App().Session.Register(cmd.Context(), email, password, fullName)
			if err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			out := cmd.OutOrStdout()
			if res.SessionEstablished {
				fmt.Fprintf(out, "Account created, signed in as %s\n", res.User.DisplayName())
				return nil
			}
			msg := res.Message
			if msg == "" {
				msg = "Confirm your email, then run `deadlines login`."
			}
			fmt.Fprintf(out, "Account created. %s\n", msg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&fullName, "name", "n", "", "full name")
	return cmd
}

func newLogoutCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.App().Session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := st.App()
			if err := app.Session.Bootstrap(cmd.Context()); err != nil && app.Session.User() == nil {
				return err
			}
			user := app.Session.User()
			if user == nil {
				return errors.New("not signed in, run `deadlines login`")
			}
			if st.opts.JSON {
				return printJSON(cmd.OutOrStdout(), user)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s <%s>\n", user.DisplayName(), user.Email)
			fmt.Fprintf(out, "id: %s\n", user.ID)
			return nil
		},
	}
}

func newStatusCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local session state without contacting the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := st.App()
			snap := app.Store.Snapshot()
			storageState := "ok"
			if err := app.StorageHealth(cmd.Context()); err != nil {
				storageState = err.Error()
			}
			if st.opts.JSON {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"backend":        app.BackendURL,
					"storage":        app.StorageName,
					"storage_health": storageState,
					"signed_in":      snap.LoggedIn(),
					"user":           snap.User,
				})
			}
			tw := newTable(cmd.OutOrStdout(), "KEY", "VALUE")
			fmt.Fprintf(tw, "backend\t%s\n", app.BackendURL)
			fmt.Fprintf(tw, "storage\t%s (%s)\n", orDash(app.StorageName), storageState)
			fmt.Fprintf(tw, "signed in\t%t\n", snap.LoggedIn())
			if snap.User != nil {
				fmt.Fprintf(tw, "user\t%s\n", snap.User.DisplayName())
			}
			return tw.Flush()
		},
	}
}

// requireSession fails fast when no token is stored.
func requireSession(st *state) error {
	if _, ok := st.App().Store.Token(); !ok {
		return fmt.Errorf("%w: run `deadlines login`", domain.ErrNotAuthenticated)
	}
	return nil
}
