package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// Options are the global flags every command sees.
type Options struct {
	Profile string
	JSON    bool
	Stderr  io.Writer
}

// Opener builds the App once flags are parsed.
type Opener func(ctx context.Context, opts Options) (*App, error)

type state struct {
	open Opener
	opts Options
	app  *App
}

func (s *state) App() *App {
	return s.app
}

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, open Opener, args []string, stdout, stderr io.Writer) int {
	st := &state{open: open, opts: Options{Stderr: stderr}}
	root := newRootCommand(st)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetIn(stdin)

	err := root.ExecuteContext(ctx)

	if st.app != nil {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if closeErr := st.app.Close(closeCtx); closeErr != nil {
			fmt.Fprintf(stderr, "Warning: %v\n", closeErr)
		}
		cancel()
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand(st *state) *cobra.Command {
	root := &cobra.Command{
		Use:   "deadlines",
		Short: "Track assignment and portal deadlines from the command line.",
		Long: `deadlines talks to the deadlines backend: sign in once, then list and edit
deadlines, manage the portals they are synced from, tune notifications and pull
deadlines out of WhatsApp chats.

Start with 'deadlines login'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if st.app != nil || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			app, err := st.open(cmd.Context(), st.opts)
			if err != nil {
				return err
			}
			st.app = app
			return nil
		},
	}

	root.PersistentFlags().StringVar(&st.opts.Profile, "profile", "", "token profile to use (default TOKEN_PROFILE or \"default\")")
	root.PersistentFlags().BoolVar(&st.opts.JSON, "json", false, "print raw JSON instead of tables")

	root.AddCommand(
		newLoginCmd(st),
		newRegisterCmd(st),
		newLogoutCmd(st),
		newWhoamiCmd(st),
		newStatusCmd(st),
		newDeadlinesCmd(st),
		newPortalsCmd(st),
		newNotificationsCmd(st),
		newWhatsAppCmd(st),
		newHealthCmd(st),
	)
	return root
}
