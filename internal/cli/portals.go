package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fastygo/deadlines/domain"
)

func newPortalsCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portals",
		Short: "Manage the portals deadlines are synced from",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return requireSession(st)
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List connected portals",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				portals, err := st.App().API.GetPortals(cmd.Context())
				if err != nil {
					return err
				}
				if st.opts.JSON {
					return printJSON(cmd.OutOrStdout(), portals)
				}
				if len(portals) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No portals")
					return nil
				}
				tw := newTable(cmd.OutOrStdout(), "ID", "NAME", "TYPE", "ACTIVE", "LAST SYNC")
				for _, p := range portals {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", p.ID, p.Name, p.PortalType, p.IsActive, formatTimePtr(p.LastSyncedAt))
				}
				return tw.Flush()
			},
		},
		newPortalsAddCmd(st),
		&cobra.Command{
			Use:   "sync <id>",
			Short: "Ask the backend to poll a portal now",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				res, err := st.App().API.SyncPortal(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if st.opts.JSON {
					return printJSON(cmd.OutOrStdout(), res)
				}
				msg := res.Message
				if msg == "" {
					msg = "Sync finished"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d found, %d new\n", msg, res.DeadlinesSeen, res.DeadlinesNew)
				return nil
			},
		},
		&cobra.Command{
			Use:     "delete <id>",
			Aliases: []string{"rm"},
			Short:   "Disconnect a portal",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := st.App().API.DeletePortal(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted portal %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func newPortalsAddCmd(st *state) *cobra.Command {
	var portal domain.Portal
	var creds map[string]string
	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Connect a portal",
		Example: `  deadlines portals add --name "Uni LMS" --type moodle --url https://lms.example.edu --cred token=abc`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			portal.IsActive = true
			if len(creds) > 0 {
				portal.Credentials = creds
			}
			created, err := st.App().API.CreatePortal(cmd.Context(), portal)
			if err != nil {
				return err
			}
			if st.opts.JSON {
				return printJSON(cmd.OutOrStdout(), created)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added portal %s (%s)\n", created.Name, created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&portal.Name, "name", "", "display name")
	cmd.Flags().StringVar(&portal.PortalType, "type", "", "portal type, e.g. github, jira, moodle")
	cmd.Flags().StringVar(&portal.BaseURL, "url", "", "portal base URL")
	cmd.Flags().StringToStringVar(&creds, "cred", nil, "credential key=value, repeatable")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
