package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fastygo/deadlines/domain"
	"github.com/fastygo/deadlines/internal/apiclient"
)

func newDeadlinesCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadlines",
		Aliases: []string{"dl"},
		Short:   "List and edit deadlines",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return requireSession(st)
		},
	}
	cmd.AddCommand(
		newDeadlinesListCmd(st),
		newDeadlinesGetCmd(st),
		newDeadlinesCreateCmd(st),
		newDeadlinesUpdateCmd(st),
		newDeadlinesCompleteCmd(st),
		newDeadlinesDeleteCmd(st),
	)
	return cmd
}

func newDeadlinesListCmd(st *state) *cobra.Command {
	var filter apiclient.DeadlineFilter
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List deadlines",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := st.App().API.GetDeadlines(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if st.opts.JSON {
				return printJSON(cmd.OutOrStdout(), items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No deadlines")
				return nil
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "TITLE", "DUE", "PRIORITY", "STATUS")
			for _, d := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Title, formatTime(d.DueDate), orDash(d.Priority), orDash(d.Status))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.Status, "status", "", "only deadlines with this status (pending, completed)")
	cmd.Flags().StringVar(&filter.Priority, "priority", "", "only deadlines with this priority")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum number of deadlines")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "skip this many deadlines")
	return cmd
}

func newDeadlinesGetCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one deadline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := st.App().API.GetDeadline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printDeadline(st, cmd, d)
		},
	}
}

type deadlineFlags struct {
	title       string
	due         string
	priority    string
	description string
	status      string
}

func (f *deadlineFlags) bind(cmd *cobra.Command, withStatus bool) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "deadline title")
	cmd.Flags().StringVarP(&f.due, "due", "d", "", "due date (2006-01-02, \"2006-01-02 15:04\" or RFC 3339)")
	cmd.Flags().StringVarP(&f.priority, "priority", "p", "", "low, medium, high or urgent")
	cmd.Flags().StringVar(&f.description, "description", "", "free-form description")
	if withStatus {
		cmd.Flags().StringVar(&f.status, "status", "", "pending or completed")
	}
}

// input builds a payload from the flags the user actually set.
func (f *deadlineFlags) input(cmd *cobra.Command) (domain.DeadlineInput, error) {
	var in domain.DeadlineInput
	flags := cmd.Flags()
	if flags.Changed("title") {
		in.Title = &f.title
	}
	if flags.Changed("description") {
		in.Description = &f.description
	}
	if flags.Changed("priority") {
		p := strings.ToLower(f.priority)
		if !validPriority(p) {
			return in, fmt.Errorf("invalid priority %q", f.priority)
		}
		in.Priority = &p
	}
	if flags.Changed("status") {
		in.Status = &f.status
	}
	if flags.Changed("due") {
		due, err := parseDue(f.due)
		if err != nil {
			return in, err
		}
		in.DueDate = &due
	}
	return in, nil
}

func validPriority(p string) bool {
	switch p {
	case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh, domain.PriorityUrgent:
		return true
	}
	return false
}

func newDeadlinesCreateCmd(st *state) *cobra.Command {
	var flags deadlineFlags
	cmd := &cobra.Command{
		Use:     "create",
		Aliases: []string{"add"},
		Short:   "Create a deadline",
		Example: `  deadlines deadlines create --title "Thesis draft" --due 2026-11-30 --priority high`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.input(cmd)
			if err != nil {
				return err
			}
			d, err := st.App().API.CreateDeadline(cmd.Context(), in)
			if err != nil {
				return err
			}
			if st.opts.JSON {
				return printJSON(cmd.OutOrStdout(), d)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", d.Title, d.ID)
			return nil
		},
	}
	flags.bind(cmd, false)
	return cmd
}

func newDeadlinesUpdateCmd(st *state) *cobra.Command {
	var flags deadlineFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a deadline",
		Long:  `Only the flags you pass are sent; everything else is left as it is.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.input(cmd)
			if err != nil {
				return err
			}
			if in == (domain.DeadlineInput{}) {
				return fmt.Errorf("nothing to update, pass at least one flag")
			}
			d, err := st.App().API.UpdateDeadline(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			if st.opts.JSON {
				return printJSON(cmd.OutOrStdout(), d)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", args[0])
			return nil
		},
	}
	flags.bind(cmd, true)
	return cmd
}

func newDeadlinesCompleteCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:     "complete <id>",
		Aliases: []string{"done"},
		Short:   "Mark a deadline as completed",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := "completed"
			if _, err := st.App().API.UpdateDeadline(cmd.Context(), args[0], domain.DeadlineInput{Status: &status}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Completed %s\n", args[0])
			return nil
		},
	}
}

func newDeadlinesDeleteCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a deadline",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.App().API.DeleteDeadline(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func printDeadline(st *state, cmd *cobra.Command, d *domain.Deadline) error {
	if st.opts.JSON {
		return printJSON(cmd.OutOrStdout(), d)
	}
	tw := newTable(cmd.OutOrStdout(), "FIELD", "VALUE")
	fmt.Fprintf(tw, "id\t%s\n", d.ID)
	fmt.Fprintf(tw, "title\t%s\n", d.Title)
	due := formatTime(d.DueDate)
	if !d.IsCompleted() {
		due += " (" + until(d.DueDate) + ")"
	}
	fmt.Fprintf(tw, "due\t%s\n", due)
	fmt.Fprintf(tw, "priority\t%s\n", orDash(d.Priority))
	fmt.Fprintf(tw, "status\t%s\n", orDash(d.Status))
	fmt.Fprintf(tw, "source\t%s\n", orDash(d.Source))
	if d.Description != "" {
		fmt.Fprintf(tw, "description\t%s\n", d.Description)
	}
	if d.IsCompleted() {
		fmt.Fprintf(tw, "completed\t%s\n", formatTimePtr(d.CompletedAt))
	}
	return tw.Flush()
}

func until(t time.Time) string {
	d := time.Until(t).Round(time.Hour)
	switch {
	case d < 0:
		return "overdue"
	case d < 24*time.Hour:
		return fmt.Sprintf("in %dh", int(d.Hours()))
	default:
		return fmt.Sprintf("in %dd", int(d.Hours()/24))
	}
}
