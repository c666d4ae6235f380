package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fastygo/deadlines/domain"
)

func newWhatsAppCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "whatsapp",
		Aliases: []string{"wa"},
		Short:   "Extract deadlines from WhatsApp messages",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return requireSession(st)
		},
	}
	cmd.AddCommand(newWhatsAppParseCmd(st), newWhatsAppUploadCmd(st))
	return cmd
}

type extractFlags struct {
	save    bool
	minConf float64
}

func (f *extractFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.save, "save", false, "create a deadline for every extracted item")
	cmd.Flags().Float64Var(&f.minConf, "min-confidence", 0, "skip items below this confidence when saving")
}

func newWhatsAppParseCmd(st *state) *cobra.Command {
	var sender string
	var ef extractFlags
	cmd := &cobra.Command{
		Use:   "parse <message...>",
		Short: "Find deadlines in a single message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := st.App().API.ParseWhatsAppMessage(cmd.Context(), domain.WhatsAppMessage{
				Message: strings.Join(args, " "),
				Sender:  sender,
			})
			if err != nil {
				return err
			}
			return reportExtraction(st, cmd, res, ef)
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "who sent the message")
	ef.bind(cmd)
	return cmd
}

func newWhatsAppUploadCmd(st *state) *cobra.Command {
	var ef extractFlags
	cmd := &cobra.Command{
		Use:   "upload <chat.txt>",
		Short: "Find deadlines in an exported chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := st.App().API.UploadWhatsAppChat(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}
			return reportExtraction(st, cmd, res, ef)
		},
	}
	ef.bind(cmd)
	return cmd
}

func reportExtraction(st *state, cmd *cobra.Command, res *domain.ParseResult, ef extractFlags) error {
	out := cmd.OutOrStdout()
	if st.opts.JSON && !ef.save {
		return printJSON(out, res)
	}
	if !st.opts.JSON {
		if len(res.Deadlines) == 0 {
			fmt.Fprintln(out, "No deadlines found")
			return nil
		}
		tw := newTable(out, "TITLE", "DUE", "PRIORITY", "CONFIDENCE")
		for _, d := range res.Deadlines {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\n", d.Title, formatTime(d.DueDate), orDash(d.Priority), d.Confidence*100)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if !ef.save {
		return nil
	}

	var created []*domain.Deadline
	for _, d := range res.Deadlines {
		if d.Confidence < ef.minConf {
			continue
		}
		saved, err := st.App().API.CreateDeadline(cmd.Context(), d.AsInput())
		if err != nil {
			return fmt.Errorf("save %q: %w", d.Title, err)
		}
		created = append(created, saved)
	}
	if st.opts.JSON {
		return printJSON(out, created)
	}
	fmt.Fprintf(out, "Saved %d deadline(s)\n", len(created))
	return nil
}
