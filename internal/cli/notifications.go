package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fastygo/deadlines/domain"
)

func newNotificationsCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notify"},
		Short:   "Show reminders and change how you get them",
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
			Short:   "List sent and scheduled reminders",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				items, err := st.App().API.GetNotifications(cmd.Context())
				if err != nil {
					return err
				}
				if st.opts.JSON {
					return printJSON(cmd.OutOrStdout(), items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No notifications")
					return nil
				}
				tw := newTable(cmd.OutOrStdout(), "ID", "CHANNEL", "STATUS", "SEND AT", "MESSAGE")
				for _, n := range items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.ID, n.Channel, orDash(n.Status), formatTimePtr(n.SendAt), n.Message)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "prefs",
			Short: "Show notification preferences",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				prefs, err := st.App().API.GetNotificationPreferences(cmd.Context())
				if err != nil {
					return err
				}
				return printPrefs(st, cmd, prefs)
			},
		},
		newSetPrefsCmd(st),
	)
	return cmd
}

func newSetPrefsCmd(st *state) *cobra.Command {
	var next domain.NotificationPreferences
	cmd := &cobra.Command{
		Use:     "set-prefs",
		Short:   "Change notification preferences",
		Long:    `Reads the current preferences, applies the flags you pass and saves the result.`,
		Example: `  deadlines notifications set-prefs --whatsapp --phone +15551234567 --reminder-hours 24,2`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api := st.App().API
			prefs, err := api.GetNotificationPreferences(cmd.Context())
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if !flags.Changed("email") && !flags.Changed("sms") && !flags.Changed("whatsapp") &&
				!flags.Changed("push") && !flags.Changed("phone") && !flags.Changed("reminder-hours") &&
				!flags.Changed("quiet-start") && !flags.Changed("quiet-end") && !flags.Changed("timezone") {
				return fmt.Errorf("nothing to change, pass at least one flag")
			}
			if flags.Changed("email") {
				prefs.EmailEnabled = next.EmailEnabled
			}
			if flags.Changed("sms") {
				prefs.SMSEnabled = next.SMSEnabled
			}
			if flags.Changed("whatsapp") {
				prefs.WhatsAppEnabled = next.WhatsAppEnabled
			}
			if flags.Changed("push") {
				prefs.PushEnabled = next.PushEnabled
			}
			if flags.Changed("phone") {
				prefs.PhoneNumber = next.PhoneNumber
			}
			if flags.Changed("reminder-hours") {
				prefs.ReminderHours = next.ReminderHours
			}
			if flags.Changed("quiet-start") {
				prefs.QuietHoursStart = next.QuietHoursStart
			}
			if flags.Changed("quiet-end") {
				prefs.QuietHoursEnd = next.QuietHoursEnd
			}
			if flags.Changed("timezone") {
				prefs.Timezone = next.Timezone
			}
			if (prefs.SMSEnabled || prefs.WhatsAppEnabled) && prefs.PhoneNumber == "" {
				return fmt.Errorf("sms and whatsapp reminders need --phone")
			}

			saved, err := api.UpdateNotificationPreferences(cmd.Context(), *prefs)
			if err != nil {
				return err
			}
			return printPrefs(st, cmd, saved)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&next.EmailEnabled, "email", false, "email reminders")
	f.BoolVar(&next.SMSEnabled, "sms", false, "SMS reminders")
	f.BoolVar(&next.WhatsAppEnabled, "whatsapp", false, "WhatsApp reminders")
	f.BoolVar(&next.PushEnabled, "push", false, "push reminders")
	f.StringVar(&next.PhoneNumber, "phone", "", "phone number for SMS and WhatsApp")
	f.IntSliceVar(&next.ReminderHours, "reminder-hours", nil, "hours before the due date to remind, e.g. 24,2")
	f.StringVar(&next.QuietHoursStart, "quiet-start", "", "start of quiet hours, HH:MM")
	f.StringVar(&next.QuietHoursEnd, "quiet-end", "", "end of quiet hours, HH:MM")
	f.StringVar(&next.Timezone, "timezone", "", "IANA timezone, e.g. Europe/Berlin")
	return cmd
}

func printPrefs(st *state, cmd *cobra.Command, p *domain.NotificationPreferences) error {
	if st.opts.JSON {
		return printJSON(cmd.OutOrStdout(), p)
	}
	hours := make([]string, 0, len(p.ReminderHours))
	for _, h := range p.ReminderHours {
		hours = append(hours, fmt.Sprintf("%dh", h))
	}
	quiet := "-"
	if p.QuietHoursStart != "" || p.QuietHoursEnd != "" {
		quiet = orDash(p.QuietHoursStart) + " to " + orDash(p.QuietHoursEnd)
	}
	tw := newTable(cmd.OutOrStdout(), "SETTING", "VALUE")
	fmt.Fprintf(tw, "email\t%t\n", p.EmailEnabled)
	fmt.Fprintf(tw, "sms\t%t\n", p.SMSEnabled)
	fmt.Fprintf(tw, "whatsapp\t%t\n", p.WhatsAppEnabled)
	fmt.Fprintf(tw, "push\t%t\n", p.PushEnabled)
	fmt.Fprintf(tw, "phone\t%s\n", orDash(p.PhoneNumber))
	fmt.Fprintf(tw, "reminders\t%s\n", orDash(strings.Join(hours, ", ")))
	fmt.Fprintf(tw, "quiet hours\t%s\n", quiet)
	fmt.Fprintf(tw, "timezone\t%s\n", orDash(p.Timezone))
	return tw.Flush()
}
