package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := st.App()
			started := time.Now()
			payload, err := app.API.HealthCheck(cmd.Context())
			if err != nil {
				return fmt.Errorf("backend %s: %w", app.BackendURL, err)
			}
			if st.opts.JSON {
				return printJSON(cmd.OutOrStdout(), payload)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is up (%s)\n", app.BackendURL, time.Since(started).Round(time.Millisecond))
			keys := make([]string, 0, len(payload))
			for k := range payload {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			tw := newTable(cmd.OutOrStdout(), "KEY", "VALUE")
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%v\n", k, payload[k])
			}
			return tw.Flush()
		},
	}
}
