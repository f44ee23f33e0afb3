package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTraceCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "trace <run-id>",
		Short: "Show the context switches of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := openSource(cmd.Context())
			if err != nil {
				return err
			}
			defer src.Close()

			run, err := src.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			events, err := src.ListSwitchEvents(cmd.Context(), run.ID)
			if err != nil {
				return fmt.Errorf("list switches: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (%s, %s): %d switches\n\n", run.ID, run.Scenario, run.Status, len(events))
			if limit > 0 && len(events) > limit {
				events = events[:limit]
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tTICK\tFROM\t\tTO")
			for _, ev := range events {
				fmt.Fprintf(tw, "%d\t%d\t%s (%d)\t->\t%s (%d)\n",
					ev.Seq, ev.Tick, ev.FromName, ev.FromPID, ev.ToName, ev.ToPID)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many switches (0 = all)")
	return cmd
}
