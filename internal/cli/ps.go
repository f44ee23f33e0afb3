package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/kthread/internal/mm"
)

func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps <run-id>",
		Short: "Show the task table at the end of a run",
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
			tasks, err := src.ListTaskSnapshot(cmd.Context(), run.ID)
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PID\tNAME\tSTATUS\tPRIO\tTICKS\tELAPSED\tPAGE\tSTACK\tCANARY\tAS")
			for _, ti := range tasks {
				canary := "ok"
				if !ti.CanaryOK {
					canary = "BROKEN"
				}
				as := "-"
				if ti.HasAddressSpace {
					as = "yes"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\t%#08x\t%s\t%s\t%s\n",
					ti.PID, ti.Name, ti.Status, ti.Priority, ti.TicksRemaining,
					humanize.Comma(int64(ti.ElapsedTicks)), ti.PageAddr,
					humanize.IBytes(uint64(ti.StackUsed(mm.PageSize))), canary, as)
			}
			return tw.Flush()
		},
	}
}
