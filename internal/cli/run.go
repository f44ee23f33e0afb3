package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/kthread/internal/store"
	"github.com/me/kthread/internal/workload"
	"github.com/me/kthread/pkg/model"
)

func newRunCmd() *cobra.Command {
	var (
		tick    time.Duration
		timeout time.Duration
		noStore bool
		quiet   bool
	)

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario on a fresh kernel",
		Long: `Boot a kernel, start the scenario's tasks and wait until every task body
has returned. The run, its switch trace and the final task table are
stored in the trace database unless --no-store is given. With --server the
scenario is executed by the server instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if cmd.Flags().Changed("tick") {
				cfg.TickInterval = tick
			}
			if cmd.Flags().Changed("timeout") {
				cfg.RunTimeout = timeout
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			var res *workload.Result
			if flagServer != "" {
				doc, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read scenario: %w", err)
				}
				var data struct {
					Run    *model.Run       `json:"run"`
					Tasks  []model.TaskInfo `json:"tasks"`
					Output []string         `json:"output"`
				}
				if _, err := NewClient(flagServer, logger).PostYAML("/api/v1/runs/", doc, &data); err != nil {
					return fmt.Errorf("submit scenario: %w", err)
				}
				res = &workload.Result{Run: data.Run, Tasks: data.Tasks, Output: data.Output}
			} else {
				sc, err := workload.LoadScenario(args[0])
				if err != nil {
					return err
				}
				var st store.Store
				if !noStore {
					db, err := openStore(ctx)
					if err != nil {
						return err
					}
					defer db.Close()
					st = db
				}
				res, err = workload.NewRunner(cfg, st, logger).Run(ctx, sc)
				if err != nil && res == nil {
					return err
				}
				if err != nil {
					logger.Warn("run finished with error", "error", err)
				}
			}

			if !quiet {
				for _, line := range res.Output {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out)
			}
			run := res.Run
			fmt.Fprintf(out, "Run:      %s\n", run.ID)
			fmt.Fprintf(out, "Status:   %s\n", run.Status)
			fmt.Fprintf(out, "Switches: %s\n", humanize.Comma(int64(run.Switches)))
			fmt.Fprintf(out, "Ticks:    %s\n", humanize.Comma(int64(run.Ticks)))
			if run.FinishedAt != nil {
				fmt.Fprintf(out, "Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Microsecond))
			}
			if run.Error != "" {
				fmt.Fprintf(out, "Error:    %s\n", run.Error)
			}

			if run.Status != model.RunStatusCompleted {
				return fmt.Errorf("run %s %s", run.ID, run.Status)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&tick, "tick", 0, "Timer tick interval (0 disables the timer)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this long")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not record the run")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print task output")
	return cmd
}
