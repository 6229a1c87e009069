package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/coopfin/backoffice/internal/analytics"
	"github.com/coopfin/backoffice/internal/ledger"
)

// Deps resolves the helpers lazily so commands only connect to what they use.
type Deps struct {
	Jobs    func() (*JobsCLI, error)
	Reports func() (*ReportCLI, error)
	Timeout time.Duration
}

// NewRootCmd assembles the coopctl command tree.
func NewRootCmd(deps Deps) *cobra.Command {
	if deps.Timeout <= 0 {
		deps.Timeout = time.Minute
	}
	root := &cobra.Command{
		Use:           "coopctl",
		Short:         "Operate the cooperative back-office analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSyncCmd(deps), newWarmupCmd(deps), newQueueCmd(deps), newReportCmd(deps))
	return root
}

func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}

func newSyncCmd(deps Deps) *cobra.Command {
	sync := &cobra.Command{Use: "sync", Short: "Core banking mirror"}
	var lookback int
	trigger := &cobra.Command{
		Use:   "trigger",
		Short: "Enqueue a core mirror run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lookback < 0 {
				return errors.New("--lookback-days must not be negative")
			}
			helper, err := deps.Jobs()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, deps.Timeout)
			defer cancel()
			id, err := helper.TriggerMirror(ctx, lookback)
			if err != nil {
				return fmt.Errorf("enqueue mirror: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued core mirror task %s\n", id)
			return nil
		},
	}
	trigger.Flags().IntVar(&lookback, "lookback-days", 0, "days of balances to copy (0 uses the worker default)")
	sync.AddCommand(trigger)
	return sync
}

func newWarmupCmd(deps Deps) *cobra.Command {
	var offices []string
	var months int
	cmd := &cobra.Command{
		Use:   "warmup",
		Short: "Enqueue an analytics cache warmup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			helper, err := deps.Jobs()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, deps.Timeout)
			defer cancel()
			id, err := helper.TriggerWarmup(ctx, offices, months)
			if err != nil {
				return fmt.Errorf("enqueue warmup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued analytics warmup task %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&offices, "office", nil, "office codes to warm (default all)")
	cmd.Flags().IntVar(&months, "months", 0, "months of history to warm")
	return cmd
}

func newQueueCmd(deps Deps) *cobra.Command {
	queue := &cobra.Command{Use: "queue", Short: "Inspect the job queue"}
	var size int
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			helper, err := deps.Jobs()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, deps.Timeout)
			defer cancel()
			st, err := helper.InspectQueue(ctx, size)
			if err != nil {
				return fmt.Errorf("inspect queue: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				st.Queue, st.Pending, st.Active, st.Scheduled, st.Retry, st.Archived)
			if len(st.Upcoming) > 0 {
				fmt.Fprintf(out, "upcoming: %s\n", strings.Join(st.Upcoming, ", "))
			}
			return nil
		},
	}
	stats.Flags().IntVar(&size, "size", 10, "scheduled tasks to list")
	queue.AddCommand(stats)
	return queue
}

func newReportCmd(deps Deps) *cobra.Command {
	var office, from, to, period string
	var asCSV bool
	cmd := &cobra.Command{
		Use:   "report NAME",
		Short: "Print a trend report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := ledger.ParseDate(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := ledger.ParseDate(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			helper, err := deps.Reports()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, deps.Timeout)
			defer cancel()
			return helper.Render(ctx, cmd.OutOrStdout(), analytics.ReportFilter{
				Name:   args[0],
				Office: office,
				From:   start,
				To:     end,
				Period: period,
			}, asCSV)
		},
	}
	cmd.Flags().StringVar(&office, "office", "", "office code")
	cmd.Flags().StringVar(&from, "from", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "end date YYYY-MM-DD")
	cmd.Flags().StringVar(&period, "period", string(analytics.GranularityMonthly), "daily or monthly")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "write CSV instead of a table")
	_ = cmd.MarkFlagRequired("office")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
