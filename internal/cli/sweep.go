package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aimd54/streakd/internal/calendar"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	Date string
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the daily reconciliation sweep once",
		Long: `Settle the previous day for every active habit with a running streak:
consume a freeze or reset the streak when the day was missed.

Interrupting the sweep keeps its progress; running it again for the same
date resumes after the last completed batch.

Examples:
  streakd sweep
  streakd sweep --date 2024-03-02 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "as-of date YYYY-MM-DD (default: today in the engine time zone)")

	return cmd
}

func runSweep(cmd *cobra.Command, opts *SweepOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts.RootOptions, false)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	defer a.Close()

	asOf := a.habits.Today()
	if opts.Date != "" {
		asOf, err = calendar.Parse(opts.Date)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --date", err)
		}
	}

	report, err := a.sweeper.RunDailySweep(ctx, asOf)
	if err != nil {
		return WrapExitError(ExitCommandError, "sweep failed", err)
	}

	ok := len(report.Failed) == 0 && !report.Cancelled
	err = writeResult(cmd.OutOrStdout(), opts.Format, ok, report, func(w io.Writer) {
		fmt.Fprintf(w, "Sweep %s: processed=%d frozen=%d broken=%d skipped=%d failed=%d duration=%s\n",
			report.Date, report.Processed, report.Frozen, report.Broken, report.Skipped, len(report.Failed), report.Duration)
		for _, f := range report.Failed {
			fmt.Fprintf(w, "  failed %s: %s\n", f.HabitID, f.Error)
		}
		if report.Cancelled {
			fmt.Fprintln(w, "  interrupted; rerun to resume")
		}
	})
	if err != nil {
		return err
	}
	if !ok {
		return &ExitError{Code: ExitFailure, Message: "sweep finished with failures"}
	}
	return nil
}
