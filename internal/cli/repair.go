package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// RepairOptions holds flags for the repair command.
type RepairOptions struct {
	*RootOptions
	HabitID string
	DryRun  bool
}

// NewRepairCommand creates the repair command.
func NewRepairCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RepairOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Rebuild a habit's counters from its ledger",
		Long: `Replay the completion ledger of a habit and compare the result with the
stored counters. Drifted counters are overwritten unless --dry-run is set.

Exit codes:
  0 - No drift, or drift repaired
  1 - Drift found in dry-run mode
  2 - Command error

Examples:
  streakd repair --habit 7d1c9f0e-1f7a-4d55-9a53-0a3a5d2b7c11 --dry-run`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepair(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.HabitID, "habit", "", "habit id (required)")
	_ = cmd.MarkFlagRequired("habit")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report drift without writing")

	return cmd
}

func runRepair(cmd *cobra.Command, opts *RepairOptions) error {
	ctx := context.Background()

	a, err := newApp(ctx, opts.RootOptions, false)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	defer a.Close()

	report, err := a.habits.Repair(ctx, opts.HabitID, opts.DryRun)
	if err != nil {
		return WrapExitError(ExitCommandError, "repair failed", err)
	}

	clean := len(report.Drift) == 0 || report.Repaired
	err = writeResult(cmd.OutOrStdout(), opts.Format, clean, report, func(w io.Writer) {
		fmt.Fprintf(w, "Habit %s reconciled through %s\n", report.HabitID, report.ReconciledThrough)
		switch {
		case len(report.Drift) == 0:
			fmt.Fprintln(w, "  counters match the ledger")
		case report.Repaired:
			fmt.Fprintf(w, "  repaired drift in: %s\n", strings.Join(report.Drift, ", "))
		default:
			fmt.Fprintf(w, "  drift in: %s (dry run, nothing written)\n", strings.Join(report.Drift, ", "))
		}
	})
	if err != nil {
		return err
	}
	if !clean {
		return &ExitError{Code: ExitFailure, Message: "counters drifted from the ledger"}
	}
	return nil
}
