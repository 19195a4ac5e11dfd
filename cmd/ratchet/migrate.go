package main

import (
	"fmt"
	"strconv"

	"github.com/bcomnes/ratchet"
	"github.com/spf13/cobra"
)

var upFlags struct {
	to     int64
	dryRun bool
}

var downFlags struct {
	to     int64
	all    bool
	batch  bool
	dryRun bool
}

func init() {
	upCmd.Flags().Int64Var(&upFlags.to, "to", 0, "apply pending migrations up to and including this sequence")
	upCmd.Flags().BoolVar(&upFlags.dryRun, "dry-run", false, "show what would run without running it")
	rootCmd.AddCommand(upCmd)

	downCmd.Flags().Int64Var(&downFlags.to, "to", 0, "revert every migration newer than this sequence")
	downCmd.Flags().BoolVar(&downFlags.all, "all", false, "revert every applied migration")
	downCmd.Flags().BoolVar(&downFlags.batch, "batch", false, "count whole runs instead of single migrations")
	downCmd.Flags().BoolVar(&downFlags.dryRun, "dry-run", false, "show what would run without running it")
	downCmd.MarkFlagsMutuallyExclusive("to", "all", "batch")
	rootCmd.AddCommand(downCmd)
}

var upCmd = &cobra.Command{
	Use:   "up [count]",
	Short: "Apply pending migrations",
	Long:  "Apply every pending migration, the next [count] of them, or those up to --to.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := ratchet.UpAll()
		if len(args) == 1 {
			n, err := parseCount(args[0])
			if err != nil {
				return err
			}
			target = ratchet.Up(n)
		}
		if cmd.Flags().Changed("to") {
			if len(args) == 1 {
				return fmt.Errorf("give either a count or --to, not both")
			}
			target = ratchet.UpTo(upFlags.to)
		}
		return migrate(cmd, target, upFlags.dryRun)
	},
}

var downCmd = &cobra.Command{
	Use:   "down [count]",
	Short: "Revert applied migrations",
	Long: `Revert the most recently applied migration, or the last [count] of them.

With --batch the count is of runs rather than migrations. --to reverts every
migration newer than the given sequence and --all reverts everything.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := 1
		if len(args) == 1 {
			if downFlags.all || cmd.Flags().Changed("to") {
				return fmt.Errorf("a count cannot be combined with --all or --to")
			}
			var err error
			if n, err = parseCount(args[0]); err != nil {
				return err
			}
		}
		var target ratchet.Target
		switch {
		case downFlags.all:
			target = ratchet.DownAll()
		case cmd.Flags().Changed("to"):
			target = ratchet.DownTo(downFlags.to)
		case downFlags.batch:
			target = ratchet.DownBatches(n)
		default:
			target = ratchet.Down(n)
		}
		return migrate(cmd, target, downFlags.dryRun)
	},
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid count %q: must be a positive integer", s)
	}
	return n, nil
}

func migrate(cmd *cobra.Command, target ratchet.Target, dryRun bool) error {
	ctx := cmd.Context()
	rt, err := open(ctx, cmd, dryRun)
	if err != nil {
		return err
	}
	defer rt.close()

	out := cmd.OutOrStdout()
	report, err := rt.migrator.Apply(ctx, target)
	rt.finish(report, err)
	if report == nil {
		return err
	}

	if report.DryRun {
		printPlan(out, report.Plan)
		return err
	}
	if report.Plan != nil && report.Plan.Empty() && err == nil {
		fmt.Fprintln(out, "Nothing to do.")
		return nil
	}
	applied, reverted := len(report.Applied()), len(report.Reverted())
	switch {
	case err != nil && len(report.Completed) > 0:
		_, _ = warnColor.Fprintf(out, "Stopped after applying %s and reverting %s in %s.\n",
			plural(applied, "migration"), plural(reverted, "migration"), humanDuration(report.Duration))
	case err == nil:
		_, _ = okColor.Fprintf(out, "Applied %s and reverted %s in %s.\n",
			plural(applied, "migration"), plural(reverted, "migration"), humanDuration(report.Duration))
	}
	return err
}
