package main

import (
	"github.com/bcomnes/ratchet"
	"github.com/bcomnes/ratchet/internal/tui"
	"github.com/spf13/cobra"
)

var interactiveFlags struct {
	days      int
	lastMonth bool
}

func init() {
	interactiveCmd.Flags().IntVar(&interactiveFlags.days, "days", 0, "only list migrations created in the last N days")
	interactiveCmd.Flags().BoolVar(&interactiveFlags.lastMonth, "last-month", false, "only list migrations created in the last 31 days")
	interactiveCmd.MarkFlagsMutuallyExclusive("days", "last-month")
	rootCmd.AddCommand(interactiveCmd)
}

var interactiveCmd = &cobra.Command{
	Use:     "interactive",
	Aliases: []string{"i"},
	Short:   "Pick migrations to apply, revert or redo",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := statusOptions(interactiveFlags.days, interactiveFlags.lastMonth)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		rt, err := open(ctx, cmd, false)
		if err != nil {
			return err
		}
		defer rt.close()

		session := ratchet.NewSession(rt.migrator, opts)
		err = tui.Run(ctx, session)
		if report := session.LastReport(); report != nil {
			rt.finish(report, session.Err())
		}
		return err
	},
}
