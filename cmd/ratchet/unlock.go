package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(unlockCmd)
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Clear a migration lock left behind by a crashed run",
	Long: `Clear a migration lock left behind by a crashed run.

Only SQLite keeps its lock in a table. PostgreSQL and MySQL locks belong to a
database session and disappear with it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := open(ctx, cmd, false)
		if err != nil {
			return err
		}
		defer rt.close()

		owner, err := rt.migrator.Unlock(ctx)
		if err != nil {
			return err
		}
		if owner == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No lock was held.")
			return nil
		}
		_, _ = okColor.Fprintf(cmd.OutOrStdout(), "Released lock held by %s.\n", owner)
		return nil
	},
}
