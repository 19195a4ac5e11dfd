package main

import (
	"fmt"
	"time"

	"github.com/bcomnes/ratchet"
	"github.com/spf13/cobra"
)

var createLayout string

func init() {
	createCmd.Flags().StringVar(&createLayout, "layout", "", "folder, files or single (default from config, else folder)")
	rootCmd.AddCommand(createCmd)
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new migration",
	Long: `Create a new migration named after the current UTC time.

Names such as "create_table_users", "add_column_email_to_users" or
"add_index_for_email_on_users" get matching sample statements.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCreate,
}

func runCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	layoutName := cfg.Layout
	if cmd.Flags().Changed("layout") {
		layoutName = createLayout
	}
	layout, err := ratchet.ParseLayout(layoutName)
	if err != nil {
		return err
	}

	// The dialect only shapes the sample statements, so no database is
	// required.
	var dialect ratchet.Dialect
	if desc, err := cfg.Descriptor(); err == nil {
		dialect = desc.ResolvedDialect()
	}

	name := joinArgs(args)
	paths, err := ratchet.CreateMigration(cfg.MigrationsDir, name, layout, dialect, time.Now())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	_, _ = okColor.Fprintln(out, "Created migration:")
	for _, p := range paths {
		fmt.Fprintf(out, "  %s\n", p)
	}
	return nil
}

func joinArgs(args []string) string {
	name := args[0]
	for _, a := range args[1:] {
		name += " " + a
	}
	return name
}
