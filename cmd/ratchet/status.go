package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/bcomnes/ratchet"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// lastMonthDays is the window of --last-month.
const lastMonthDays = 31

var statusFlags struct {
	days      int
	lastMonth bool
}

func init() {
	statusCmd.Flags().IntVar(&statusFlags.days, "days", 0, "only list migrations created in the last N days")
	statusCmd.Flags().BoolVar(&statusFlags.lastMonth, "last-month", false, "only list migrations created in the last 31 days")
	statusCmd.MarkFlagsMutuallyExclusive("days", "last-month")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := statusOptions(statusFlags.days, statusFlags.lastMonth)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		rt, err := open(ctx, cmd, false)
		if err != nil {
			return err
		}
		defer rt.close()

		report, err := rt.migrator.Status(ctx, opts)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), report)
		return nil
	},
}

func statusOptions(days int, lastMonth bool) (ratchet.StatusOptions, error) {
	if days < 0 {
		return ratchet.StatusOptions{}, fmt.Errorf("--days must not be negative")
	}
	if lastMonth {
		days = lastMonthDays
	}
	return ratchet.StatusOptions{Days: days}, nil
}

func printStatus(out io.Writer, r *ratchet.StatusReport) {
	if len(r.Entries) == 0 {
		fmt.Fprintln(out, "No migrations found.")
		return
	}
	rows := make([][]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		state := string(e.State)
		if e.Gap {
			state += " (out of order)"
		}
		if !e.Reversible && e.State != ratchet.StateMissing {
			state += " (irreversible)"
		}
		applied := ""
		if !e.AppliedAt.IsZero() {
			applied = humanize.Time(e.AppliedAt)
		}
		batch := e.BatchID
		if len(batch) > 8 {
			batch = batch[len(batch)-8:]
		}
		rows = append(rows, []string{strconv.FormatInt(e.Sequence, 10), e.Name, state, applied, batch})
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("SEQUENCE", "NAME", "STATE", "APPLIED", "BATCH").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().PaddingRight(2)
		})
	fmt.Fprintln(out, t.String())

	fmt.Fprintf(out, "\n%d applied, %d pending, %d drifted, %d missing\n",
		r.Count(ratchet.StateApplied), r.Count(ratchet.StatePending),
		r.Count(ratchet.StateDrifted), r.Count(ratchet.StateMissing))
	if n := r.Gaps(); n > 0 {
		_, _ = warnColor.Fprintf(out, "Warning: %s older than the newest applied migration; `up` will apply %s.\n",
			gapSubject(n), pronoun(n))
	}
	for _, e := range r.Entries {
		switch e.State {
		case ratchet.StateDrifted:
			_, _ = warnColor.Fprintf(out, "Warning: migration %d (%s) changed after it was applied.\n", e.Sequence, e.Name)
		case ratchet.StateMissing:
			_, _ = warnColor.Fprintf(out, "Warning: migration %d (%s) is applied but its files are gone.\n", e.Sequence, e.Name)
		}
	}
}

func gapSubject(n int) string {
	if n == 1 {
		return "1 pending migration is"
	}
	return fmt.Sprintf("%d pending migrations are", n)
}

func pronoun(n int) string {
	if n == 1 {
		return "it"
	}
	return "them"
}
