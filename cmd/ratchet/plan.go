package main

import (
	"fmt"
	"io"

	"github.com/bcomnes/ratchet"
)

func printPlan(out io.Writer, plan *ratchet.Plan) {
	if plan == nil || plan.Empty() {
		fmt.Fprintln(out, "Dry run: nothing to do.")
		return
	}
	fmt.Fprintf(out, "Dry run: would revert %s and apply %s.\n",
		plural(len(plan.PendingDown), "migration"), plural(len(plan.PendingUp), "migration"))
	for _, u := range plan.PendingDown {
		fmt.Fprintf(out, "  ↓ %d %s\n", u.Sequence, u.Name)
	}
	for _, u := range plan.PendingUp {
		fmt.Fprintf(out, "  ↑ %d %s\n", u.Sequence, u.Name)
	}
}
