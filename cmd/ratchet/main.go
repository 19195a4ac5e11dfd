// Command ratchet applies and reverts versioned SQL migrations against
// PostgreSQL, MySQL and SQLite.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if closeLog != nil {
		_ = closeLog()
	}
	if err != nil {
		printError(err)
		return exitCode(err)
	}
	return 0
}
