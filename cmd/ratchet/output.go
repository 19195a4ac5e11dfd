package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bcomnes/ratchet"
	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

// Exit codes.
const (
	exitOK           = 0
	exitGeneric      = 1
	exitDefinition   = 2
	exitDrift        = 3
	exitLock         = 4
	exitDriver       = 5
	exitIrreversible = 6
	exitCancelled    = 130
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, ratchet.ErrCancelled), errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.Is(err, ratchet.ErrDefinition):
		return exitDefinition
	case errors.Is(err, ratchet.ErrDriftDetected):
		return exitDrift
	case errors.Is(err, ratchet.ErrLockUnavailable):
		return exitLock
	case errors.Is(err, ratchet.ErrIrreversibleMigration):
		return exitIrreversible
	case errors.Is(err, ratchet.ErrDriver):
		return exitDriver
	}
	return exitGeneric
}

func printError(err error) {
	_, _ = failColor.Fprint(os.Stderr, "Error: ")
	fmt.Fprintln(os.Stderr, err)

	var drift *ratchet.DriftError
	if errors.As(err, &drift) {
		fmt.Fprintln(os.Stderr, "Applied migrations changed on disk. Restore the files or write a new migration.")
	}
	if errors.Is(err, ratchet.ErrLockUnavailable) {
		fmt.Fprintln(os.Stderr, "Another run holds the migration lock. For SQLite, `ratchet unlock` clears a lock left by a crashed run.")
	}
}

// humanDuration formats d at a precision that suits its size.
func humanDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.Round(time.Microsecond).String()
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(10 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
