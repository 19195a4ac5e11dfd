// Package log configures the process wide logrus logger for the ratchet
// command.
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options select the logger's level and outputs.
type Options struct {
	// Verbose enables debug output and caller reporting.
	Verbose bool
	// Quiet only reports warnings and errors.
	Quiet bool
	// Output defaults to stderr.
	Output io.Writer
	// File, when set, also appends every entry to this file.
	File string
}

// New configures and returns the standard logger. The returned close func
// releases the log file, if any.
func New(opts Options) (*logrus.Logger, func() error, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	closeFn := func() error { return nil }
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		out = io.MultiWriter(out, f)
		closeFn = f.Close
	}

	logger := logrus.StandardLogger()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level := logrus.InfoLevel
	switch {
	case opts.Verbose:
		level = logrus.DebugLevel
	case opts.Quiet:
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)
	logger.SetReportCaller(opts.Verbose)
	return logger, closeFn, nil
}
