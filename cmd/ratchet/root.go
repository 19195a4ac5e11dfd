package main

import (
	"context"
	"fmt"
	"io"

	"github.com/bcomnes/ratchet"
	"github.com/bcomnes/ratchet/internal/config"
	"github.com/bcomnes/ratchet/internal/log"
	"github.com/bcomnes/ratchet/internal/metrics"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ratchet",
	Short: "Versioned SQL migrations for PostgreSQL, MySQL and SQLite",
	Long: `ratchet applies and reverts versioned SQL migrations.

Settings are read from ratchet.toml, ratchet.yaml or ratchet.json (found by
walking up from the working directory), .env files, RATCHET_* environment
variables and finally the flags below.`,
	Version:           getVersion(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

var globalFlags struct {
	configFile    string
	noConfig      bool
	env           string
	url           string
	engine        string
	host          string
	port          int
	user          string
	password      string
	database      string
	migrationsDir string
	ledgerTable   string
	lockTimeout   string
	verbose       bool
	quiet         bool
	logFile       string
	metricsFile   string
}

var (
	logger   *logrus.Logger
	closeLog func() error
)

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&globalFlags.configFile, "config", "", "path to a config file (default: search for ratchet.toml)")
	f.BoolVar(&globalFlags.noConfig, "no-config", false, "do not read a config file")
	f.StringVar(&globalFlags.env, "env", "", "environment name, selects .env.<env>")
	f.StringVar(&globalFlags.url, "url", "", "database URL (postgres://, mysql://, sqlite:// or a file path)")
	f.StringVar(&globalFlags.engine, "engine", "", "database engine: postgres, mysql or sqlite")
	f.StringVar(&globalFlags.host, "host", "", "database host")
	f.IntVar(&globalFlags.port, "port", 0, "database port (default 5432 or 3306)")
	f.StringVar(&globalFlags.user, "user", "", "database user")
	f.StringVar(&globalFlags.password, "password", "", "database password")
	f.StringVar(&globalFlags.database, "database", "", "database name, or the SQLite file")
	f.StringVar(&globalFlags.migrationsDir, "migrations-dir", "", "directory holding migrations (default \"migrations\")")
	f.StringVar(&globalFlags.ledgerTable, "ledger-table", "", "table recording applied migrations (default \"_schema_migration\")")
	f.StringVar(&globalFlags.lockTimeout, "lock-timeout", "", "how long to wait for the migration lock, -1 waits forever (default 15s)")
	f.BoolVarP(&globalFlags.verbose, "verbose", "v", false, "debug logging")
	f.BoolVarP(&globalFlags.quiet, "quiet", "q", false, "only log warnings and errors")
	f.StringVar(&globalFlags.logFile, "log-file", "", "also write logs to this file")
	f.StringVar(&globalFlags.metricsFile, "metrics-file", "", "write run metrics to this Prometheus textfile")
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	out := cmd.ErrOrStderr()
	if cmd.Name() == "interactive" {
		// Log lines would draw over the interactive screen.
		out = io.Discard
	}
	l, closeFn, err := log.New(log.Options{
		Verbose: globalFlags.verbose,
		Quiet:   globalFlags.quiet,
		Output:  out,
		File:    globalFlags.logFile,
	})
	if err != nil {
		return err
	}
	logger, closeLog = l, closeFn
	return nil
}

// loadConfig resolves the configuration and applies the flags that were set
// on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Resolve(config.Options{
		File:        globalFlags.configFile,
		NoFile:      globalFlags.noConfig,
		Environment: globalFlags.env,
	})
	if err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath != "" {
		logger.WithField("path", cfg.ConfigFilePath).Debug("loaded config file")
	}

	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("url", &cfg.DatabaseURL, globalFlags.url)
	set("engine", &cfg.Engine, globalFlags.engine)
	set("host", &cfg.Host, globalFlags.host)
	set("user", &cfg.User, globalFlags.user)
	set("password", &cfg.Password, globalFlags.password)
	set("database", &cfg.Database, globalFlags.database)
	set("migrations-dir", &cfg.MigrationsDir, globalFlags.migrationsDir)
	set("ledger-table", &cfg.LedgerTable, globalFlags.ledgerTable)
	if flags.Changed("lock-timeout") {
		if _, err := config.ParseLockTimeout(globalFlags.lockTimeout); err != nil {
			return nil, err
		}
		cfg.LockTimeout = globalFlags.lockTimeout
	}
	if flags.Changed("port") {
		cfg.Port = globalFlags.port
	}
	return cfg, nil
}

// runtime is an open connection and the migrator over it.
type runtime struct {
	migrator  *ratchet.Migrator
	collector *metrics.Collector
}

// open connects to the configured database. dryRun is passed through to the
// library configuration.
func open(ctx context.Context, cmd *cobra.Command, dryRun bool) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	desc, err := cfg.Descriptor()
	if err != nil {
		return nil, err
	}
	rc, err := cfg.Ratchet()
	if err != nil {
		return nil, err
	}
	rc.DryRun = dryRun

	dialect := desc.ResolvedDialect()
	logger.WithFields(logrus.Fields{
		"engine":     dialect,
		"migrations": rc.MigrationsDir,
		"ledger":     rc.LedgerTable,
	}).Debug("opening database")
	d, err := ratchet.Open(ctx, desc, rc.LedgerTable)
	if err != nil {
		return nil, err
	}

	collector := metrics.New(string(dialect))
	opts := []ratchet.Option{ratchet.WithLogger(logger), ratchet.WithObserver(collector)}
	if cmd.Name() != "interactive" {
		opts = append(opts, ratchet.WithObserver(progress{out: cmd.OutOrStdout()}))
	}
	m := ratchet.New(rc, d, opts...)
	return &runtime{migrator: m, collector: collector}, nil
}

func (r *runtime) close() {
	if err := r.migrator.Close(); err != nil {
		logger.WithError(err).Warn("failed to close database connection")
	}
}

// finish records the run in the metrics textfile when one is configured.
func (r *runtime) finish(report *ratchet.Report, err error) {
	if globalFlags.metricsFile == "" {
		return
	}
	r.collector.ObserveRun(report, err)
	if werr := r.collector.WriteTextfile(globalFlags.metricsFile); werr != nil {
		logger.WithError(werr).Warn("failed to write metrics file")
	}
}

// progress prints unit events as they happen.
type progress struct {
	out io.Writer
}

func (p progress) OnEvent(ev ratchet.Event) {
	arrow := "↑"
	if ev.Direction == ratchet.DirectionDown {
		arrow = "↓"
	}
	switch ev.Kind {
	case ratchet.EventSucceeded:
		_, _ = okColor.Fprintf(p.out, "  %s %d %s", arrow, ev.Unit.Sequence, ev.Unit.Name)
		fmt.Fprintf(p.out, " (%s)\n", humanDuration(ev.Duration))
	case ratchet.EventFailed:
		_, _ = failColor.Fprintf(p.out, "  ✗ %d %s", ev.Unit.Sequence, ev.Unit.Name)
		fmt.Fprintf(p.out, " (%s)\n", humanDuration(ev.Duration))
	}
}
