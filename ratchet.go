package ratchet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// releaseTimeout bounds lock release, which runs on a fresh context.
const releaseTimeout = 10 * time.Second

// Config holds settings for migrations.
type Config struct {
	// MigrationsDir is the directory holding migration units.
	MigrationsDir string

	// LedgerTable is the table recording applied migrations. PostgreSQL and
	// MySQL accept a "schema.table" form.
	LedgerTable string

	// Newline, when set, converts script line endings ("LF", "CR", "CRLF")
	// before checksumming.
	Newline string

	// LockName names the advisory lock serialising runs.
	LockName string

	// LockTimeout bounds the wait for the lock. Zero fails immediately when
	// the lock is held; a negative value waits until ctx is done.
	LockTimeout time.Duration

	// DryRun computes and reports plans without executing them.
	DryRun bool
}

// DefaultConfig provides default values for configuration.
var DefaultConfig = Config{
	MigrationsDir: "migrations",
	LedgerTable:   "_schema_migration",
	LockName:      "ratchet",
	LockTimeout:   15 * time.Second,
}

// Option customises a Migrator.
type Option func(*Migrator)

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Migrator) { m.log = log }
}

// WithObserver adds an observer for progress events.
func WithObserver(o Observer) Option {
	return func(m *Migrator) { m.observers = append(m.observers, o) }
}

// Migrator is the main orchestrator for running database migrations.
//
// It loads migration units, reads the ledger, reconciles them against a
// target and executes the result while holding the migration lock.
type Migrator struct {
	cfg       Config
	driver    Driver
	store     *Store
	log       logrus.FieldLogger
	observers []Observer
}

// New creates a Migrator over d. Empty config fields take their defaults.
func New(cfg Config, d Driver, opts ...Option) *Migrator {
	// Merge defaults.
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = DefaultConfig.MigrationsDir
	}
	if cfg.LedgerTable == "" {
		cfg.LedgerTable = DefaultConfig.LedgerTable
	}
	if cfg.LockName == "" {
		cfg.LockName = DefaultConfig.LockName
	}
	m := &Migrator{
		cfg:    cfg,
		driver: d,
		store:  NewStore(d),
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Migrator) Config() Config { return m.cfg }

// Driver returns the underlying driver.
func (m *Migrator) Driver() Driver { return m.driver }

// Close closes the driver's session.
func (m *Migrator) Close() error { return m.driver.Close() }

// Load reads the migration units from disk.
func (m *Migrator) Load() (*MigrationSet, error) {
	return LoadMigrations(m.cfg.MigrationsDir, m.cfg.Newline)
}

// Plan reconciles the units on disk with the ledger for target without
// executing anything and without taking the lock.
func (m *Migrator) Plan(ctx context.Context, target Target) (*Plan, error) {
	_, plan, err := m.plan(ctx, target, ReconcileOptions{})
	return plan, err
}

func (m *Migrator) plan(ctx context.Context, target Target, opts ReconcileOptions) (*MigrationSet, *Plan, error) {
	set, err := m.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := m.store.Ensure(ctx); err != nil {
		return nil, nil, err
	}
	ledger, err := m.store.CurrentLedger(ctx)
	if err != nil {
		return nil, nil, err
	}
	plan, err := Reconcile(set, ledger, target, opts)
	return set, plan, err
}

// Apply moves the database to target. Definition problems are reported
// before any database work; the ledger is read and the plan computed only
// once the lock is held.
func (m *Migrator) Apply(ctx context.Context, target Target) (report *Report, err error) {
	set, err := m.Load()
	if err != nil {
		return nil, err
	}

	lock, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := m.release(lock); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	dbCtx := context.WithoutCancel(ctx)
	if err := m.store.Ensure(dbCtx); err != nil {
		return nil, err
	}
	ledger, err := m.store.CurrentLedger(dbCtx)
	if err != nil {
		return nil, err
	}
	plan, err := Reconcile(set, ledger, target, ReconcileOptions{})
	if err != nil {
		return nil, err
	}

	log := m.log.WithFields(logrus.Fields{
		"target": target.String(),
		"up":     len(plan.PendingUp),
		"down":   len(plan.PendingDown),
	})
	if m.cfg.DryRun {
		log.Info("dry run, nothing executed")
		return &Report{Plan: plan, DryRun: true}, nil
	}
	if plan.Empty() {
		log.Info("nothing to do")
		return &Report{Plan: plan}, nil
	}
	log.Info("running migrations")

	exec := NewExecutor(m.driver, m.store, m.log, m.observers...)
	return exec.Execute(ctx, plan)
}

// Up applies every pending unit.
func (m *Migrator) Up(ctx context.Context) (*Report, error) {
	return m.Apply(ctx, UpAll())
}

// Down reverts the n most recently applied units.
func (m *Migrator) Down(ctx context.Context, n int) (*Report, error) {
	return m.Apply(ctx, Down(n))
}

// Unlocker is implemented by drivers whose lock can outlive a crashed run.
type Unlocker interface {
	ForceUnlock(ctx context.Context) (string, error)
}

// Unlock clears a stale lock left by a crashed run and returns its owner.
// Engines with session scoped locks release them when the session ends, so
// there is nothing to clear.
func (m *Migrator) Unlock(ctx context.Context) (string, error) {
	u, ok := m.driver.(Unlocker)
	if !ok {
		return "", fmt.Errorf("%s releases the migration lock when the session ends; nothing to unlock", m.driver.Name())
	}
	return u.ForceUnlock(ctx)
}

func (m *Migrator) acquire(ctx context.Context) (*Lock, error) {
	lockCtx, cancel := ctx, context.CancelFunc(func() {})
	if m.cfg.LockTimeout >= 0 {
		lockCtx, cancel = context.WithTimeout(ctx, m.cfg.LockTimeout)
	}
	defer cancel()

	m.log.WithFields(logrus.Fields{"lock": m.cfg.LockName, "timeout": m.cfg.LockTimeout}).Debug("acquiring migration lock")
	lock, err := m.driver.AcquireLock(lockCtx, m.cfg.LockName)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("%w while waiting for the migration lock", ErrCancelled)
		}
		return nil, err
	}
	return lock, nil
}

// release drops the lock on a fresh context so it also runs after the
// caller's context was cancelled.
func (m *Migrator) release(lock *Lock) error {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := m.driver.ReleaseLock(ctx, lock); err != nil {
		m.log.WithError(err).WithField("lock", lock.Name).Error("failed to release migration lock")
		return err
	}
	m.log.WithField("lock", lock.Name).Debug("released migration lock")
	return nil
}
