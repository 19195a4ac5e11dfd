package ratchet

import (
	"context"
	"time"
)

//go:generate go run go.uber.org/mock/mockgen -package ratchet -destination mock_driver_test.go github.com/bcomnes/ratchet Driver

// AppliedRecord is one row of the ledger table.
type AppliedRecord struct {
	Sequence  int64
	Name      string
	Checksum  string
	AppliedAt time.Time
	BatchID   string
}

// Lock is a held advisory lock. It is only valid on the connection that
// acquired it.
type Lock struct {
	Name       string
	key        any
	AcquiredAt time.Time
}

// Driver is the capability set every database backend provides. All calls
// of one run go through a single session; Exec runs inside the open
// transaction when there is one and in autocommit otherwise.
//
// Ledger methods are reserved for Store.
type Driver interface {
	// Name returns the engine name ("postgres", "mysql", "sqlite").
	Name() string

	// TransactionalDDL reports whether DDL statements can be rolled back.
	TransactionalDDL() bool

	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	// Exec runs one statement (or script) and returns the affected rows.
	Exec(ctx context.Context, statement string) (int64, error)

	// AcquireLock takes the engine's advisory lock. It waits until ctx is
	// done at most, then fails with ErrLockUnavailable.
	AcquireLock(ctx context.Context, name string) (*Lock, error)
	ReleaseLock(ctx context.Context, lock *Lock) error

	// EnsureLedger creates the ledger table if it does not exist.
	EnsureLedger(ctx context.Context) error
	// ReadLedger returns the ledger ordered by sequence ascending.
	ReadLedger(ctx context.Context) ([]AppliedRecord, error)
	WriteLedgerEntry(ctx context.Context, rec AppliedRecord) error
	DeleteLedgerEntry(ctx context.Context, sequence int64) error

	// Close releases the session.
	Close() error
}
