package ratchet

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these; the typed errors below carry the
// unit and statement context.
var (
	// ErrDefinition groups every problem with the migration files themselves.
	ErrDefinition = errors.New("invalid migration definitions")
	// ErrMalformedUnit indicates a badly named, unreadable or incomplete unit.
	ErrMalformedUnit = errors.New("malformed migration unit")
	// ErrDuplicateSequence indicates two units share a sequence.
	ErrDuplicateSequence = errors.New("duplicate migration sequence")

	// ErrDriftDetected indicates an applied unit changed on disk.
	ErrDriftDetected = errors.New("migration drift detected")

	// ErrLockUnavailable indicates another run holds the migration lock.
	ErrLockUnavailable = errors.New("migration lock unavailable")

	// ErrDriver groups failures reported by a database driver.
	ErrDriver = errors.New("database driver error")
	// ErrConnectionLost indicates the session to the database went away.
	ErrConnectionLost = errors.New("connection lost")
	// ErrStatementFailed indicates the database rejected a statement.
	ErrStatementFailed = errors.New("statement failed")
	// ErrUnsupportedOperation indicates the engine cannot run a statement
	// under the requested transactional guarantees.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrIrreversibleMigration indicates a revert was requested for a unit
	// without a down script.
	ErrIrreversibleMigration = errors.New("irreversible migration")

	// ErrCancelled indicates the run stopped early on request.
	ErrCancelled = errors.New("migration run cancelled")

	// ErrUnknownMigration indicates a target names a sequence that is
	// neither on disk nor in the ledger.
	ErrUnknownMigration = errors.New("unknown migration")
)

// DefinitionError describes a problem found while loading migration files.
type DefinitionError struct {
	Path     string
	Sequence int64
	Reason   string
	Err      error // ErrMalformedUnit or ErrDuplicateSequence
}

func (e *DefinitionError) Error() string {
	if e.Sequence != 0 {
		return fmt.Sprintf("%v: migration %d (%s): %s", e.Err, e.Sequence, e.Path, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", e.Err, e.Path, e.Reason)
}

func (e *DefinitionError) Unwrap() []error { return []error{ErrDefinition, e.Err} }

func malformed(path string, seq int64, format string, args ...any) *DefinitionError {
	return &DefinitionError{Path: path, Sequence: seq, Reason: fmt.Sprintf(format, args...), Err: ErrMalformedUnit}
}

// DriftError reports an applied unit whose on-disk checksum no longer
// matches the checksum recorded when it ran.
type DriftError struct {
	Sequence         int64
	Name             string
	ExpectedChecksum string // recorded in the ledger
	ActualChecksum   string // computed from disk
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("migration %d (%s) changed after it was applied: ledger checksum %s, file checksum %s",
		e.Sequence, e.Name, e.ExpectedChecksum, e.ActualChecksum)
}

func (e *DriftError) Unwrap() error { return ErrDriftDetected }

// IrreversibleError reports a revert request for a unit that cannot be
// reverted, either because its down script is empty or its files are gone.
type IrreversibleError struct {
	Sequence int64
	Name     string
	Missing  bool
}

func (e *IrreversibleError) Error() string {
	if e.Missing {
		return fmt.Sprintf("migration %d (%s) cannot be reverted: its files are missing", e.Sequence, e.Name)
	}
	return fmt.Sprintf("migration %d (%s) cannot be reverted: it has no down script", e.Sequence, e.Name)
}

func (e *IrreversibleError) Unwrap() error { return ErrIrreversibleMigration }

// DriverError wraps a failure reported by a database driver together with
// the operation, unit and statement involved.
type DriverError struct {
	Op        string
	Sequence  int64
	Statement string
	Err       error // one of ErrConnectionLost, ErrStatementFailed, ErrUnsupportedOperation, ErrLockUnavailable
	Cause     error // engine error, if any
}

func (e *DriverError) Error() string {
	msg := e.Op
	if e.Sequence != 0 {
		msg = fmt.Sprintf("%s migration %d", msg, e.Sequence)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", msg, e.Err, e.Cause)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *DriverError) Unwrap() []error {
	errs := []error{e.Err}
	if !errors.Is(e.Err, ErrLockUnavailable) {
		errs = append(errs, ErrDriver)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// withUnit returns a copy of err annotated with the unit sequence when err
// is a *DriverError; other errors pass through unchanged.
func withUnit(err error, seq int64) error {
	var de *DriverError
	if errors.As(err, &de) {
		cp := *de
		cp.Sequence = seq
		return &cp
	}
	return err
}
