package ratchet

import (
	"context"
)

// Store owns the ledger table. It is the only component that calls the
// ledger methods of a Driver, and it caches the ledger for the duration of a
// run.
type Store struct {
	driver Driver
	cache  []AppliedRecord
	fresh  bool
}

// NewStore returns a Store backed by d.
func NewStore(d Driver) *Store {
	return &Store{driver: d}
}

// Ensure creates the ledger table if it does not exist.
func (s *Store) Ensure(ctx context.Context) error {
	s.invalidate()
	return s.driver.EnsureLedger(ctx)
}

// CurrentLedger returns the applied records ordered by sequence ascending.
// The result is cached until the next Record or Unrecord. Callers must not
// modify the returned slice.
func (s *Store) CurrentLedger(ctx context.Context) ([]AppliedRecord, error) {
	if s.fresh {
		return s.cache, nil
	}
	records, err := s.driver.ReadLedger(ctx)
	if err != nil {
		return nil, err
	}
	s.cache = records
	s.fresh = true
	return records, nil
}

// Record appends rec to the ledger.
func (s *Store) Record(ctx context.Context, rec AppliedRecord) error {
	s.invalidate()
	return s.driver.WriteLedgerEntry(ctx, rec)
}

// Unrecord deletes the ledger entry for sequence.
func (s *Store) Unrecord(ctx context.Context, sequence int64) error {
	s.invalidate()
	return s.driver.DeleteLedgerEntry(ctx, sequence)
}

// Invalidate drops the cached ledger, e.g. after a rollback.
func (s *Store) Invalidate() { s.invalidate() }

func (s *Store) invalidate() {
	s.cache = nil
	s.fresh = false
}
