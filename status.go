package ratchet

import (
	"context"
	"sort"
	"strconv"
	"time"
)

// sequenceLayout is the timestamp layout of generated sequences.
const sequenceLayout = "20060102150405"

// UnitState is the reconciled state of one unit.
type UnitState string

const (
	StateApplied UnitState = "applied"
	StatePending UnitState = "pending"
	StateDrifted UnitState = "drifted"
	StateMissing UnitState = "missing"
)

// StatusOptions filter a status report.
type StatusOptions struct {
	// Days keeps only units whose timestamp sequence falls within the last
	// Days days. Zero keeps everything.
	Days int
	// Now overrides the clock used by Days.
	Now time.Time
}

// StatusEntry is one line of a status report.
type StatusEntry struct {
	Sequence   int64
	Name       string
	State      UnitState
	AppliedAt  time.Time
	BatchID    string
	Reversible bool
	// Gap marks a pending unit older than the newest applied unit.
	Gap bool
	// Unit is nil for missing entries.
	Unit *Unit
}

// StatusReport lists every known unit, oldest first.
type StatusReport struct {
	Entries []StatusEntry
	Plan    *Plan
}

// Count returns the number of entries in state s.
func (r *StatusReport) Count(s UnitState) int {
	n := 0
	for _, e := range r.Entries {
		if e.State == s {
			n++
		}
	}
	return n
}

// Gaps returns the number of pending entries that are out of order.
func (r *StatusReport) Gaps() int {
	n := 0
	for _, e := range r.Entries {
		if e.Gap {
			n++
		}
	}
	return n
}

// Status reconciles the units on disk with the ledger. Drift is reported
// per entry rather than returned as an error.
func (m *Migrator) Status(ctx context.Context, opts StatusOptions) (*StatusReport, error) {
	set, plan, err := m.plan(ctx, Target{}, ReconcileOptions{AllowDrift: true})
	if err != nil {
		return nil, err
	}
	return buildStatus(set, plan, opts), nil
}

func buildStatus(set *MigrationSet, plan *Plan, opts StatusOptions) *StatusReport {
	applied := make(map[int64]AppliedRecord, len(plan.Applied))
	for _, rec := range plan.Applied {
		applied[rec.Sequence] = rec
	}
	drifted := make(map[int64]bool, len(plan.Drifted))
	for _, d := range plan.Drifted {
		drifted[d.Sequence] = true
	}
	gaps := make(map[int64]bool, len(plan.Gaps))
	for _, u := range plan.Gaps {
		gaps[u.Sequence] = true
	}

	var entries []StatusEntry
	for _, u := range set.Units {
		e := StatusEntry{Sequence: u.Sequence, Name: u.Name, State: StatePending, Reversible: u.Reversible(), Unit: u}
		if rec, ok := applied[u.Sequence]; ok {
			e.State = StateApplied
			e.AppliedAt = rec.AppliedAt
			e.BatchID = rec.BatchID
			if drifted[u.Sequence] {
				e.State = StateDrifted
			}
		}
		e.Gap = gaps[u.Sequence]
		entries = append(entries, e)
	}
	for _, rec := range plan.Missing {
		entries = append(entries, StatusEntry{
			Sequence:  rec.Sequence,
			Name:      rec.Name,
			State:     StateMissing,
			AppliedAt: rec.AppliedAt,
			BatchID:   rec.BatchID,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })

	if opts.Days > 0 {
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		entries = filterSince(entries, now.UTC().AddDate(0, 0, -opts.Days))
	}
	return &StatusReport{Entries: entries, Plan: plan}
}

// filterSince drops entries whose sequence is a timestamp older than cutoff.
// Sequences that are not timestamps are kept.
func filterSince(entries []StatusEntry, cutoff time.Time) []StatusEntry {
	var out []StatusEntry
	for _, e := range entries {
		if ts, ok := SequenceTime(e.Sequence); ok && ts.Before(cutoff) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// SequenceTime interprets seq as a UTC YYYYMMDDHHMMSS timestamp.
func SequenceTime(seq int64) (time.Time, bool) {
	s := strconv.FormatInt(seq, 10)
	if len(s) != len(sequenceLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(sequenceLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
