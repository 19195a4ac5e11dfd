package ratchet

import (
	"fmt"
	"sort"
	"strings"
)

// TargetKind selects how a Target is resolved against the ledger.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetUpAll
	TargetUp
	TargetUpTo
	TargetDown
	TargetDownBatches
	TargetDownTo
	TargetDownAll
	TargetSelect
	TargetRedo
)

// Target describes the state a run should reach. Build one with the helper
// constructors; the zero Target plans nothing and is used for status.
type Target struct {
	Kind     TargetKind
	Count    int
	Sequence int64
	Apply    []int64
	Revert   []int64
}

// UpAll applies every pending unit.
func UpAll() Target { return Target{Kind: TargetUpAll} }

// Up applies the n oldest pending units.
func Up(n int) Target { return Target{Kind: TargetUp, Count: n} }

// UpTo applies pending units with a sequence up to and including seq.
func UpTo(seq int64) Target { return Target{Kind: TargetUpTo, Sequence: seq} }

// Down reverts the n most recently applied units.
func Down(n int) Target { return Target{Kind: TargetDown, Count: n} }

// DownBatches reverts every unit of the n most recent batches.
func DownBatches(n int) Target { return Target{Kind: TargetDownBatches, Count: n} }

// DownTo reverts every applied unit with a sequence above seq.
func DownTo(seq int64) Target { return Target{Kind: TargetDownTo, Sequence: seq} }

// DownAll reverts every applied unit.
func DownAll() Target { return Target{Kind: TargetDownAll} }

// Select applies and reverts explicit units. Already applied units in apply
// are skipped unless revert names them too, which re-applies them.
func Select(apply, revert []int64) Target {
	return Target{Kind: TargetSelect, Apply: apply, Revert: revert}
}

// Redo reverts then re-applies the given applied units.
func Redo(seqs ...int64) Target { return Target{Kind: TargetRedo, Revert: seqs, Apply: seqs} }

func (t Target) String() string {
	switch t.Kind {
	case TargetUpAll:
		return "up all"
	case TargetUp:
		return fmt.Sprintf("up %d", t.Count)
	case TargetUpTo:
		return fmt.Sprintf("up to %d", t.Sequence)
	case TargetDown:
		return fmt.Sprintf("down %d", t.Count)
	case TargetDownBatches:
		return fmt.Sprintf("down %d batch(es)", t.Count)
	case TargetDownTo:
		return fmt.Sprintf("down to %d", t.Sequence)
	case TargetDownAll:
		return "down all"
	case TargetSelect:
		return fmt.Sprintf("apply %s, revert %s", joinSeqs(t.Apply), joinSeqs(t.Revert))
	case TargetRedo:
		return fmt.Sprintf("redo %s", joinSeqs(t.Apply))
	default:
		return "none"
	}
}

func joinSeqs(seqs []int64) string {
	if len(seqs) == 0 {
		return "[]"
	}
	parts := make([]string, len(seqs))
	for i, s := range seqs {
		parts[i] = fmt.Sprint(s)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// ReconcileOptions tune Reconcile.
type ReconcileOptions struct {
	// AllowDrift reports drifted units in the plan instead of failing.
	AllowDrift bool
}

// Plan is the ordered work needed to reach a Target. Reverts run before
// applies.
type Plan struct {
	Target Target

	// PendingUp is sorted by sequence ascending.
	PendingUp []*Unit
	// PendingDown is sorted by sequence descending.
	PendingDown []*Unit

	// Pending lists every unit not yet applied, whatever the target.
	Pending []*Unit
	// Applied is the ledger the plan was computed from.
	Applied []AppliedRecord

	Drifted []DriftError
	// Missing lists applied records whose files are gone.
	Missing []AppliedRecord
	// Gaps lists pending units older than the newest applied unit.
	Gaps []*Unit
}

// Empty reports whether the plan has nothing to run.
func (p *Plan) Empty() bool {
	return len(p.PendingUp) == 0 && len(p.PendingDown) == 0
}

// Reconcile compares the migration set with the ledger and resolves target
// into ordered up and down sets.
func Reconcile(set *MigrationSet, ledger []AppliedRecord, target Target, opts ReconcileOptions) (*Plan, error) {
	plan := &Plan{Target: target, Applied: ledger}
	applied := make(map[int64]AppliedRecord, len(ledger))
	var newest int64
	for _, rec := range ledger {
		applied[rec.Sequence] = rec
		if rec.Sequence > newest {
			newest = rec.Sequence
		}
		u, ok := set.Get(rec.Sequence)
		if !ok {
			plan.Missing = append(plan.Missing, rec)
			continue
		}
		if rec.Checksum != u.Checksum {
			plan.Drifted = append(plan.Drifted, DriftError{
				Sequence:         rec.Sequence,
				Name:             u.Name,
				ExpectedChecksum: rec.Checksum,
				ActualChecksum:   u.Checksum,
			})
		}
	}
	for _, u := range set.Units {
		if _, ok := applied[u.Sequence]; ok {
			continue
		}
		plan.Pending = append(plan.Pending, u)
		if u.Sequence < newest {
			plan.Gaps = append(plan.Gaps, u)
		}
	}
	if len(plan.Drifted) > 0 && !opts.AllowDrift {
		d := plan.Drifted[0]
		return nil, &d
	}

	// appliedDesc holds the ledger newest first.
	appliedDesc := make([]AppliedRecord, len(ledger))
	copy(appliedDesc, ledger)
	sort.Slice(appliedDesc, func(i, j int) bool { return appliedDesc[i].Sequence > appliedDesc[j].Sequence })

	var downs []AppliedRecord
	switch target.Kind {
	case TargetNone:
	case TargetUpAll:
		plan.PendingUp = plan.Pending
	case TargetUp:
		plan.PendingUp = plan.Pending[:clamp(target.Count, len(plan.Pending))]
	case TargetUpTo:
		for _, u := range plan.Pending {
			if u.Sequence <= target.Sequence {
				plan.PendingUp = append(plan.PendingUp, u)
			}
		}
	case TargetDown:
		downs = appliedDesc[:clamp(target.Count, len(appliedDesc))]
	case TargetDownBatches:
		downs = recentBatches(appliedDesc, target.Count)
	case TargetDownTo:
		for _, rec := range appliedDesc {
			if rec.Sequence > target.Sequence {
				downs = append(downs, rec)
			}
		}
	case TargetDownAll:
		downs = appliedDesc
	case TargetSelect, TargetRedo:
		for _, seq := range target.Revert {
			rec, ok := applied[seq]
			if !ok {
				if _, onDisk := set.Get(seq); !onDisk {
					return nil, fmt.Errorf("revert %d: %w", seq, ErrUnknownMigration)
				}
				if target.Kind == TargetRedo {
					return nil, fmt.Errorf("redo %d: migration is not applied", seq)
				}
				continue
			}
			downs = append(downs, rec)
		}
		reverting := make(map[int64]bool, len(downs))
		for _, rec := range downs {
			reverting[rec.Sequence] = true
		}
		for _, seq := range target.Apply {
			u, ok := set.Get(seq)
			if !ok {
				if rec, done := applied[seq]; done {
					return nil, &IrreversibleError{Sequence: seq, Name: rec.Name, Missing: true}
				}
				return nil, fmt.Errorf("apply %d: %w", seq, ErrUnknownMigration)
			}
			if _, done := applied[seq]; done && !reverting[seq] {
				continue
			}
			plan.PendingUp = append(plan.PendingUp, u)
		}
		plan.PendingUp = dedupUnits(plan.PendingUp)
		sortUnitsAsc(plan.PendingUp)
		sort.Slice(downs, func(i, j int) bool { return downs[i].Sequence > downs[j].Sequence })
		downs = dedupRecords(downs)
	default:
		return nil, fmt.Errorf("unknown target kind %d", target.Kind)
	}

	for _, rec := range downs {
		u, ok := set.Get(rec.Sequence)
		if !ok {
			return nil, &IrreversibleError{Sequence: rec.Sequence, Name: rec.Name, Missing: true}
		}
		if !u.Reversible() {
			return nil, &IrreversibleError{Sequence: u.Sequence, Name: u.Name}
		}
		plan.PendingDown = append(plan.PendingDown, u)
	}
	return plan, nil
}

func clamp(n, limit int) int {
	switch {
	case n < 0:
		return 0
	case n > limit:
		return limit
	}
	return n
}

// recentBatches returns the records of the n most recent batches, newest
// sequence first. Batch ids are time ordered, so the most recent batch has
// the greatest id; records without a batch id count as one oldest batch.
func recentBatches(appliedDesc []AppliedRecord, n int) []AppliedRecord {
	seen := map[string]bool{}
	var batches []string
	for _, rec := range appliedDesc {
		if !seen[rec.BatchID] {
			seen[rec.BatchID] = true
			batches = append(batches, rec.BatchID)
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i] > batches[j] })
	keep := map[string]bool{}
	for _, b := range batches[:clamp(n, len(batches))] {
		keep[b] = true
	}
	var out []AppliedRecord
	for _, rec := range appliedDesc {
		if keep[rec.BatchID] {
			out = append(out, rec)
		}
	}
	return out
}

func dedupUnits(units []*Unit) []*Unit {
	seen := map[int64]bool{}
	var out []*Unit
	for _, u := range units {
		if !seen[u.Sequence] {
			seen[u.Sequence] = true
			out = append(out, u)
		}
	}
	return out
}

// dedupRecords drops adjacent duplicates from a sorted slice.
func dedupRecords(recs []AppliedRecord) []AppliedRecord {
	var out []AppliedRecord
	for _, rec := range recs {
		if len(out) > 0 && out[len(out)-1].Sequence == rec.Sequence {
			continue
		}
		out = append(out, rec)
	}
	return out
}
