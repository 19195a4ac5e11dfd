package ratchet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Direction tells whether a unit is being applied or reverted.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// EventKind identifies a progress event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventSucceeded
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event reports progress on one unit of a run.
type Event struct {
	Kind      EventKind
	Unit      *Unit
	Direction Direction
	BatchID   string
	Duration  time.Duration // set for EventSucceeded and EventFailed
	Err       error         // set for EventFailed
}

// Observer receives events synchronously, in order, on the executing
// goroutine.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// UnitResult is one unit that completed and was committed.
type UnitResult struct {
	Sequence  int64
	Name      string
	Direction Direction
	Duration  time.Duration
}

// Report summarises a run.
type Report struct {
	BatchID string
	Plan    *Plan
	DryRun  bool

	// Completed lists the committed units in execution order.
	Completed []UnitResult
	Duration  time.Duration
}

// Applied returns the sequences applied by the run.
func (r *Report) Applied() []int64 { return r.sequences(DirectionUp) }

// Reverted returns the sequences reverted by the run.
func (r *Report) Reverted() []int64 { return r.sequences(DirectionDown) }

func (r *Report) sequences(dir Direction) []int64 {
	var out []int64
	for _, c := range r.Completed {
		if c.Direction == dir {
			out = append(out, c.Sequence)
		}
	}
	return out
}

type step struct {
	unit *Unit
	dir  Direction
}

// Executor runs plans against a Driver and records the outcome through a
// Store. The caller holds the migration lock.
type Executor struct {
	driver    Driver
	store     *Store
	log       logrus.FieldLogger
	observers []Observer
	now       func() time.Time
}

// NewExecutor returns an Executor. A nil logger uses the logrus standard
// logger.
func NewExecutor(d Driver, store *Store, log logrus.FieldLogger, observers ...Observer) *Executor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{driver: d, store: store, log: log, observers: observers, now: time.Now}
}

// Execute runs the plan's reverts, then its applies.
//
// Statements run on a context detached from ctx, so a cancellation lets the
// running statement finish. The executor then stops before the next unit,
// commits what completed and returns ErrCancelled.
//
// Engines with transactional DDL run the whole plan in one transaction;
// others commit each unit together with its ledger entry.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*Report, error) {
	batch, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate batch id: %w", err)
	}
	report := &Report{BatchID: batch.String(), Plan: plan}
	if plan.Empty() {
		return report, nil
	}

	var steps []step
	for _, u := range plan.PendingDown {
		steps = append(steps, step{unit: u, dir: DirectionDown})
	}
	for _, u := range plan.PendingUp {
		steps = append(steps, step{unit: u, dir: DirectionUp})
	}

	start := e.now()
	defer func() { report.Duration = e.now().Sub(start) }()

	dbCtx := context.WithoutCancel(ctx)
	perUnit := !e.driver.TransactionalDDL()
	if !perUnit {
		if err := e.driver.Begin(dbCtx); err != nil {
			return report, err
		}
	}

	var done []UnitResult
	cancelled := false
	for _, s := range steps {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if perUnit {
			if err := e.driver.Begin(dbCtx); err != nil {
				report.Completed = done
				return report, withUnit(err, s.unit.Sequence)
			}
		}

		res, err := e.runStep(dbCtx, report.BatchID, s)
		if err == nil && perUnit {
			if err = e.driver.Commit(); err != nil {
				err = withUnit(err, s.unit.Sequence)
			}
		}
		if err != nil {
			e.emit(Event{Kind: EventFailed, Unit: s.unit, Direction: s.dir, BatchID: report.BatchID,
				Duration: res.Duration, Err: err})
			e.abort()
			if perUnit {
				report.Completed = done
			}
			return report, err
		}
		e.emit(Event{Kind: EventSucceeded, Unit: s.unit, Direction: s.dir, BatchID: report.BatchID,
			Duration: res.Duration})
		done = append(done, res)
	}

	if !perUnit {
		if err := e.driver.Commit(); err != nil {
			e.store.Invalidate()
			return report, err
		}
	}
	report.Completed = done

	if cancelled {
		e.log.WithFields(logrus.Fields{
			"batch":     report.BatchID,
			"completed": len(done),
			"remaining": len(steps) - len(done),
		}).Warn("run cancelled, stopped before the next migration")
		return report, fmt.Errorf("%w: %d of %d migrations completed", ErrCancelled, len(done), len(steps))
	}
	return report, nil
}

// runStep executes one unit's script and then its ledger change, both on
// the open transaction.
func (e *Executor) runStep(ctx context.Context, batchID string, s step) (UnitResult, error) {
	u := s.unit
	res := UnitResult{Sequence: u.Sequence, Name: u.Name, Direction: s.dir}
	e.emit(Event{Kind: EventStarted, Unit: u, Direction: s.dir, BatchID: batchID})

	script := u.UpScript
	if s.dir == DirectionDown {
		script = u.DownScript
	}
	started := e.now()
	_, err := e.driver.Exec(ctx, script)
	if err == nil {
		if s.dir == DirectionUp {
			err = e.store.Record(ctx, AppliedRecord{
				Sequence:  u.Sequence,
				Name:      u.Name,
				Checksum:  u.Checksum,
				AppliedAt: e.now().UTC(),
				BatchID:   batchID,
			})
		} else {
			err = e.store.Unrecord(ctx, u.Sequence)
		}
	}
	res.Duration = e.now().Sub(started)
	if err != nil {
		return res, withUnit(err, u.Sequence)
	}
	return res, nil
}

// abort rolls back the open transaction after a failure.
func (e *Executor) abort() {
	if err := e.driver.Rollback(); err != nil {
		e.log.WithError(err).Error("rollback failed")
	}
	e.store.Invalidate()
}

// emit delivers ev to the log and every observer. A panicking observer is
// logged and skipped.
func (e *Executor) emit(ev Event) {
	fields := logrus.Fields{
		"sequence":  ev.Unit.Sequence,
		"name":      ev.Unit.Name,
		"direction": ev.Direction,
		"batch":     ev.BatchID,
	}
	switch ev.Kind {
	case EventStarted:
		e.log.WithFields(fields).Debug("migration started")
	case EventSucceeded:
		fields["duration"] = ev.Duration
		e.log.WithFields(fields).Info("migration succeeded")
	case EventFailed:
		fields["duration"] = ev.Duration
		e.log.WithFields(fields).WithError(ev.Err).Error("migration failed")
	}

	for _, o := range e.observers {
		e.notify(o, ev)
	}
}

func (e *Executor) notify(o Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(logrus.Fields{
				"sequence": ev.Unit.Sequence,
				"event":    ev.Kind.String(),
				"panic":    r,
			}).Error("observer panicked")
		}
	}()
	o.OnEvent(ev)
}
