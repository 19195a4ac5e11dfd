package ratchet

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

//go:generate go run go.uber.org/mock/mockgen -package ratchet -destination mock_engine_test.go github.com/bcomnes/ratchet Engine

// Engine is what an interactive Session drives. *Migrator implements it.
type Engine interface {
	Status(ctx context.Context, opts StatusOptions) (*StatusReport, error)
	Plan(ctx context.Context, target Target) (*Plan, error)
	Apply(ctx context.Context, target Target) (*Report, error)
}

var _ Engine = (*Migrator)(nil)

// ErrInvalidTransition is returned when a session operation is not allowed
// in the current phase.
var ErrInvalidTransition = errors.New("invalid session transition")

// Phase is the state of an interactive session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseBrowsing
	PhasePreviewing
	PhaseConfirming
	PhaseApplying
	PhaseReverting
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseBrowsing:
		return "browsing"
	case PhasePreviewing:
		return "previewing"
	case PhaseConfirming:
		return "confirming"
	case PhaseApplying:
		return "applying"
	case PhaseReverting:
		return "reverting"
	case PhaseError:
		return "error"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Action is what the user wants done to one unit.
type Action int

const (
	ActionNone Action = iota
	ActionApply
	ActionRevert
	ActionRedo
)

func (a Action) String() string {
	switch a {
	case ActionApply:
		return "apply"
	case ActionRevert:
		return "revert"
	case ActionRedo:
		return "redo"
	}
	return "none"
}

// ScriptPreview is one script a previewed plan would run.
type ScriptPreview struct {
	Sequence  int64
	Name      string
	Direction Direction
	Script    string
}

// Session sequences browsing, selection, preview and execution for
// interactive mode. It holds no ledger state of its own; every listing and
// plan comes from the Engine. A Session is not safe for concurrent use.
type Session struct {
	engine Engine
	opts   StatusOptions

	phase   Phase
	cursor  int
	entries []StatusEntry
	actions map[int64]Action

	target Target
	plan   *Plan
	report *Report
	err    error
}

// NewSession returns an idle session over e. opts filter the listing.
func NewSession(e Engine, opts StatusOptions) *Session {
	return &Session{engine: e, opts: opts, actions: map[int64]Action{}}
}

func (s *Session) Phase() Phase { return s.phase }
func (s *Session) Cursor() int { return s.cursor }
func (s *Session) Entries() []StatusEntry { return s.entries }
func (s *Session) Plan() *Plan { return s.plan }
func (s *Session) LastReport() *Report { return s.report }
func (s *Session) Err() error { return s.err }
func (s *Session) Action(seq int64) Action { return s.actions[seq] }

// Selected returns the number of units with an action.
func (s *Session) Selected() int { return len(s.actions) }

// Start loads the listing and enters browsing.
func (s *Session) Start(ctx context.Context) error {
	if s.phase != PhaseIdle {
		return s.invalid("start")
	}
	return s.refresh(ctx)
}

// Move shifts the cursor by delta, clamped to the listing.
func (s *Session) Move(delta int) {
	if s.phase != PhaseBrowsing || len(s.entries) == 0 {
		return
	}
	s.cursor = clampIndex(s.cursor+delta, len(s.entries))
}

// Toggle cycles the action of the unit under the cursor. Pending units
// alternate between none and apply; applied units cycle none, revert, redo.
func (s *Session) Toggle() {
	if s.phase != PhaseBrowsing || len(s.entries) == 0 {
		return
	}
	e := s.entries[s.cursor]
	s.set(e, nextAction(e, s.actions[e.Sequence]))
}

func nextAction(e StatusEntry, cur Action) Action {
	switch e.State {
	case StatePending:
		if cur == ActionApply {
			return ActionNone
		}
		return ActionApply
	case StateApplied, StateDrifted:
		switch cur {
		case ActionNone:
			return ActionRevert
		case ActionRevert:
			return ActionRedo
		}
		return ActionNone
	}
	return ActionNone
}

// Select sets action on every entry between indexes from and to inclusive
// that it applies to. ActionNone clears them.
func (s *Session) Select(action Action, from, to int) {
	if s.phase != PhaseBrowsing || len(s.entries) == 0 {
		return
	}
	if from > to {
		from, to = to, from
	}
	from = clampIndex(from, len(s.entries))
	to = clampIndex(to, len(s.entries))
	for _, e := range s.entries[from : to+1] {
		if action == ActionNone || allowed(e, action) {
			s.set(e, action)
		}
	}
}

func allowed(e StatusEntry, a Action) bool {
	switch e.State {
	case StatePending:
		return a == ActionApply
	case StateApplied, StateDrifted:
		return a == ActionRevert || a == ActionRedo
	}
	return false
}

func (s *Session) set(e StatusEntry, a Action) {
	if a == ActionNone {
		delete(s.actions, e.Sequence)
		return
	}
	s.actions[e.Sequence] = a
}

// Preview builds the plan for the selected actions, or for the unit under
// the cursor when nothing is selected.
func (s *Session) Preview(ctx context.Context) error {
	if s.phase != PhaseBrowsing {
		return s.invalid("preview")
	}
	actions := s.actions
	if len(actions) == 0 && len(s.entries) > 0 {
		e := s.entries[s.cursor]
		if a := nextAction(e, ActionNone); a != ActionNone {
			actions = map[int64]Action{e.Sequence: a}
		}
	}
	if len(actions) == 0 {
		return s.fail(fmt.Errorf("nothing selected"))
	}

	target := targetFor(actions)
	plan, err := s.engine.Plan(ctx, target)
	if err != nil {
		return s.fail(err)
	}
	s.target = target
	s.plan = plan
	s.phase = PhasePreviewing
	return nil
}

func targetFor(actions map[int64]Action) Target {
	var apply, revert []int64
	for seq, a := range actions {
		switch a {
		case ActionApply:
			apply = append(apply, seq)
		case ActionRevert:
			revert = append(revert, seq)
		case ActionRedo:
			apply = append(apply, seq)
			revert = append(revert, seq)
		}
	}
	sort.Slice(apply, func(i, j int) bool { return apply[i] < apply[j] })
	sort.Slice(revert, func(i, j int) bool { return revert[i] > revert[j] })
	return Select(apply, revert)
}

// Scripts returns the scripts of the previewed plan in execution order.
func (s *Session) Scripts() []ScriptPreview {
	if s.plan == nil {
		return nil
	}
	var out []ScriptPreview
	for _, u := range s.plan.PendingDown {
		out = append(out, ScriptPreview{Sequence: u.Sequence, Name: u.Name, Direction: DirectionDown, Script: u.DownScript})
	}
	for _, u := range s.plan.PendingUp {
		out = append(out, ScriptPreview{Sequence: u.Sequence, Name: u.Name, Direction: DirectionUp, Script: u.UpScript})
	}
	return out
}

// Confirm accepts the previewed plan.
func (s *Session) Confirm() error {
	if s.phase != PhasePreviewing {
		return s.invalid("confirm")
	}
	s.phase = PhaseConfirming
	return nil
}

// Execute runs the confirmed plan. On success the selection is cleared and
// the session returns to browsing with a fresh listing.
func (s *Session) Execute(ctx context.Context) (*Report, error) {
	if s.phase != PhaseConfirming {
		return nil, s.invalid("execute")
	}
	s.phase = PhaseApplying
	if s.plan != nil && len(s.plan.PendingUp) == 0 {
		s.phase = PhaseReverting
	}

	report, err := s.engine.Apply(ctx, s.target)
	s.report = report
	s.plan = nil
	if err != nil {
		return report, s.fail(err)
	}
	s.actions = map[int64]Action{}
	if err := s.refresh(ctx); err != nil {
		return report, err
	}
	return report, nil
}

// Back steps out of previewing or confirming.
func (s *Session) Back() {
	switch s.phase {
	case PhaseConfirming:
		s.phase = PhasePreviewing
	case PhasePreviewing:
		s.plan = nil
		s.phase = PhaseBrowsing
	}
}

// Acknowledge clears an error and returns to browsing with a fresh listing.
func (s *Session) Acknowledge(ctx context.Context) error {
	if s.phase != PhaseError {
		return s.invalid("acknowledge")
	}
	s.err = nil
	return s.refresh(ctx)
}

func (s *Session) refresh(ctx context.Context) error {
	status, err := s.engine.Status(ctx, s.opts)
	if err != nil {
		return s.fail(err)
	}
	s.entries = status.Entries
	s.cursor = clampIndex(s.cursor, len(s.entries))

	present := make(map[int64]StatusEntry, len(s.entries))
	for _, e := range s.entries {
		present[e.Sequence] = e
	}
	for seq, a := range s.actions {
		if e, ok := present[seq]; !ok || !allowed(e, a) {
			delete(s.actions, seq)
		}
	}
	s.phase = PhaseBrowsing
	return nil
}

func (s *Session) fail(err error) error {
	s.err = err
	s.phase = PhaseError
	return err
}

func (s *Session) invalid(op string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, op, s.phase)
}

func clampIndex(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
