package ratchet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func sessionStatus() *StatusReport {
	set := testSet(1, 2, 3, 4)
	entries := []StatusEntry{
		{Sequence: 1, Name: "unit 1", State: StateApplied, Reversible: true},
		{Sequence: 2, Name: "unit 2", State: StateApplied, Reversible: true},
		{Sequence: 3, Name: "unit 3", State: StatePending, Reversible: true},
		{Sequence: 4, Name: "unit 4", State: StatePending, Reversible: true},
		{Sequence: 5, Name: "gone", State: StateMissing},
	}
	for i := range entries[:4] {
		entries[i].Unit, _ = set.Get(entries[i].Sequence)
	}
	return &StatusReport{Entries: entries}
}

func startedSession(t *testing.T) (*Session, *MockEngine) {
	t.Helper()
	ctrl := gomock.NewController(t)
	e := NewMockEngine(ctrl)
	e.EXPECT().Status(gomock.Any(), StatusOptions{Days: 7}).Return(sessionStatus(), nil)
	s := NewSession(e, StatusOptions{Days: 7})
	require.Equal(t, PhaseIdle, s.Phase())
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, PhaseBrowsing, s.Phase())
	return s, e
}

func TestSessionToggle(t *testing.T) {
	s, _ := startedSession(t)

	// applied: none -> revert -> redo -> none
	s.Toggle()
	assert.Equal(t, ActionRevert, s.Action(1))
	s.Toggle()
	assert.Equal(t, ActionRedo, s.Action(1))
	s.Toggle()
	assert.Equal(t, ActionNone, s.Action(1))

	// pending: none -> apply -> none
	s.Move(2)
	s.Toggle()
	assert.Equal(t, ActionApply, s.Action(3))
	s.Toggle()
	assert.Equal(t, ActionNone, s.Action(3))

	// missing units take no action
	s.Move(10)
	assert.Equal(t, 4, s.Cursor())
	s.Toggle()
	assert.Equal(t, 0, s.Selected())

	s.Move(-10)
	assert.Equal(t, 0, s.Cursor())
}

func TestSessionSelectRange(t *testing.T) {
	s, _ := startedSession(t)

	s.Select(ActionApply, 4, 0)
	assert.Equal(t, 2, s.Selected())
	assert.Equal(t, ActionApply, s.Action(3))
	assert.Equal(t, ActionApply, s.Action(4))
	assert.Equal(t, ActionNone, s.Action(1))

	s.Select(ActionRevert, 0, 1)
	assert.Equal(t, 4, s.Selected())

	s.Select(ActionNone, 0, 99)
	assert.Equal(t, 0, s.Selected())
}

func TestSessionPreviewConfirmExecute(t *testing.T) {
	s, e := startedSession(t)
	ctx := context.Background()

	s.Select(ActionApply, 2, 3)
	s.Toggle() // revert unit 1 under the cursor
	s.Move(1)
	s.Toggle()
	s.Toggle() // redo unit 2

	want := Select([]int64{2, 3, 4}, []int64{2, 1})
	set := testSet(1, 2, 3, 4)
	plan := &Plan{Target: want, PendingUp: unitsOf(set, 2, 3, 4), PendingDown: unitsOf(set, 2, 1)}
	e.EXPECT().Plan(gomock.Any(), want).Return(plan, nil)

	require.NoError(t, s.Preview(ctx))
	assert.Equal(t, PhasePreviewing, s.Phase())
	assert.Same(t, plan, s.Plan())

	scripts := s.Scripts()
	require.Len(t, scripts, 5)
	assert.Equal(t, DirectionDown, scripts[0].Direction)
	assert.Equal(t, "DROP TABLE t2;", scripts[0].Script)
	assert.Equal(t, DirectionUp, scripts[4].Direction)
	assert.Equal(t, int64(4), scripts[4].Sequence)

	_, err := s.Execute(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.Confirm())
	assert.Equal(t, PhaseConfirming, s.Phase())

	report := &Report{BatchID: "b"}
	gomock.InOrder(
		e.EXPECT().Apply(gomock.Any(), want).Return(report, nil),
		e.EXPECT().Status(gomock.Any(), gomock.Any()).Return(sessionStatus(), nil),
	)
	got, err := s.Execute(ctx)
	require.NoError(t, err)
	assert.Same(t, report, got)
	assert.Same(t, report, s.LastReport())
	assert.Equal(t, PhaseBrowsing, s.Phase())
	assert.Equal(t, 0, s.Selected())
	assert.Nil(t, s.Plan())
}

func TestSessionPreviewCursorDefault(t *testing.T) {
	s, e := startedSession(t)
	s.Move(2)

	e.EXPECT().Plan(gomock.Any(), Select([]int64{3}, nil)).Return(&Plan{}, nil)
	require.NoError(t, s.Preview(context.Background()))
	assert.Equal(t, PhasePreviewing, s.Phase())
}

func TestSessionNothingSelected(t *testing.T) {
	s, e := startedSession(t)
	s.Move(4) // missing unit

	err := s.Preview(context.Background())
	require.Error(t, err)
	assert.Equal(t, PhaseError, s.Phase())
	assert.Equal(t, err, s.Err())

	e.EXPECT().Status(gomock.Any(), gomock.Any()).Return(sessionStatus(), nil)
	require.NoError(t, s.Acknowledge(context.Background()))
	assert.Equal(t, PhaseBrowsing, s.Phase())
	assert.NoError(t, s.Err())
}

func TestSessionBack(t *testing.T) {
	s, e := startedSession(t)
	e.EXPECT().Plan(gomock.Any(), gomock.Any()).Return(&Plan{}, nil)

	require.NoError(t, s.Preview(context.Background()))
	require.NoError(t, s.Confirm())
	s.Back()
	assert.Equal(t, PhasePreviewing, s.Phase())
	s.Back()
	assert.Equal(t, PhaseBrowsing, s.Phase())
	assert.Nil(t, s.Plan())
}

func TestSessionExecuteFailure(t *testing.T) {
	s, e := startedSession(t)
	ctx := context.Background()
	s.Toggle() // revert unit 1

	want := Select(nil, []int64{1})
	set := testSet(1)
	e.EXPECT().Plan(gomock.Any(), want).Return(&Plan{PendingDown: unitsOf(set, 1)}, nil)
	require.NoError(t, s.Preview(ctx))
	require.NoError(t, s.Confirm())

	boom := &DriverError{Op: "exec", Err: ErrStatementFailed, Cause: errors.New("locked")}
	e.EXPECT().Apply(gomock.Any(), want).DoAndReturn(func(context.Context, Target) (*Report, error) {
		assert.Equal(t, PhaseReverting, s.Phase())
		return &Report{}, boom
	})
	_, err := s.Execute(ctx)
	require.ErrorIs(t, err, ErrStatementFailed)
	assert.Equal(t, PhaseError, s.Phase())
	assert.Equal(t, ActionRevert, s.Action(1))

	// the selection survives acknowledging the error
	e.EXPECT().Status(gomock.Any(), gomock.Any()).Return(sessionStatus(), nil)
	require.NoError(t, s.Acknowledge(ctx))
	assert.Equal(t, ActionRevert, s.Action(1))
}

func TestSessionRefreshPrunesStaleActions(t *testing.T) {
	s, e := startedSession(t)
	s.Move(2)
	s.Toggle() // apply unit 3

	applied := sessionStatus()
	applied.Entries[2].State = StateApplied
	e.EXPECT().Plan(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))
	e.EXPECT().Status(gomock.Any(), gomock.Any()).Return(applied, nil)

	require.Error(t, s.Preview(context.Background()))
	require.NoError(t, s.Acknowledge(context.Background()))
	assert.Equal(t, ActionNone, s.Action(3))
}

func TestSessionInvalidTransitions(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := NewSession(NewMockEngine(ctrl), StatusOptions{})

	assert.ErrorIs(t, s.Preview(context.Background()), ErrInvalidTransition)
	assert.ErrorIs(t, s.Confirm(), ErrInvalidTransition)
	assert.ErrorIs(t, s.Acknowledge(context.Background()), ErrInvalidTransition)
	assert.Equal(t, PhaseIdle, s.Phase())
}
