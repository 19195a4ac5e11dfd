// Package tui is the interactive terminal front end over a ratchet.Session.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bcomnes/ratchet"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Messages carrying the result of a session operation run off the UI loop.
type (
	startedMsg  struct{ err error }
	previewMsg  struct{ err error }
	executedMsg struct {
		report *ratchet.Report
		err    error
	}
	acknowledgedMsg struct{ err error }
)

// Model is the bubbletea model. While busy is set a session operation is
// running in a command and the session must not be touched.
type Model struct {
	ctx     context.Context
	session *ratchet.Session

	keys     keyMap
	help     help.Model
	spinner  spinner.Model
	viewport viewport.Model

	busy   string
	anchor int
	notice string
	fatal  error

	width, height int
	quitting      bool
}

// New returns a model over s. Init starts the session.
func New(ctx context.Context, s *ratchet.Session) Model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = cursorStyle
	return Model{
		ctx:      ctx,
		session:  s,
		keys:     defaultKeys(),
		help:     help.New(),
		spinner:  sp,
		viewport: viewport.New(80, 20),
		anchor:   -1,
		busy:     "Loading migrations",
	}
}

// Run drives s until the user quits or ctx is cancelled.
func Run(ctx context.Context, s *ratchet.Session, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(New(ctx, s), opts...).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok && m.fatal != nil {
		return m.fatal
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start())
}

func (m Model) start() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		return startedMsg{err: s.Start(ctx)}
	}
}

func (m Model) preview() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		return previewMsg{err: s.Preview(ctx)}
	}
}

func (m Model) execute() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		report, err := s.Execute(ctx)
		return executedMsg{report: report, err: err}
	}
}

func (m Model) acknowledge() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		return acknowledgedMsg{err: s.Acknowledge(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.viewport.Width = max(msg.Width-4, 20)
		m.viewport.Height = max(msg.Height-8, 5)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case startedMsg:
		m.busy = ""
		if msg.err != nil && m.session.Phase() != ratchet.PhaseError {
			m.fatal = msg.err
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case previewMsg:
		m.busy = ""
		if msg.err == nil {
			m.viewport.SetContent(m.renderScripts())
			m.viewport.GotoTop()
		}
		return m, nil

	case executedMsg:
		m.busy = ""
		if msg.err == nil && msg.report != nil {
			m.notice = summary(msg.report)
		}
		return m, nil

	case acknowledgedMsg:
		m.busy = ""
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) && (msg.String() == "ctrl+c" || m.busy == "") {
			m.quitting = true
			return m, tea.Quit
		}
		if m.busy != "" {
			return m, nil
		}
		if key.Matches(msg, m.keys.Help) {
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.session
	switch s.Phase() {
	case ratchet.PhaseBrowsing:
		m.notice = ""
		switch {
		case key.Matches(msg, m.keys.Up):
			s.Move(-1)
		case key.Matches(msg, m.keys.Down):
			s.Move(1)
		case key.Matches(msg, m.keys.Toggle):
			s.Toggle()
		case key.Matches(msg, m.keys.Mark):
			if m.anchor < 0 {
				m.anchor = s.Cursor()
			} else {
				m.anchor = -1
			}
		case key.Matches(msg, m.keys.AllUp):
			s.Select(ratchet.ActionApply, m.rangeStart(), m.rangeEnd())
			m.anchor = -1
		case key.Matches(msg, m.keys.AllDown):
			s.Select(ratchet.ActionRevert, m.rangeStart(), m.rangeEnd())
			m.anchor = -1
		case key.Matches(msg, m.keys.Clear):
			s.Select(ratchet.ActionNone, 0, len(s.Entries())-1)
			m.anchor = -1
		case key.Matches(msg, m.keys.Enter):
			m.busy = "Planning"
			return m, tea.Batch(m.spinner.Tick, m.preview())
		}

	case ratchet.PhasePreviewing:
		switch {
		case key.Matches(msg, m.keys.Enter), key.Matches(msg, m.keys.Confirm):
			_ = s.Confirm()
		case key.Matches(msg, m.keys.Back):
			s.Back()
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case ratchet.PhaseConfirming:
		switch {
		case key.Matches(msg, m.keys.Confirm):
			m.busy = "Applying migrations"
			if p := s.Plan(); p != nil && len(p.PendingUp) == 0 {
				m.busy = "Reverting migrations"
			}
			return m, tea.Batch(m.spinner.Tick, m.execute())
		case key.Matches(msg, m.keys.Back):
			s.Back()
		}

	case ratchet.PhaseError:
		if key.Matches(msg, m.keys.Enter) || key.Matches(msg, m.keys.Back) {
			m.busy = "Reloading"
			return m, tea.Batch(m.spinner.Tick, m.acknowledge())
		}
	}
	return m, nil
}

// rangeStart and rangeEnd span the marked range, or the whole listing when
// no mark is set.
func (m Model) rangeStart() int {
	if m.anchor < 0 {
		return 0
	}
	return m.anchor
}

func (m Model) rangeEnd() int {
	if m.anchor < 0 {
		return len(m.session.Entries()) - 1
	}
	return m.session.Cursor()
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("ratchet"))
	b.WriteString("\n\n")

	if m.busy != "" {
		b.WriteString(fmt.Sprintf("%s %s...\n", m.spinner.View(), m.busy))
		return b.String()
	}

	switch m.session.Phase() {
	case ratchet.PhaseBrowsing:
		b.WriteString(m.renderList())
	case ratchet.PhasePreviewing:
		b.WriteString(borderStyle.Render(m.viewport.View()))
		b.WriteString("\n")
		b.WriteString(statusBarStyle.Render("enter to continue, esc to go back"))
	case ratchet.PhaseConfirming:
		b.WriteString(m.renderConfirm())
	case ratchet.PhaseError:
		b.WriteString(errorStyle.Render("Error: " + m.session.Err().Error()))
		b.WriteString("\n")
		b.WriteString(statusBarStyle.Render("enter to continue"))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderList() string {
	entries := m.session.Entries()
	if len(entries) == 0 {
		return pendingStyle.Render("No migrations found.")
	}
	var b strings.Builder
	lo, hi := -1, -1
	if m.anchor >= 0 {
		lo, hi = min(m.anchor, m.session.Cursor()), max(m.anchor, m.session.Cursor())
	}
	for i, e := range entries {
		cursor := "  "
		if i == m.session.Cursor() {
			cursor = cursorStyle.Render("> ")
		}
		mark := " "
		if i >= lo && i <= hi {
			mark = "|"
		}
		action := ""
		if a := m.session.Action(e.Sequence); a != ratchet.ActionNone {
			action = actionStyle.Render(" [" + a.String() + "]")
		}
		b.WriteString(fmt.Sprintf("%s%s%d  %-8s %s%s\n", cursor, mark, e.Sequence, stateLabel(e), e.Name, action))
	}
	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(successStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(statusBarStyle.Render(fmt.Sprintf("%d selected", m.session.Selected())))
	return b.String()
}

func stateLabel(e ratchet.StatusEntry) string {
	label := string(e.State)
	if e.Gap {
		label += "*"
	}
	padded := fmt.Sprintf("%-8s", label)
	switch e.State {
	case ratchet.StateApplied:
		return appliedStyle.Render(padded)
	case ratchet.StateDrifted:
		return driftedStyle.Render(padded)
	case ratchet.StateMissing:
		return missingStyle.Render(padded)
	}
	return pendingStyle.Render(padded)
}

func (m Model) renderScripts() string {
	scripts := m.session.Scripts()
	if len(scripts) == 0 {
		return "Nothing to do."
	}
	var b strings.Builder
	for _, sc := range scripts {
		title := fmt.Sprintf("%s %d %s", strings.ToUpper(string(sc.Direction)), sc.Sequence, sc.Name)
		b.WriteString(lipgloss.NewStyle().Bold(true).Render(title))
		b.WriteString("\n")
		b.WriteString(sc.Script)
		b.WriteString("\n\n")
	}
	return b.String()
}

func (m Model) renderConfirm() string {
	p := m.session.Plan()
	up, down := 0, 0
	if p != nil {
		up, down = len(p.PendingUp), len(p.PendingDown)
	}
	return fmt.Sprintf("Revert %d and apply %d migrations? %s",
		down, up, actionStyle.Render("(y/n)"))
}

func summary(r *ratchet.Report) string {
	return fmt.Sprintf("Applied %d, reverted %d in %s",
		len(r.Applied()), len(r.Reverted()), r.Duration.Round(time.Millisecond))
}
