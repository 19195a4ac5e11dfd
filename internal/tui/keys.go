package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Toggle   key.Binding
	Mark     key.Binding
	AllUp    key.Binding
	AllDown  key.Binding
	Clear    key.Binding
	Enter    key.Binding
	Confirm  key.Binding
	Back     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Toggle:   key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "cycle action")),
		Mark:     key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "mark range")),
		AllUp:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "apply all pending")),
		AllDown:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "revert all applied")),
		Clear:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
		Enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "preview / continue")),
		Confirm:  key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "run")),
		Back:     key.NewBinding(key.WithKeys("esc", "n"), key.WithHelp("esc", "back")),
		PageUp:   key.NewBinding(key.WithKeys("pgup", "b"), key.WithHelp("pgup", "scroll up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown", "f"), key.WithHelp("pgdn", "scroll down")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Enter, k.Back, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown},
		{k.Toggle, k.Mark, k.AllUp, k.AllDown, k.Clear},
		{k.Enter, k.Confirm, k.Back, k.Help, k.Quit},
	}
}
