package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the console.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	ToggleLogs key.Binding
	Escape     key.Binding

	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Editing
	EditOffset key.Binding
	Increment  key.Binding
	Decrement  key.Binding
	StepUp     key.Binding
	StepDown   key.Binding
	NextMark   key.Binding
	PrevMark   key.Binding
	Commit     key.Binding
	CommitAll  key.Binding
	Discard    key.Binding
	DiscardAll key.Binding

	// Polling
	StopPolling key.Binding
	PollFast    key.Binding
	PollSlow    key.Binding
	Resume      key.Binding

	// Logs
	ToggleFollow key.Binding
	PageUp       key.Binding
	PageDown     key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit:       key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "Quit")),
		Help:       key.NewBinding(key.WithKeys("?", "h"), key.WithHelp("?", "Toggle help")),
		CycleTheme: key.NewBinding(key.WithKeys("T"), key.WithHelp("T", "Cycle theme")),
		ToggleLogs: key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "Console log")),
		Escape:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "Back to units")),

		Up:     key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/up", "Move up")),
		Down:   key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/down", "Move down")),
		Top:    key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "First unit")),
		Bottom: key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "Last unit")),

		EditOffset: key.NewBinding(key.WithKeys("e", "o"), key.WithHelp("e", "Type offset")),
		Increment:  key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "Offset +1")),
		Decrement:  key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "Offset -1")),
		StepUp:     key.NewBinding(key.WithKeys(">", "."), key.WithHelp(">", "Offset +10")),
		StepDown:   key.NewBinding(key.WithKeys("<", ","), key.WithHelp("<", "Offset -10")),
		NextMark:   key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "Next mark")),
		PrevMark:   key.NewBinding(key.WithKeys("["), key.WithHelp("[", "Previous mark")),
		Commit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "Commit unit")),
		CommitAll:  key.NewBinding(key.WithKeys("C"), key.WithHelp("C", "Commit all")),
		Discard:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "Discard unit")),
		DiscardAll: key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "Discard all")),

		StopPolling: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "Stop polling")),
		PollFast:    key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "Poll every 1s")),
		PollSlow:    key.NewBinding(key.WithKeys("0"), key.WithHelp("0", "Poll every 10s")),
		Resume:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "Resume polling")),

		ToggleFollow: key.NewBinding(key.WithKeys(" ", "f"), key.WithHelp("space", "Toggle follow")),
		PageUp:       key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("ctrl+u", "Page up")),
		PageDown:     key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("ctrl+d", "Page down")),
	}
}

// ShortHelp returns key bindings for the command bar.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.EditOffset, k.NextMark, k.Commit, k.CommitAll, k.Discard, k.ToggleLogs, k.Help, k.Quit}
}

// FullHelp returns key bindings grouped for the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.Bottom},
		{k.EditOffset, k.Increment, k.Decrement, k.StepUp, k.StepDown, k.NextMark, k.PrevMark},
		{k.Commit, k.CommitAll, k.Discard, k.DiscardAll},
		{k.StopPolling, k.PollFast, k.PollSlow, k.Resume},
		{k.ToggleLogs, k.ToggleFollow, k.PageUp, k.PageDown},
		{k.CycleTheme, k.Help, k.Quit},
	}
}

var helpGroupTitles = []string{"Navigation", "Edit", "Commit", "Polling", "Log", "General"}
