package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AfterAILab/flaps-esp/internal/device"
)

// Modal is the interface for modal dialogs.
// Update returns the updated modal, a command, and whether the modal closed.
type Modal interface {
	Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool)
	View(theme Theme, width, height int) string
}

// offsetEditor asks for an exact offset for one unit.
type offsetEditor struct {
	key       device.UnitKey
	address   int
	current   int
	maxOffset int
	input     textinput.Model
	err       string

	submitted bool
	value     int
}

func newOffsetEditor(key device.UnitKey, address, current, maxOffset int) offsetEditor {
	ti := textinput.New()
	ti.Placeholder = strconv.Itoa(current)
	ti.CharLimit = 5
	ti.Width = 8
	ti.SetValue(strconv.Itoa(current))
	ti.CursorEnd()
	ti.Focus()
	return offsetEditor{key: key, address: address, current: current, maxOffset: maxOffset, input: ti}
}

func (e offsetEditor) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(km, keys.Escape):
			return e, nil, true
		case key.Matches(km, keys.Commit):
			value, err := parseOffset(e.input.Value(), e.maxOffset)
			if err != nil {
				e.err = err.Error()
				return e, nil, false
			}
			e.submitted = true
			e.value = value
			return e, nil, true
		}
	}
	var cmd tea.Cmd
	e.input, cmd = e.input.Update(msg)
	e.err = ""
	return e, cmd, false
}

func (e offsetEditor) View(theme Theme, width, height int) string {
	styles := theme.Styles()
	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render(fmt.Sprintf("Offset for unit %d", e.address)))
	b.WriteString("\n\n")
	b.WriteString(styles.MutedText.Render(fmt.Sprintf("current %d, allowed 0..%d", e.current, e.maxOffset)))
	b.WriteString("\n\n")
	b.WriteString(e.input.View())
	b.WriteString("\n\n")
	if e.err != "" {
		b.WriteString(styles.DangerText.Render(e.err))
	} else {
		b.WriteString(styles.FaintText.Render("enter to stage, esc to cancel"))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.BorderFocus)).
		Padding(1, 2).
		Width(36).
		Render(b.String())
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

func parseOffset(text string, maxOffset int) (int, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, fmt.Errorf("enter a number")
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", trimmed)
	}
	if value < 0 || value > maxOffset {
		return 0, fmt.Errorf("offset must be within 0..%d", maxOffset)
	}
	return value, nil
}
