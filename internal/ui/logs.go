package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AfterAILab/flaps-esp/internal/logtail"
)

// resizeLogViewport fits the viewport inside the bordered log box.
func (m *Model) resizeLogViewport() {
	// header + command bar + status line + two border rows + title
	w, h := m.width-4, m.height-6
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	if m.logViewport.Width == 0 {
		m.logViewport = viewport.New(w, h)
	}
	m.logViewport.Width = w
	m.logViewport.Height = h
	m.updateLogViewport()
}

// updateLogViewport re-renders the log entries into the viewport.
func (m *Model) updateLogViewport() {
	if m.logViewport.Width == 0 {
		return
	}
	styles := m.theme.Styles()
	lines := make([]string, 0, len(m.logEntries))
	for _, e := range m.logEntries {
		text := truncate(logtail.Format(e), m.logViewport.Width)
		lines = append(lines, levelStyle(styles, e.Level).Render(text))
	}
	m.logViewport.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.logViewport.GotoBottom()
	}
}

func levelStyle(styles Styles, level string) lipgloss.Style {
	switch level {
	case "error", "dpanic", "panic", "fatal":
		return styles.DangerText
	case "warn":
		return styles.WarningText
	case "debug":
		return styles.FaintText
	case "":
		return styles.MutedText
	default:
		return styles.Text
	}
}

// renderLogs renders the console log pane.
func (m Model) renderLogs() string {
	styles := m.theme.Styles()

	follow := "follow off"
	if m.follow {
		follow = "follow on"
	}
	title := styles.Text.Bold(true).Render("Console log") + "  " +
		styles.MutedText.Render(truncate(m.logPath, 50)) + "  " +
		styles.AccentText.Render(follow)

	body := m.logViewport.View()
	if m.logPath == "" {
		body = styles.MutedText.Render("logging is disabled (log_path is empty)")
	} else if len(m.logEntries) == 0 {
		body = styles.MutedText.Render("no log records yet")
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.BorderFocus)).
		Width(m.width - 2).
		Height(m.height - 6).
		Render(body)
	return title + "\n" + box
}

func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleFollow):
		m.follow = !m.follow
		if m.follow {
			m.logViewport.GotoBottom()
		}
		m.savePrefs()
	case key.Matches(msg, m.keys.Up):
		m.follow = false
		m.logViewport.ScrollUp(1)
	case key.Matches(msg, m.keys.Down):
		m.logViewport.ScrollDown(1)
	case key.Matches(msg, m.keys.PageUp):
		m.follow = false
		m.logViewport.HalfPageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.logViewport.HalfPageDown()
	case key.Matches(msg, m.keys.Top):
		m.follow = false
		m.logViewport.GotoTop()
	case key.Matches(msg, m.keys.Bottom):
		m.logViewport.GotoBottom()
	}
	return m, nil
}
