package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/AfterAILab/flaps-esp/internal/commit"
	"github.com/AfterAILab/flaps-esp/internal/console"
	"github.com/AfterAILab/flaps-esp/internal/device"
	"github.com/AfterAILab/flaps-esp/internal/logtail"
	"github.com/AfterAILab/flaps-esp/internal/poll"
	"github.com/AfterAILab/flaps-esp/internal/prefs"
	"github.com/AfterAILab/flaps-esp/internal/reconcile"
	"github.com/AfterAILab/flaps-esp/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewUnits View = iota
	ViewLogs
)

// Console is the engine surface the TUI drives.
type Console interface {
	View() reconcile.ViewModel
	Snapshot() state.Snapshot
	Status() console.Status
	MaxOffset() int
	MarksSupported() bool
	SetCadence(cadence poll.Cadence)
	ResumePolling()
	StageOffset(key device.UnitKey, offset int) error
	StageCalibration(key device.UnitKey, mark int) error
	Discard(key device.UnitKey)
	DiscardAll()
	Commit(ctx context.Context, key device.UnitKey) (commit.Result, error)
	CommitAll(ctx context.Context) (commit.Result, error)
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Console    Console
	Gateway    string // address shown in the header
	LogPath    string
	ThemeName  string
	FollowLogs bool
	PrefsPath  string
	Interval   time.Duration
	Logger     *zap.Logger
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx       context.Context
	console   Console
	gateway   string
	logPath   string
	prefsPath string
	interval  time.Duration
	logger    *zap.Logger

	keys     keyMap
	theme    Theme
	view     View
	width    int
	height   int
	ready    bool
	showHelp bool
	modal    Modal

	snapshot state.Snapshot
	status   console.Status
	units    reconcile.ViewModel

	selected    int
	selectedKey device.UnitKey
	hasSelected bool

	committing bool
	spinner    spinner.Model

	flash      string
	flashLevel state.NoticeLevel
	flashAt    time.Time

	logViewport viewport.Model
	logEntries  []logtail.Entry
	follow      bool
}

// New creates the root model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultUIInterval
	}
	themeName := opts.ThemeName
	if themeName == "" {
		themeName = prefs.DefaultTheme
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	m := Model{
		ctx:       ctx,
		console:   opts.Console,
		gateway:   opts.Gateway,
		logPath:   opts.LogPath,
		prefsPath: opts.PrefsPath,
		interval:  interval,
		logger:    logger,
		keys:      DefaultKeyMap(),
		theme:     GetTheme(themeName),
		view:      ViewUnits,
		spinner:   sp,
		follow:    opts.FollowLogs,
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd(m.interval)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLogViewport()
		m.ready = true
		return m, nil

	case tickMsg:
		m.refresh()
		cmds := []tea.Cmd{tickCmd(m.interval)}
		if m.view == ViewLogs {
			cmds = append(cmds, readLogsCmd(m.logPath))
		}
		return m, tea.Batch(cmds...)

	case commitDoneMsg:
		m.committing = false
		m.handleCommitDone(msg)
		m.refresh()
		return m, nil

	case logsMsg:
		if msg.err != nil {
			m.setFlash(state.NoticeWarn, "read log: %v", msg.err)
			return m, nil
		}
		m.logEntries = msg.entries
		m.updateLogViewport()
		return m, nil

	case spinner.TickMsg:
		if !m.committing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.modal != nil {
		return m.updateModal(msg)
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.modal != nil {
		return m.modal.View(m.theme, m.width, m.height)
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	switch m.view {
	case ViewLogs:
		b.WriteString(m.renderLogs())
	default:
		b.WriteString(m.renderUnits())
	}
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	return b.String()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.modal != nil {
		return m.updateModal(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()
		return m, nil
	case key.Matches(msg, m.keys.ToggleLogs):
		if m.view == ViewLogs {
			m.view = ViewUnits
			return m, nil
		}
		m.view = ViewLogs
		return m, readLogsCmd(m.logPath)
	case key.Matches(msg, m.keys.Escape):
		m.view = ViewUnits
		return m, nil
	}

	if m.view == ViewLogs {
		return m.handleLogsKey(msg)
	}
	return m.handleUnitsKey(msg)
}

func (m Model) handleUnitsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveSelection(m.selected - 1)
	case key.Matches(msg, m.keys.Down):
		m.moveSelection(m.selected + 1)
	case key.Matches(msg, m.keys.Top):
		m.moveSelection(0)
	case key.Matches(msg, m.keys.Bottom):
		m.moveSelection(len(m.units.Rows) - 1)

	case key.Matches(msg, m.keys.StopPolling):
		m.console.SetCadence(poll.Stopped)
		m.setFlash(state.NoticeInfo, "polling stopped")
	case key.Matches(msg, m.keys.PollFast):
		m.console.SetCadence(poll.EverySecond)
		m.setFlash(state.NoticeInfo, "polling every second")
	case key.Matches(msg, m.keys.PollSlow):
		m.console.SetCadence(poll.Every10Seconds)
		m.setFlash(state.NoticeInfo, "polling every 10 seconds")
	case key.Matches(msg, m.keys.Resume):
		m.console.ResumePolling()
		m.setFlash(state.NoticeInfo, "polling resumed, staged edits kept")

	case key.Matches(msg, m.keys.CommitAll):
		return m.startCommit(nil)
	case key.Matches(msg, m.keys.DiscardAll):
		m.console.DiscardAll()
		m.setFlash(state.NoticeInfo, "discarded all staged edits")

	default:
		row, ok := m.selectedRow()
		if !ok {
			return m, nil
		}
		return m.handleRowKey(msg, row)
	}
	m.refresh()
	return m, nil
}

func (m Model) handleRowKey(msg tea.KeyMsg, row reconcile.Row) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.EditOffset):
		m.modal = newOffsetEditor(row.Key, row.BusAddress(), row.Unit.Offset, m.console.MaxOffset())
		return m, nil
	case key.Matches(msg, m.keys.Increment):
		m.stageOffset(row, row.Unit.Offset+1)
	case key.Matches(msg, m.keys.Decrement):
		m.stageOffset(row, row.Unit.Offset-1)
	case key.Matches(msg, m.keys.StepUp):
		m.stageOffset(row, row.Unit.Offset+10)
	case key.Matches(msg, m.keys.StepDown):
		m.stageOffset(row, row.Unit.Offset-10)
	case key.Matches(msg, m.keys.NextMark):
		m.stageMark(row, 1)
	case key.Matches(msg, m.keys.PrevMark):
		m.stageMark(row, -1)
	case key.Matches(msg, m.keys.Commit):
		if !row.Dirty {
			m.setFlash(state.NoticeWarn, "nothing staged for unit %d", row.BusAddress())
			return m, nil
		}
		k := row.Key
		return m.startCommit(&k)
	case key.Matches(msg, m.keys.Discard):
		m.console.Discard(row.Key)
	}
	m.refresh()
	return m, nil
}

func (m Model) updateModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	modal, cmd, closed := m.modal.Update(msg, m.keys)
	if !closed {
		m.modal = modal
		return m, cmd
	}
	m.modal = nil
	if ed, ok := modal.(offsetEditor); ok && ed.submitted {
		if row, found := m.units.Row(ed.key); found {
			m.stageOffset(row, ed.value)
		} else {
			m.setFlash(state.NoticeError, "unit %d left the snapshot", ed.address)
		}
		m.refresh()
	}
	return m, cmd
}

func (m *Model) stageOffset(row reconcile.Row, offset int) {
	offset = clamp(offset, 0, m.console.MaxOffset())
	if err := m.console.StageOffset(row.Key, offset); err != nil {
		m.setFlash(state.NoticeError, "stage offset: %v", err)
	}
}

func (m *Model) stageMark(row reconcile.Row, step int) {
	if !m.console.MarksSupported() {
		m.setFlash(state.NoticeWarn, "%v", console.ErrMarksUnsupported)
		return
	}
	current, ok := row.Unit.Mark()
	if !ok {
		current = 0
	}
	next := (current + step + device.NumMarks) % device.NumMarks
	if err := m.console.StageCalibration(row.Key, next); err != nil {
		m.setFlash(state.NoticeError, "stage mark: %v", err)
	}
}

func (m Model) startCommit(k *device.UnitKey) (tea.Model, tea.Cmd) {
	if m.committing {
		m.setFlash(state.NoticeWarn, "%v", console.ErrBusy)
		return m, nil
	}
	m.committing = true
	return m, tea.Batch(m.spinner.Tick, commitCmd(m.ctx, m.console, k))
}

func (m *Model) handleCommitDone(msg commitDoneMsg) {
	m.logger.Debug("commit finished", zap.String("commit", msg.result.ID), zap.Error(msg.err))
	switch {
	case msg.err == nil:
		// the console posts its own notice
	case errors.Is(msg.err, commit.ErrNothingStaged):
		m.setFlash(state.NoticeWarn, "nothing staged")
	case errors.Is(msg.err, console.ErrBusy):
		m.setFlash(state.NoticeWarn, "%v", msg.err)
	case errors.Is(msg.err, context.Canceled):
		m.setFlash(state.NoticeWarn, "commit cancelled")
	}
}

// refresh pulls the latest engine state and keeps the selection on the same
// unit when rows move.
func (m *Model) refresh() {
	if m.console == nil {
		return
	}
	m.snapshot = m.console.Snapshot()
	m.status = m.console.Status()
	m.units = m.console.View()

	if m.hasSelected {
		for i, r := range m.units.Rows {
			if r.Key == m.selectedKey {
				m.selected = i
				return
			}
		}
	}
	m.moveSelection(m.selected)
}

func (m *Model) moveSelection(idx int) {
	n := len(m.units.Rows)
	if n == 0 {
		m.selected = 0
		m.hasSelected = false
		return
	}
	m.selected = clamp(idx, 0, n-1)
	m.selectedKey = m.units.Rows[m.selected].Key
	m.hasSelected = true
}

func (m Model) selectedRow() (reconcile.Row, bool) {
	if m.selected < 0 || m.selected >= len(m.units.Rows) {
		return reconcile.Row{}, false
	}
	return m.units.Rows[m.selected], true
}

func (m *Model) setFlash(level state.NoticeLevel, format string, args ...any) {
	m.flash = fmt.Sprintf(format, args...)
	m.flashLevel = level
	m.flashAt = time.Now()
}

func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	if err := prefs.Save(m.prefsPath, prefs.Prefs{Theme: m.theme.Name, FollowLogs: m.follow}); err != nil {
		m.logger.Warn("save prefs failed", zap.Error(err))
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Messages

type tickMsg time.Time

type commitDoneMsg struct {
	result commit.Result
	err    error
}

type logsMsg struct {
	entries []logtail.Entry
	err     error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func commitCmd(ctx context.Context, c Console, k *device.UnitKey) tea.Cmd {
	return func() tea.Msg {
		if k == nil {
			res, err := c.CommitAll(ctx)
			return commitDoneMsg{result: res, err: err}
		}
		res, err := c.Commit(ctx, *k)
		return commitDoneMsg{result: res, err: err}
	}
}

func readLogsCmd(path string) tea.Cmd {
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		lines, err := logtail.Read(path, LogTailLines)
		if err != nil {
			return logsMsg{err: err}
		}
		return logsMsg{entries: logtail.ParseLines(lines)}
	}
}

// Run starts the Bubble Tea program and blocks until the operator quits or
// ctx is cancelled.
func Run(opts Options) error {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(opts.Context))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
