package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/AfterAILab/flaps-esp/internal/console"
	"github.com/AfterAILab/flaps-esp/internal/device"
	"github.com/AfterAILab/flaps-esp/internal/poll"
	"github.com/AfterAILab/flaps-esp/internal/state"
)

// renderHeader renders the status bar: gateway identity, polling state,
// phase and connection health.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	compact := m.width < LayoutCompactWidth*2

	parts := []string{bg.Render("flaps", styles.Logo)}

	gw := strings.TrimPrefix(m.gateway, "http://")
	if gw != "" {
		parts = append(parts, bg.Render(truncate(gw, 28), styles.Text))
	}
	if id := m.snapshot.ChipID; id != "" && !compact {
		parts = append(parts, bg.Render("chip", styles.FaintText)+bg.Spaces(1)+bg.Render(id, styles.MutedText))
	}
	if clock := m.snapshot.Clock; clock != "" {
		parts = append(parts, bg.Render(clock, styles.InfoText))
	}

	pollState, label := cadenceBadge(m.status.Poll)
	parts = append(parts, styles.Badge(pollState).Render(label))

	phase := m.status.Phase.String()
	phaseLabel := phase
	if m.status.Pending > 0 {
		phaseLabel = fmt.Sprintf("%s %d", phase, m.status.Pending)
	}
	parts = append(parts, styles.Badge(phase).Render(phaseLabel))

	parts = append(parts, m.connectionSummary(styles, bg, compact))

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

// cadenceBadge names the poll state and the theme key used to color it.
func cadenceBadge(st poll.State) (string, string) {
	switch {
	case st.EditPaused:
		return "paused", "paused for edits"
	case st.Cadence == poll.Stopped || !st.Running:
		return "stopped", "polling off"
	default:
		return "idle", "poll " + st.Cadence.String()
	}
}

func (m Model) connectionSummary(styles Styles, bg BgStyle, compact bool) string {
	snap := m.snapshot
	switch {
	case snap.IsOffline():
		msg := "OFFLINE"
		if snap.LastError != nil && !compact {
			msg += " " + truncate(snap.LastError.Error(), 48)
		}
		return bg.Render(msg, styles.DangerText)
	case snap.LastError != nil:
		return bg.Render("retrying...", styles.WarningText)
	case !snap.HasDevice:
		return bg.Render("connecting...", styles.WarningText)
	default:
		return bg.Render("updated "+snap.LastUpdated.Format("15:04:05"), styles.MutedText)
	}
}

// renderStatusLine shows the commit spinner, the newest local message or the
// newest store notice, whichever is more recent.
func (m Model) renderStatusLine() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	if m.committing {
		phase := "writing"
		if m.status.Phase == console.PhaseReconciling {
			phase = "settling and re-reading"
		}
		text := m.spinner.View() + " " + phase + "..."
		return bg.FillLine(" "+bg.Render(text, styles.AccentText), m.width)
	}

	level, text, ok := m.latestMessage(time.Now())
	if !ok {
		hint := fmt.Sprintf("%d units", len(m.units.Rows))
		if m.units.Policy == device.IdentityPosition {
			hint += " keyed by position"
		}
		return bg.FillLine(" "+bg.Render(hint, styles.FaintText), m.width)
	}
	return bg.FillLine(" "+bg.Render(truncate(text, m.width-2), noticeStyle(styles, level)), m.width)
}

func (m Model) latestMessage(now time.Time) (state.NoticeLevel, string, bool) {
	notice, hasNotice := m.snapshot.LatestNotice()
	useFlash := m.flash != "" && (!hasNotice || m.flashAt.After(notice.At))
	if useFlash {
		if m.flashLevel == state.NoticeInfo && now.Sub(m.flashAt) > NoticeTTL {
			return 0, "", false
		}
		return m.flashLevel, m.flash, true
	}
	if !hasNotice {
		return 0, "", false
	}
	if notice.Level == state.NoticeInfo && now.Sub(notice.At) > NoticeTTL {
		return 0, "", false
	}
	return notice.Level, notice.At.Format("15:04:05") + " " + notice.Message, true
}

func noticeStyle(styles Styles, level state.NoticeLevel) lipgloss.Style {
	switch level {
	case state.NoticeError:
		return styles.DangerText
	case state.NoticeWarn:
		return styles.WarningText
	default:
		return styles.SuccessText
	}
}
