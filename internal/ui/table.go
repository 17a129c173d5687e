package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AfterAILab/flaps-esp/internal/device"
	"github.com/AfterAILab/flaps-esp/internal/reconcile"
)

// unitColumn is one column of the unit table.
type unitColumn struct {
	label string
	width int
	right bool
	wide  bool // hidden in compact layouts
}

var unitColumns = []unitColumn{
	{label: "", width: 2},
	{label: "Unit", width: 5, right: true},
	{label: "Mark", width: 5},
	{label: "Offset", width: 13, right: true},
	{label: "Rot", width: 4, wide: true},
	{label: "Age", width: 8, right: true, wide: true},
	{label: "", width: 8},
}

// unitCells renders the plain text of one row, column by column.
func unitCells(r reconcile.Row, selected bool) []string {
	marker := "  "
	if selected {
		marker = "▶ "
	}

	mark := "-"
	if v, ok := r.Unit.Mark(); ok {
		mark = device.MarkLabel(v)
		if fetched, had := r.Fetched.Mark(); !had || fetched != v {
			mark += "*"
		}
	}

	offset := strconv.Itoa(r.Fetched.Offset)
	if r.Pending.Offset != nil && *r.Pending.Offset != r.Fetched.Offset {
		offset = fmt.Sprintf("%d→%d", r.Fetched.Offset, *r.Pending.Offset)
	}

	rot := ""
	if r.Fetched.Rotating {
		rot = "●"
	}

	dirty := ""
	if r.Dirty {
		dirty = "staged"
	}

	return []string{
		marker,
		strconv.Itoa(r.BusAddress()),
		mark,
		offset,
		rot,
		formatAge(r.Fetched.LastResponseAgeMillis),
		dirty,
	}
}

func layoutCells(cells []string, compact bool) []string {
	out := make([]string, 0, len(cells))
	for i, c := range cells {
		col := unitColumns[i]
		if compact && col.wide {
			continue
		}
		if col.right {
			out = append(out, padLeft(c, col.width))
		} else {
			out = append(out, padRight(c, col.width))
		}
	}
	return out
}

// renderUnits renders the unit table, scrolled so the selection is visible.
func (m Model) renderUnits() string {
	styles := m.theme.Styles()
	height := m.height - 4 // header, command bar, column titles, status line
	if height < 1 {
		height = 1
	}

	if !m.snapshot.HasDevice {
		msg := "waiting for the first snapshot"
		if m.snapshot.LastError != nil {
			msg = "no snapshot yet: " + m.snapshot.LastError.Error()
		}
		return padBlock(styles.MutedText.Render(" "+msg), height+1)
	}
	if len(m.units.Rows) == 0 {
		return padBlock(styles.MutedText.Render(" gateway reports no units"), height+1)
	}

	compact := m.width < LayoutCompactWidth
	labels := make([]string, len(unitColumns))
	for i, c := range unitColumns {
		labels[i] = c.label
	}
	var b strings.Builder
	b.WriteString(styles.FaintText.Bold(true).Render(strings.Join(layoutCells(labels, compact), " ")))
	b.WriteString("\n")

	start := 0
	if m.selected >= height {
		start = m.selected - height + 1
	}
	end := start + height
	if end > len(m.units.Rows) {
		end = len(m.units.Rows)
	}

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		r := m.units.Rows[i]
		cells := layoutCells(unitCells(r, i == m.selected), compact)
		if i == m.selected {
			lines = append(lines, styles.Selected.Width(m.width).Render(strings.Join(cells, " ")))
			continue
		}
		lines = append(lines, m.styleRow(styles, r, cells, compact))
	}
	b.WriteString(padBlock(strings.Join(lines, "\n"), height))
	return b.String()
}

func (m Model) styleRow(styles Styles, r reconcile.Row, cells []string, compact bool) string {
	out := make([]string, len(cells))
	copy(out, cells)
	// cell positions after compact filtering: marker, unit, mark, offset, [rot, age], dirty
	out[1] = styles.Text.Render(cells[1])
	out[2] = styles.AccentText.Render(cells[2])
	if r.Dirty {
		out[3] = styles.StateText("dirty").Render(cells[3])
	} else {
		out[3] = styles.Text.Render(cells[3])
	}
	last := len(cells) - 1
	if !compact {
		out[4] = styles.StateText("rotating").Render(cells[4])
		if r.Fetched.LastResponseAgeMillis >= ageUnreachable {
			out[5] = styles.DangerText.Render(cells[5])
		} else {
			out[5] = styles.MutedText.Render(cells[5])
		}
	}
	out[last] = styles.StateText("dirty").Render(cells[last])
	return strings.Join(out, " ")
}

// padBlock pads s with blank lines to height lines.
func padBlock(s string, height int) string {
	n := strings.Count(s, "\n") + 1
	if n >= height {
		return s
	}
	return s + strings.Repeat("\n", height-n)
}
