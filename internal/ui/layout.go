package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth hides the age and rotation columns below it.
	LayoutCompactWidth = 60
)

// Log pane limits.
const (
	// LogTailLines is how many lines of the console log the pane keeps.
	LogTailLines = 500
)

// Timing constants.
const (
	// DefaultUIInterval is how often the TUI re-reads the store. Polling the
	// gateway is the scheduler's job; this only redraws.
	DefaultUIInterval = 250 * time.Millisecond

	// NoticeTTL is how long an info notice stays in the status line.
	NoticeTTL = 8 * time.Second

	// ageUnreachable marks units that have not answered for this long.
	ageUnreachable = 5000
)
