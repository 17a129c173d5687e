// Package ui implements the flaps console TUI on Bubble Tea.
//
// The model never talks to the gateway itself. It drives a Console (the
// engine in package console) and re-reads the engine state every
// DefaultUIInterval; the engine's own scheduler decides when the gateway is
// polled. Commits block for the settle delay, so they run as tea.Cmds and
// report back with a commitDoneMsg while a spinner shows in the status line.
//
// # Views
//
//   - Units: one row per flap unit with its address, calibration mark,
//     offset (fetched→staged when an edit is pending), rotation, and the age
//     of its last bus response.
//   - Console log: the tail of the zap log file, re-read on every tick while
//     visible.
//
// Overlays (help, offset editor) implement Modal or render over the whole
// screen and swallow keys until closed.
//
// # Themes
//
// Nightfox, Kanagawa and Slate. T cycles them and the choice is saved to the
// prefs file together with the log follow toggle.
package ui
