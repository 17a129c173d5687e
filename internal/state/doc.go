// Package state provides thread-safe state management for the flaps console.
//
// # Overview
//
// The Store holds the last good device snapshot fetched from the gateway,
// together with poll health and operator notices. Poll fetches and commit
// re-fetches write it; the TUI and the console engine read copies.
//
// # Update Semantics
//
//	// Success case: replace the device snapshot
//	store.Update(&snap, nil)
//	→ snapshot.Device = snap
//	→ snapshot.LastError = nil
//	→ snapshot.ConsecutiveFailures = 0
//
//	// Error case: keep old data, record error
//	store.Update(nil, err)
//	→ snapshot.Device = <unchanged>
//	→ snapshot.LastError = err
//	→ snapshot.ConsecutiveFailures++
//
// A failed poll therefore never blanks the unit table; the console keeps
// showing the last good view with the failure beside it. Two consecutive
// failures mark the gateway offline.
//
// Fetches may complete out of order. The store keeps whichever completed
// last; staged edits live elsewhere and are merged on read, so an older
// snapshot landing late cannot overwrite an edit.
//
// # Notices
//
// Notify appends operator-facing messages (failed commits, rejected writes,
// refetch failures). The newest fifty are kept.
//
// # Copy Semantics
//
// Snapshot deep-copies units, notices and the last error so callers may
// mutate what they receive.
package state
