// Package logtail reads the end of the console log file and turns its JSON
// records into single display lines.
//
// Read keeps a ring buffer of maxLines strings while scanning the file once,
// so memory stays bounded by the tail size rather than the file size. A
// missing file yields no lines and no error, since the log only appears after
// the first record is written.
//
// Parse understands the records written by the logging package:
//
//	{"level":"warn","ts":"2026-03-01T09:00:00.000Z","logger":"poll","msg":"snapshot fetch failed","error":"..."}
//
// Anything else is passed through untouched in Entry.Raw. Format prints the
// time, level, logger name and message followed by the remaining fields in
// key order.
package logtail
