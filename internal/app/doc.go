// Package app is the composition root for the flaps console.
//
// # Overview
//
// Open turns a config file plus command-line overrides into a Session: the
// zap logger, the gateway client, the shared state.Store, the optional
// history recorder and the console engine that owns polling, the edit buffer
// and the commit protocol. Both the TUI and every CLI subcommand start from
// a Session so they log, validate and commit the same way.
//
// # Startup
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> config.Load()            read config.toml, apply env and flags
//	       ├─────> logging.New()            JSON log to log_path
//	       ├─────> gateway.NewClient()      HTTP client for the gateway
//	       ├─────> history.Open()           only when history_path is set
//	       ├─────> console.New()            scheduler, edit buffer, commit protocol
//	       ├─────> StartHistoryPruner()     hourly retention trim
//	       ├─────> Console.Start(scan)      first fetch and the poll timer
//	       └─────> ui.Run()                 TUI (blocks)
//
// # Error Handling
//
// Only startup errors are returned: an unreadable config, a bad gateway
// address, an unwritable log or history path. After startup every gateway
// failure lands in the store as a notice and polling continues, so the
// console rides out gateway reboots and Wi-Fi drops.
//
// # Usage
//
//	s, err := app.Open(ctx, app.Options{Gateway: "192.168.10.123"})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	if err := s.Console.Refresh(ctx); err != nil {
//		return err
//	}
//	view := s.Console.View()
package app
