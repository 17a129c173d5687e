// Package config loads the flaps console configuration.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/flaps/config.toml (default)
//  3. If the config file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing/empty, use defaults
//  5. FLAPS_GATEWAY and FLAPS_LOG_LEVEL override whatever the file says
//
// Command-line flags are applied on top by the caller.
//
// # Keys
//
//	gateway        = "192.168.10.123"   # host, host:port or URL
//	scan           = "1s"               # stop | 1s | 10s
//	settle_delay   = "1s"               # clamped to 500ms..5s
//	identity       = "address"          # address | position
//	write_endpoint = "unit"             # unit (bulk) | offset (per unit)
//	max_offset     = 2038
//	history_path   = ""                 # empty disables history
//	log_path       = "~/.local/state/flaps/flaps.log"
//	log_level      = "info"
//
// Unknown values for enumerated keys are errors rather than silently
// replaced, since a wrong identity or endpoint choice would misdirect writes.
package config
