// Package prefs persists console preferences that the operator changes from
// inside the TUI, kept apart from config.toml so the TUI never rewrites it.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/AfterAILab/flaps-esp/internal/config"
)

// Prefs holds operator preferences.
type Prefs struct {
	Theme string `toml:"theme"`
	// FollowLogs keeps the log pane pinned to the newest line.
	FollowLogs bool `toml:"follow_logs"`
}

const (
	defaultPrefsPath = "~/.config/flaps/prefs.toml"
	DefaultTheme     = "Nightfox"
)

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Default returns the preferences used when nothing was saved.
func Default() Prefs {
	return Prefs{Theme: DefaultTheme, FollowLogs: true}
}

// Load reads preferences from path. Preferences are cosmetic, so any problem
// reading them yields the defaults instead of an error.
func Load(path string) Prefs {
	p := Default()
	resolved, err := resolvePath(path)
	if err != nil {
		return p
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return p
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return Default()
	}
	if strings.TrimSpace(p.Theme) == "" {
		p.Theme = DefaultTheme
	}
	return p
}

// Save writes preferences to path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve prefs path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultPrefsPath
	}
	return config.ExpandPath(path)
}
