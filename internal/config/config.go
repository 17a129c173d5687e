package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/AfterAILab/flaps-esp/internal/commit"
	"github.com/AfterAILab/flaps-esp/internal/device"
	"github.com/AfterAILab/flaps-esp/internal/gateway"
	"github.com/AfterAILab/flaps-esp/internal/poll"
)

// Config holds the console settings.
type Config struct {
	Gateway       string
	Scan          poll.Cadence
	SettleDelay   time.Duration
	Identity      device.IdentityPolicy
	WriteEndpoint gateway.Endpoint
	MaxOffset     int
	HistoryPath   string // empty disables history
	LogPath       string
	LogLevel      string
}

const (
	defaultConfigPath = "~/.config/flaps/config.toml"
	defaultLogPath    = "~/.local/state/flaps/flaps.log"
	defaultLogLevel   = "info"

	envGateway  = "FLAPS_GATEWAY"
	envLogLevel = "FLAPS_LOG_LEVEL"
)

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return defaultConfigPath
}

// Default returns the settings used when no config file exists.
func Default() Config {
	return Config{
		Gateway:       gateway.DefaultAddress,
		Scan:          poll.EverySecond,
		SettleDelay:   commit.DefaultSettle,
		Identity:      device.IdentityAddress,
		WriteEndpoint: gateway.EndpointUnit,
		MaxOffset:     device.DefaultMaxOffset,
		LogPath:       mustExpand(defaultLogPath),
		LogLevel:      defaultLogLevel,
	}
}

// Load locates and parses the config, falling back to defaults when missing.
// FLAPS_GATEWAY and FLAPS_LOG_LEVEL override the file.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := apply(&cfg, bytes); err != nil {
			return Config{}, err
		}
	}

	if v := strings.TrimSpace(os.Getenv(envGateway)); v != "" {
		cfg.Gateway = v
	}
	if v := strings.TrimSpace(os.Getenv(envLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

func apply(cfg *Config, data []byte) error {
	var raw struct {
		Gateway       string `toml:"gateway"`
		Scan          string `toml:"scan"`
		SettleDelay   string `toml:"settle_delay"`
		Identity      string `toml:"identity"`
		WriteEndpoint string `toml:"write_endpoint"`
		MaxOffset     int    `toml:"max_offset"`
		HistoryPath   string `toml:"history_path"`
		LogPath       string `toml:"log_path"`
		LogLevel      string `toml:"log_level"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.Gateway); v != "" {
		cfg.Gateway = v
	}

	if v := strings.TrimSpace(raw.Scan); v != "" {
		cadence, err := poll.ParseCadence(v)
		if err != nil {
			return fmt.Errorf("config scan: %w", err)
		}
		cfg.Scan = cadence
	}

	if v := strings.TrimSpace(raw.SettleDelay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config settle_delay: %w", err)
		}
		cfg.SettleDelay = commit.ClampSettle(d)
	}

	identity, err := device.ParseIdentityPolicy(strings.TrimSpace(raw.Identity))
	if err != nil {
		return fmt.Errorf("config identity: %w", err)
	}
	cfg.Identity = identity

	endpoint, err := gateway.ParseEndpoint(raw.WriteEndpoint)
	if err != nil {
		return fmt.Errorf("config write_endpoint: %w", err)
	}
	cfg.WriteEndpoint = endpoint

	if raw.MaxOffset < 0 {
		return fmt.Errorf("config max_offset: %d is negative", raw.MaxOffset)
	}
	if raw.MaxOffset > 0 {
		cfg.MaxOffset = raw.MaxOffset
	}

	if v := strings.TrimSpace(raw.HistoryPath); v != "" {
		cfg.HistoryPath = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogPath); v != "" {
		cfg.LogPath = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading ~ and makes path absolute.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
