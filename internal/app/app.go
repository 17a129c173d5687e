package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/AfterAILab/flaps-esp/internal/config"
	"github.com/AfterAILab/flaps-esp/internal/console"
	"github.com/AfterAILab/flaps-esp/internal/gateway"
	"github.com/AfterAILab/flaps-esp/internal/history"
	"github.com/AfterAILab/flaps-esp/internal/logging"
	"github.com/AfterAILab/flaps-esp/internal/prefs"
	"github.com/AfterAILab/flaps-esp/internal/state"
	"github.com/AfterAILab/flaps-esp/internal/ui"
)

// Options configure a session. Non-empty fields override the config file.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses ~/.config/flaps/prefs.toml
	Gateway    string
	Verbose    bool // force debug logging
}

// Session is everything a command needs to talk to one gateway.
type Session struct {
	Config  config.Config
	Logger  *zap.Logger
	Client  *gateway.Client
	Store   *state.Store
	Console *console.Console
	History *history.Recorder // nil when history_path is empty

	cancel context.CancelFunc
}

// Open loads the config and builds a session. Nothing talks to the gateway
// until the caller starts the console or calls Refresh.
func Open(ctx context.Context, opts Options) (*Session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.Gateway != "" {
		cfg.Gateway = opts.Gateway
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	logger, err := logging.New(cfg.LogPath, level)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	client, err := gateway.NewClient(cfg.Gateway, cfg.WriteEndpoint)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("init gateway client: %w", err)
	}

	s := &Session{Config: cfg, Logger: logger, Client: client, Store: &state.Store{}}

	var recorder console.Recorder
	if cfg.HistoryPath != "" {
		rec, err := history.Open(cfg.HistoryPath)
		if err != nil {
			_ = logger.Sync()
			return nil, fmt.Errorf("open history: %w", err)
		}
		s.History = rec
		recorder = rec
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.Console = console.New(ctx, client, s.Store, console.Options{
		Identity:  cfg.Identity,
		MaxOffset: cfg.MaxOffset,
		Settle:    cfg.SettleDelay,
		Recorder:  recorder,
		Logger:    logger,
	})

	logger.Info("session opened",
		zap.String("gateway", client.Address()),
		zap.String("endpoint", string(cfg.WriteEndpoint)),
		zap.Stringer("identity", cfg.Identity),
		zap.Duration("settle", cfg.SettleDelay),
	)
	return s, nil
}

// Close stops polling, closes history and flushes the log.
func (s *Session) Close() error {
	s.cancel()
	s.Console.Close()
	var errs []error
	if s.History != nil {
		if err := s.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	_ = s.Logger.Sync()
	return errors.Join(errs...)
}

// Run boots the TUI until the operator quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	s, err := Open(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	userPrefs := prefs.Load(prefsPath)

	if s.History != nil {
		StartHistoryPruner(ctx, s.History, historyRetention, pruneInterval, s.Logger.Named("history"))
	}

	s.Console.Start(s.Config.Scan)

	return ui.Run(ui.Options{
		Context:    ctx,
		Console:    s.Console,
		Gateway:    s.Client.Address(),
		LogPath:    s.Config.LogPath,
		ThemeName:  userPrefs.Theme,
		FollowLogs: userPrefs.FollowLogs,
		PrefsPath:  prefsPath,
		Logger:     s.Logger.Named("ui"),
	})
}
