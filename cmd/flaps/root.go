package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AfterAILab/flaps-esp/internal/app"
	"github.com/AfterAILab/flaps-esp/internal/console"
	"github.com/AfterAILab/flaps-esp/internal/reconcile"
)

var (
	configPath  string
	prefsPath   string
	gatewayAddr string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "flaps",
	Short: "Operator console for a flap display gateway",
	Long: `flaps talks to the HTTP gateway that drives a row of split-flap units.

Run without arguments to open the interactive console: it polls the units,
lets you stage offset and calibration edits and commits them in one batch.
The subcommands do the same work one step at a time for scripts.

The gateway address comes from --gateway, then FLAPS_GATEWAY, then the
config file (~/.config/flaps/config.toml), then 192.168.10.123.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Run(cmd.Context(), sessionOptions())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.config/flaps/config.toml)")
	rootCmd.PersistentFlags().StringVar(&prefsPath, "prefs", "", "preferences file (default ~/.config/flaps/prefs.toml)")
	rootCmd.PersistentFlags().StringVarP(&gatewayAddr, "gateway", "g", "", "gateway address or URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

func sessionOptions() app.Options {
	return app.Options{
		ConfigPath: configPath,
		PrefsPath:  prefsPath,
		Gateway:    gatewayAddr,
		Verbose:    verbose,
	}
}

// withSession opens a session for a one-shot command and closes it after fn.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *app.Session) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := app.Open(ctx, sessionOptions())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, s)
}

// loadUnits fetches one snapshot and returns the merged view.
func loadUnits(ctx context.Context, s *app.Session) (reconcile.ViewModel, error) {
	if err := s.Console.Refresh(ctx); err != nil {
		return reconcile.ViewModel{}, fmt.Errorf("fetch units: %w", err)
	}
	return s.Console.View(), nil
}

// findUnit resolves a bus address from the command line to a row.
func findUnit(view reconcile.ViewModel, arg string) (reconcile.Row, error) {
	addr, err := strconv.Atoi(arg)
	if err != nil || addr < 0 {
		return reconcile.Row{}, fmt.Errorf("unit address %q is not a non-negative integer", arg)
	}
	for _, r := range view.Rows {
		if r.BusAddress() == addr {
			return r, nil
		}
	}
	return reconcile.Row{}, fmt.Errorf("unit %d: %w", addr, console.ErrUnknownUnit)
}

func parseInt(name, arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer", name, arg)
	}
	return n, nil
}

var errAborted = errors.New("aborted")
