package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AfterAILab/flaps-esp/internal/app"
	"github.com/AfterAILab/flaps-esp/internal/gateway"
)

// gatewayInfo is everything `flaps info` reads, fetched in parallel.
type gatewayInfo struct {
	Meta  gateway.MetaResponse
	Clock gateway.ClockResponse
	Main  gateway.MainSettings
	Misc  gateway.MiscSettings
	Wifi  gateway.WifiSettings
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show gateway identity, clock, settings and bus health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			info, err := fetchInfo(ctx, s.Client)
			if err != nil {
				return err
			}
			printInfo(cmd.OutOrStdout(), s.Client.Address(), info)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func fetchInfo(ctx context.Context, c *gateway.Client) (gatewayInfo, error) {
	var info gatewayInfo
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		info.Meta, err = c.FetchMeta(gctx)
		return wrap("meta", err)
	})
	g.Go(func() (err error) {
		info.Clock, err = c.FetchClock(gctx)
		return wrap("clock", err)
	})
	g.Go(func() (err error) {
		info.Main, err = c.FetchMain(gctx)
		return wrap("main settings", err)
	})
	g.Go(func() (err error) {
		info.Misc, err = c.FetchMisc(gctx)
		return wrap("misc settings", err)
	})
	g.Go(func() (err error) {
		info.Wifi, err = c.FetchWifi(gctx)
		return wrap("wifi settings", err)
	})
	if err := g.Wait(); err != nil {
		return gatewayInfo{}, err
	}
	return info, nil
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("fetch %s: %w", what, err)
}

func printInfo(w io.Writer, addr string, info gatewayInfo) {
	fmt.Fprintf(w, "gateway    %s\n", addr)
	fmt.Fprintf(w, "chip id    %s\n", orDash(info.Meta.ChipID))
	fmt.Fprintf(w, "clock      %s (%s)\n", orDash(info.Clock.Clock), orDash(info.Misc.Timezone))
	fmt.Fprintf(w, "display    %d units, mode %s, align %s, %d rpm\n",
		info.Main.NumUnits, info.Main.Mode, info.Main.Alignment, info.Main.RPM)
	if info.Main.Mode == gateway.ModeText {
		fmt.Fprintf(w, "text       %q\n", info.Main.Text)
	}
	fmt.Fprintf(w, "wifi       %s (%s)\n", orDash(info.Wifi.SSID), orDash(info.Wifi.IPAssignment))
	if info.Wifi.IPAssignment == "static" {
		fmt.Fprintf(w, "address    %s/%s via %s, dns %s\n", info.Wifi.IP, info.Wifi.Subnet, info.Wifi.Gateway, info.Wifi.DNS)
	}
	stuck := "never"
	if info.Misc.NumI2CBusStuck > 0 {
		ago := time.Duration(info.Misc.LastI2CBusStuckAgoInMillis) * time.Millisecond
		stuck = fmt.Sprintf("%d time(s), last %s ago", info.Misc.NumI2CBusStuck, ago.Round(time.Second))
	}
	fmt.Fprintf(w, "bus stuck  %s\n", stuck)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
