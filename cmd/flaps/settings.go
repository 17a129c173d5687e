package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/AfterAILab/flaps-esp/internal/app"
	"github.com/AfterAILab/flaps-esp/internal/device"
	"github.com/AfterAILab/flaps-esp/internal/gateway"
)

const envWifiPassword = "FLAPS_WIFI_PASSWORD"

var (
	setNumUnits  int
	setMode      string
	setAlignment string
	setRPM       int
	setText      string
	setTimezone  string

	wifiSSID   string
	wifiStatic bool
	wifiIP     string
	wifiSubnet string
	wifiRouter string
	wifiDNS    string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read or change the gateway display settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print display settings and timezone as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			ms, err := s.Client.FetchMain(ctx)
			if err != nil {
				return fmt.Errorf("fetch main settings: %w", err)
			}
			misc, err := s.Client.FetchMisc(ctx)
			if err != nil {
				return fmt.Errorf("fetch misc settings: %w", err)
			}
			return writeSettings(cmd.OutOrStdout(), ms, misc)
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change display settings; unset flags keep their current value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		mainChanged := flags.Changed("units") || flags.Changed("mode") || flags.Changed("align") ||
			flags.Changed("rpm") || flags.Changed("text")
		if !mainChanged && !flags.Changed("timezone") {
			return fmt.Errorf("nothing to change; pass at least one setting flag")
		}
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			if mainChanged {
				ms, err := s.Client.FetchMain(ctx)
				if err != nil {
					return fmt.Errorf("fetch main settings: %w", err)
				}
				if flags.Changed("units") {
					ms.NumUnits = setNumUnits
				}
				if flags.Changed("mode") {
					ms.Mode = setMode
				}
				if flags.Changed("align") {
					ms.Alignment = setAlignment
				}
				if flags.Changed("rpm") {
					ms.RPM = setRPM
				}
				if flags.Changed("text") {
					ms.Text = strings.ToUpper(setText)
				}
				warn, err := checkMainSettings(ms)
				if err != nil {
					return err
				}
				if warn != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning:", warn)
				}
				if err := s.Client.SaveMain(ctx, ms); err != nil {
					return fmt.Errorf("save main settings: %w", err)
				}
				s.Logger.Info("main settings saved", zapMain(ms)...)
			}
			if flags.Changed("timezone") {
				misc, err := s.Client.FetchMisc(ctx)
				if err != nil {
					return fmt.Errorf("fetch misc settings: %w", err)
				}
				misc.Timezone = strings.TrimSpace(setTimezone)
				if misc.Timezone == "" {
					return fmt.Errorf("timezone must not be empty")
				}
				if err := s.Client.SaveMisc(ctx, misc); err != nil {
					return fmt.Errorf("save timezone: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "settings saved")
			return nil
		})
	},
}

var wifiCmd = &cobra.Command{
	Use:   "wifi",
	Short: "Change the gateway network settings",
}

var wifiSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Save Wi-Fi credentials and addressing; applies after restart",
	Long: `wifi set saves the network the gateway joins on its next boot.

The password is read from FLAPS_WIFI_PASSWORD, or prompted for without echo.
There is no password flag so it never lands in shell history.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := gateway.WifiSettings{SSID: strings.TrimSpace(wifiSSID), IPAssignment: "dynamic"}
		if wifiStatic {
			w.IPAssignment = "static"
			w.IP, w.Subnet, w.Gateway, w.DNS = wifiIP, wifiSubnet, wifiRouter, wifiDNS
		}
		// validate before prompting so typos fail fast
		check := w
		check.Password = "-"
		if err := check.Validate(); err != nil {
			return err
		}
		password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		w.Password = password
		return withSession(cmd, func(ctx context.Context, s *app.Session) error {
			if err := s.Client.SaveWifi(ctx, w); err != nil {
				return fmt.Errorf("save wifi settings: %w", err)
			}
			s.Logger.Info("wifi settings saved")
			fmt.Fprintln(cmd.OutOrStdout(), "wifi settings saved; run `flaps restart --yes` to apply")
			return nil
		})
	},
}

func init() {
	f := settingsSetCmd.Flags()
	f.IntVar(&setNumUnits, "units", 0, "number of units on the bus")
	f.StringVar(&setMode, "mode", "", "display mode: text, date or clock")
	f.StringVar(&setAlignment, "align", "", "text alignment: left, center or right")
	f.IntVar(&setRPM, "rpm", 0, "drum speed, 1..12")
	f.StringVar(&setText, "text", "", "text shown in text mode")
	f.StringVar(&setTimezone, "timezone", "", "POSIX TZ string, for example JST-9")
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)

	wf := wifiSetCmd.Flags()
	wf.StringVar(&wifiSSID, "ssid", "", "network name")
	wf.BoolVar(&wifiStatic, "static", false, "use static addressing instead of DHCP")
	wf.StringVar(&wifiIP, "ip", "", "static IPv4 address")
	wf.StringVar(&wifiSubnet, "subnet", "", "static subnet mask")
	wf.StringVar(&wifiRouter, "router", "", "static default gateway")
	wf.StringVar(&wifiDNS, "dns", "", "static DNS server")
	_ = wifiSetCmd.MarkFlagRequired("ssid")
	wifiCmd.AddCommand(wifiSetCmd)

	rootCmd.AddCommand(settingsCmd, wifiCmd)
}

// checkMainSettings validates m and returns a warning for text the display
// will crop.
func checkMainSettings(m gateway.MainSettings) (string, error) {
	if bad, ok := device.Displayable(m.Text); !ok {
		return "", fmt.Errorf("text %q: %q is not on the flap drum", m.Text, bad)
	}
	if err := m.Validate(); err != nil {
		return "", err
	}
	if n := utf8.RuneCountInString(m.Text); m.Mode == gateway.ModeText && n > m.NumUnits {
		return fmt.Sprintf("text has %d letters but the display has %d units; it will be cropped", n, m.NumUnits), nil
	}
	return "", nil
}

func writeSettings(w io.Writer, ms gateway.MainSettings, misc gateway.MiscSettings) error {
	doc := struct {
		gateway.MainSettings `yaml:",inline"`
		Timezone             string `yaml:"timezone"`
	}{ms, misc.Timezone}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return enc.Close()
}

// readPassword reads from the environment, then the terminal without echo,
// then a plain line of in when stdin is not a terminal.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if pw := os.Getenv(envWifiPassword); pw != "" {
		return pw, nil
	}
	fmt.Fprint(prompt, "Wi-Fi password: ")
	if in == os.Stdin && term.IsTerminal(int(syscall.Stdin)) {
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	fmt.Fprintln(prompt)
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func zapMain(m gateway.MainSettings) []zap.Field {
	return []zap.Field{
		zap.Int("units", m.NumUnits),
		zap.String("mode", m.Mode),
		zap.String("align", m.Alignment),
		zap.Int("rpm", m.RPM),
		zap.String("text", m.Text),
	}
}
