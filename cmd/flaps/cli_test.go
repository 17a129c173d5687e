package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AfterAILab/flaps-esp/internal/gateway"
)

type fakeUnit struct {
	Addr   int
	Offset int
	Mark   int
}

type fakeGateway struct {
	mu    sync.Mutex
	units []fakeUnit
	main  gateway.MainSettings
	posts map[string][]string
}

func newFakeGateway(t *testing.T) (*fakeGateway, *httptest.Server) {
	t.Helper()
	g := &fakeGateway{
		units: []fakeUnit{{Addr: 3, Offset: 1993, Mark: 1}, {Addr: 7, Offset: 1947, Mark: 2}},
		main:  gateway.MainSettings{NumUnits: 2, Mode: "text", Alignment: "left", RPM: 6, Text: "HI"},
		posts: map[string][]string{},
	}
	server := httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(server.Close)
	return g, server
}

func (g *fakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r.Method == http.MethodPost {
		var body bytes.Buffer
		_, _ = body.ReadFrom(r.Body)
		g.posts[r.URL.Path] = append(g.posts[r.URL.Path], body.String())
		switch r.URL.Path {
		case "/unit":
			var writes []gateway.UnitWrite
			if err := json.Unmarshal(body.Bytes(), &writes); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			for _, wr := range writes {
				for i := range g.units {
					if g.units[i].Addr == wr.UnitAddr {
						g.units[i].Offset = wr.Offset
						g.units[i].Mark = wr.Mark
					}
				}
			}
		case "/main":
			_ = json.Unmarshal(body.Bytes(), &g.main)
		}
		_, _ = w.Write([]byte("OK"))
		return
	}

	switch r.URL.Path {
	case "/unit":
		var avrs []string
		for _, u := range g.units {
			avrs = append(avrs, fmt.Sprintf(`{"unitAddr":%d,"rotating":false,"magneticZeroPositionLetterIndex":%d,"offset":%d,"lastResponseAtMillis":900}`, u.Addr, u.Mark, u.Offset))
		}
		fmt.Fprintf(w, `{"avrs":[%s],"esp":{"currentMillis":1000}}`, strings.Join(avrs, ","))
	case "/clock":
		_, _ = w.Write([]byte(`{"clock":"12:00"}`))
	case "/meta":
		_, _ = w.Write([]byte(`{"chipId":"c0ffee"}`))
	case "/main":
		_ = json.NewEncoder(w).Encode(g.main)
	case "/misc":
		_, _ = w.Write([]byte(`{"timezone":"JST-9","numI2CBusStuck":0,"lastI2CBusStuckAgoInMillis":0}`))
	case "/wifi":
		_, _ = w.Write([]byte(`{"ssid":"shop","password":"","ipAssignment":"dynamic"}`))
	default:
		http.NotFound(w, r)
	}
}

func (g *fakeGateway) postCount(path string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.posts[path])
}

// resetFlags puts every flag back to its default so tests sharing rootCmd
// do not leak values into each other.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the CLI against server with a throwaway config and home.
func execute(t *testing.T, server *httptest.Server, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("FLAPS_GATEWAY", "")
	t.Setenv("FLAPS_LOG_LEVEL", "")
	cfg := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf("settle_delay = \"500ms\"\nlog_path = %q\nhistory_path = %q\n",
		filepath.Join(dir, "flaps.log"), filepath.Join(dir, "history.db"))
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o600))

	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfg, "--gateway", server.URL}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestUnits_PrintsTable(t *testing.T) {
	_, server := newFakeGateway(t)

	out, err := execute(t, server, "units")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ADDR", "MARK", "OFFSET", "ROTATING", "AGE"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"3", "A", "1993", "no", "100ms"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"7", "B", "1947", "no", "100ms"}, strings.Fields(lines[2]))
}

func TestOffsetSet_CommitsAndReadsBack(t *testing.T) {
	g, server := newFakeGateway(t)

	out, err := execute(t, server, "offset", "set", "7", "1950")
	require.NoError(t, err)
	assert.Contains(t, out, "committed 1 unit(s)")
	assert.Equal(t, 1, g.postCount("/unit"))

	var writes []gateway.UnitWrite
	require.NoError(t, json.Unmarshal([]byte(g.posts["/unit"][0]), &writes))
	assert.Equal(t, []gateway.UnitWrite{
		{UnitAddr: 3, Offset: 1993, Mark: 1},
		{UnitAddr: 7, Offset: 1950, Mark: 2},
	}, writes)
}

func TestOffsetSet_RejectsBadInput(t *testing.T) {
	g, server := newFakeGateway(t)

	_, err := execute(t, server, "offset", "set", "9", "100")
	assert.ErrorContains(t, err, "unit 9")

	_, err = execute(t, server, "offset", "set", "3", "99999")
	assert.Error(t, err)

	_, err = execute(t, server, "offset", "set", "3", "abc")
	assert.ErrorContains(t, err, "not an integer")
	assert.Zero(t, g.postCount("/unit"))
}

func TestSettingsSet_ValidatesText(t *testing.T) {
	g, server := newFakeGateway(t)

	_, err := execute(t, server, "settings", "set", "--text", "hi~")
	assert.ErrorContains(t, err, "not on the flap drum")
	assert.Zero(t, g.postCount("/main"))

	out, err := execute(t, server, "settings", "set", "--text", "ok", "--rpm", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "settings saved")

	want := gateway.MainSettings{NumUnits: 2, Mode: "text", Alignment: "left", RPM: 8, Text: "OK"}
	if diff := cmp.Diff(want, g.main); diff != "" {
		t.Fatalf("saved settings mismatch (-want +got):\n%s", diff)
	}
}

func TestSettingsSet_WarnsAboutCroppedText(t *testing.T) {
	_, server := newFakeGateway(t)

	out, err := execute(t, server, "settings", "set", "--text", "HELLO")
	require.NoError(t, err)
	assert.Contains(t, out, "will be cropped")
}

func TestSettingsGet_PrintsYAML(t *testing.T) {
	_, server := newFakeGateway(t)

	out, err := execute(t, server, "settings", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "numUnits: 2")
	assert.Contains(t, out, "timezone: JST-9")
}

func TestInfo_FetchesEverything(t *testing.T) {
	_, server := newFakeGateway(t)

	out, err := execute(t, server, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "c0ffee")
	assert.Contains(t, out, "12:00 (JST-9)")
	assert.Contains(t, out, "shop (dynamic)")
	assert.Contains(t, out, "bus stuck  never")
}

func TestRestart_RequiresConfirmation(t *testing.T) {
	g, server := newFakeGateway(t)

	_, err := execute(t, server, "restart")
	assert.ErrorIs(t, err, errAborted)
	assert.Zero(t, g.postCount("/restart"))

	_, err = execute(t, server, "restart", "--yes")
	require.NoError(t, err)
	assert.Equal(t, 1, g.postCount("/restart"))
	assert.Equal(t, "{}", g.posts["/restart"][0])
}

func TestOffsetsExportImport_RoundTrip(t *testing.T) {
	g, server := newFakeGateway(t)

	out, err := execute(t, server, "offsets", "export")
	require.NoError(t, err)
	assert.Contains(t, out, "address: 3")

	path := filepath.Join(t.TempDir(), "backup.yaml")
	edited := strings.Replace(out, "offset: 1947", "offset: 1900", 1)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o600))

	out, err = execute(t, server, "offsets", "import", "--dry-run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "unit 7: offset 1947 -> 1900")
	assert.Contains(t, out, "1 unit(s) would change")
	assert.Zero(t, g.postCount("/unit"))

	out, err = execute(t, server, "offsets", "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "committed 1 unit(s)")
	assert.Equal(t, 1900, g.units[1].Offset)
}

func TestLogs_FormatsRecords(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	logPath := filepath.Join(dir, "flaps.log")
	require.NoError(t, os.WriteFile(logPath, []byte(
		`{"level":"info","ts":"2026-01-02T03:04:05.000Z","logger":"ui","msg":"hello","unit":3}`+"\n"), 0o600))
	cfg := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfg, []byte(fmt.Sprintf("log_path = %q\n", logPath)), 0o600))

	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", cfg, "logs"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "hello")
	assert.Contains(t, out.String(), "unit=3")
}

func TestParseLetter(t *testing.T) {
	idx, err := parseLetter("a")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	idx, err = parseLetter("space")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	_, err = parseLetter("AB")
	assert.Error(t, err)
	_, err = parseLetter("~")
	assert.Error(t, err)
}

func TestReadPassword_EnvThenLine(t *testing.T) {
	t.Setenv(envWifiPassword, "from-env")
	pw, err := readPassword(strings.NewReader("ignored\n"), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)

	t.Setenv(envWifiPassword, "")
	pw, err = readPassword(strings.NewReader("s3cret\r\n"), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
}

func TestWifiSet_ValidatesBeforePrompting(t *testing.T) {
	g, server := newFakeGateway(t)
	t.Setenv(envWifiPassword, "pw")

	_, err := execute(t, server, "wifi", "set", "--ssid", "shop", "--static", "--ip", "10.0.0.300")
	assert.ErrorContains(t, err, "not an IPv4 address")
	assert.Zero(t, g.postCount("/wifi"))

	out, err := execute(t, server, "wifi", "set", "--ssid", "shop")
	require.NoError(t, err)
	assert.Contains(t, out, "restart --yes")

	var saved gateway.WifiSettings
	require.NoError(t, json.Unmarshal([]byte(g.posts["/wifi"][0]), &saved))
	assert.Equal(t, gateway.WifiSettings{SSID: "shop", Password: "pw", IPAssignment: "dynamic"}, saved)
}
