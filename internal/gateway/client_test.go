package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AfterAILab/flaps-esp/internal/device"
)

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Scheme != "http" {
		t.Fatalf("scheme = %q, want http", u.Scheme)
	}
	if u.Host != DefaultAddress {
		t.Fatalf("host = %q, want %q", u.Host, DefaultAddress)
	}

	u, err = parseBaseURL("http://flaps.local:8080/console?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		t.Fatalf("url not normalized: %q", u.String())
	}

	if _, err := parseBaseURL("http://"); err == nil {
		t.Fatalf("parseBaseURL accepted an address without host")
	}
}

func TestParseEndpoint(t *testing.T) {
	if e, err := ParseEndpoint(""); err != nil || e != EndpointUnit || !e.Bulk() {
		t.Fatalf("ParseEndpoint(\"\") = %v, %v", e, err)
	}
	if e, err := ParseEndpoint("offset"); err != nil || e.Bulk() {
		t.Fatalf("ParseEndpoint(offset) = %v, %v", e, err)
	}
	if _, err := ParseEndpoint("avr"); err == nil {
		t.Fatalf("ParseEndpoint accepted avr")
	}
}

type recorded struct {
	method, path, contentType string
	body                      []byte
}

func newGateway(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, chan recorded) {
	t.Helper()
	requests := make(chan recorded, 16)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- recorded{method: r.Method, path: r.URL.Path, contentType: r.Header.Get("Content-Type"), body: body}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server, requests
}

func TestClient_FetchesUnitSnapshot(t *testing.T) {
	t.Parallel()

	server, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/unit":
			_, _ = w.Write([]byte(`{"avrs":[{"unitAddr":4,"rotating":true,"magneticZeroPositionLetterIndex":1,"offset":1993,"lastResponseAtMillis":900}],"esp":{"currentMillis":1000}}`))
		case "/offset":
			_, _ = w.Write([]byte(`[1, 2]`))
		default:
			http.NotFound(w, r)
		}
	})

	c, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	snap, err := c.FetchSnapshot(ctx)
	if err != nil {
		t.Fatalf("FetchSnapshot returned error: %v", err)
	}
	if len(snap.Units) != 1 || snap.Units[0].Address != 4 || snap.Units[0].LastResponseAgeMillis != 100 {
		t.Fatalf("snapshot = %+v, want unit 4 aged 100ms", snap)
	}

	legacy, err := NewClient(server.URL, EndpointOffset)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	snap, err = legacy.FetchSnapshot(ctx)
	if err != nil {
		t.Fatalf("FetchSnapshot(offset) returned error: %v", err)
	}
	if len(snap.Units) != 2 || snap.Units[1].HasAddress {
		t.Fatalf("legacy snapshot = %+v, want two positional units", snap)
	}
}

func TestClient_WriteUnitsSendsJSONList(t *testing.T) {
	t.Parallel()

	server, requests := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c, err := NewClient(server.URL, EndpointUnit)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	err = c.WriteUnits(context.Background(), []UnitWrite{{UnitAddr: 3, Offset: 500}, {UnitAddr: 1, Offset: 1947, Mark: 2}})
	if err != nil {
		t.Fatalf("WriteUnits returned error: %v", err)
	}

	req := <-requests
	if req.method != http.MethodPost || req.path != "/unit" || req.contentType != "application/json" {
		t.Fatalf("request = %s %s (%s), want POST /unit json", req.method, req.path, req.contentType)
	}
	var got []map[string]any
	if err := json.Unmarshal(req.body, &got); err != nil {
		t.Fatalf("body %q not a JSON list: %v", req.body, err)
	}
	if len(got) != 2 || got[0]["unitAddr"] != float64(3) || got[0]["offset"] != float64(500) {
		t.Fatalf("body = %v", got)
	}
	if mark, ok := got[0]["magneticZeroPositionLetterIndex"]; !ok || mark != float64(0) {
		t.Fatalf("zero mark must still be sent: %v", got[0])
	}
	if got[1]["magneticZeroPositionLetterIndex"] != float64(2) {
		t.Fatalf("mark = %v, want 2", got[1]["magneticZeroPositionLetterIndex"])
	}
}

func TestClient_RestartSendsNonEmptyBody(t *testing.T) {
	t.Parallel()

	server, requests := newGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	c, _ := NewClient(server.URL, "")

	if err := c.Restart(context.Background()); err != nil {
		t.Fatalf("Restart returned error: %v", err)
	}
	req := <-requests
	if req.path != "/restart" || string(req.body) != "{}" {
		t.Fatalf("restart request = %s body %q, want /restart body {}", req.path, req.body)
	}
}

func TestClient_SettingsRoundTrip(t *testing.T) {
	t.Parallel()

	server, requests := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/main":
			_ = json.NewEncoder(w).Encode(MainSettings{NumUnits: 8, Mode: ModeClock, Alignment: "center", RPM: 10})
		case "/meta":
			_ = json.NewEncoder(w).Encode(MetaResponse{ChipID: "a1b2"})
		case "/clock":
			_ = json.NewEncoder(w).Encode(ClockResponse{Clock: "12:30"})
		case "/misc":
			_ = json.NewEncoder(w).Encode(MiscSettings{Timezone: "Asia/Tokyo", NumI2CBusStuck: 2})
		case "/wifi":
			_ = json.NewEncoder(w).Encode(WifiSettings{SSID: "home", IPAssignment: "dynamic"})
		}
	})
	c, _ := NewClient(server.URL, "")
	ctx := context.Background()

	settings, err := c.FetchMain(ctx)
	if err != nil || settings.NumUnits != 8 || settings.Mode != ModeClock {
		t.Fatalf("FetchMain = %+v, %v", settings, err)
	}
	if meta, err := c.FetchMeta(ctx); err != nil || meta.ChipID != "a1b2" {
		t.Fatalf("FetchMeta = %+v, %v", meta, err)
	}
	if clock, err := c.FetchClock(ctx); err != nil || clock.Clock != "12:30" {
		t.Fatalf("FetchClock = %+v, %v", clock, err)
	}
	if misc, err := c.FetchMisc(ctx); err != nil || misc.NumI2CBusStuck != 2 {
		t.Fatalf("FetchMisc = %+v, %v", misc, err)
	}
	if wifi, err := c.FetchWifi(ctx); err != nil || wifi.SSID != "home" {
		t.Fatalf("FetchWifi = %+v, %v", wifi, err)
	}
	for i := 0; i < 5; i++ {
		<-requests
	}

	settings.Text = "HELLO"
	if err := c.SaveMain(ctx, settings); err != nil {
		t.Fatalf("SaveMain returned error: %v", err)
	}
	req := <-requests
	if req.method != http.MethodPost || !strings.Contains(string(req.body), `"text":"HELLO"`) {
		t.Fatalf("SaveMain request = %s %q", req.method, req.body)
	}
}

func TestClient_ErrorTaxonomy(t *testing.T) {
	t.Parallel()

	server, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/unit":
			if r.Method == http.MethodPost {
				http.Error(w, "unit out of range", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte("{not-json"))
		case "/main":
			_, _ = w.Write([]byte("{not-json"))
		default:
			http.Error(w, "nope", http.StatusInternalServerError)
		}
	})
	c, _ := NewClient(server.URL, "")
	ctx := context.Background()

	_, err := c.FetchUnits(ctx)
	var decodeErr *device.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("FetchUnits error = %v, want *device.DecodeError", err)
	}

	_, err = c.FetchMain(ctx)
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Fatalf("FetchMain error = %v, want decode response error", err)
	}

	_, err = c.FetchOffsets(ctx)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.Status != http.StatusInternalServerError {
		t.Fatalf("FetchOffsets error = %v, want status 500 TransportError", err)
	}
	if !strings.Contains(err.Error(), "returned status 500") {
		t.Fatalf("error text = %q", err.Error())
	}

	err = c.WriteUnits(ctx, []UnitWrite{{UnitAddr: 1, Offset: 1}})
	var rejected *CommitRejected
	if !errors.As(err, &rejected) || rejected.Status != http.StatusBadRequest || rejected.Body != "unit out of range" {
		t.Fatalf("WriteUnits error = %v, want CommitRejected 400", err)
	}
}

func TestClient_UnreachableIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	c, _ := NewClient(addr, "")
	err := c.WriteOffset(context.Background(), OffsetWrite{Unit: 0, Offset: 5})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.Status != 0 {
		t.Fatalf("WriteOffset error = %v, want TransportError without status", err)
	}
}

func TestValidIPv4(t *testing.T) {
	for in, want := range map[string]bool{
		"192.168.10.123":  true,
		"0.0.0.0":         true,
		"255.255.255.255": true,
		"10.0.0.300":      false,
		"10.0.0":          false,
		"10.0.0.1.2":      false,
		"010.0.0.1":       false,
		"10.0.0.-1":       false,
		"::1":             false,
		"::ffff:10.0.0.1": false,
		"":                false,
		" 10.0.0.1":       false,
	} {
		if got := validIPv4(in); got != want {
			t.Fatalf("validIPv4(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSettingsValidate(t *testing.T) {
	good := MainSettings{NumUnits: 8, Mode: ModeText, Alignment: "left", RPM: 6}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate(good) = %v", err)
	}
	for _, bad := range []MainSettings{
		{NumUnits: 129, Mode: ModeText, Alignment: "left", RPM: 6},
		{NumUnits: 8, Mode: "scroll", Alignment: "left", RPM: 6},
		{NumUnits: 8, Mode: ModeText, Alignment: "justify", RPM: 6},
		{NumUnits: 8, Mode: ModeText, Alignment: "left", RPM: 13},
	} {
		if err := bad.Validate(); err == nil {
			t.Fatalf("Validate(%+v) = nil, want error", bad)
		}
	}

	wifi := WifiSettings{SSID: "home", IPAssignment: "static", IP: "192.168.10.5", Subnet: "255.255.255.0", Gateway: "192.168.10.1", DNS: "8.8.8.8"}
	if err := wifi.Validate(); err != nil {
		t.Fatalf("Validate(static wifi) = %v", err)
	}
	wifi.DNS = "8.8.8.256"
	if err := wifi.Validate(); err == nil {
		t.Fatalf("Validate accepted dns 8.8.8.256")
	}
	if err := (WifiSettings{SSID: "home", IPAssignment: "dynamic"}).Validate(); err != nil {
		t.Fatalf("Validate(dynamic wifi) = %v", err)
	}
}
