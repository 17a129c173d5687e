package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AfterAILab/flaps-esp/internal/device"
)

// Endpoint selects which unit endpoint pair the gateway firmware serves.
type Endpoint string

const (
	// EndpointUnit is GET /unit snapshots with bulk POST /unit writes.
	EndpointUnit Endpoint = "unit"
	// EndpointOffset is the legacy GET /offset list with per-unit POST /offset.
	EndpointOffset Endpoint = "offset"
)

// ParseEndpoint maps a config value to an endpoint.
func ParseEndpoint(value string) (Endpoint, error) {
	switch strings.TrimSpace(value) {
	case "", "unit":
		return EndpointUnit, nil
	case "offset":
		return EndpointOffset, nil
	default:
		return EndpointUnit, fmt.Errorf("unknown write endpoint %q (want unit or offset)", value)
	}
}

// Bulk reports whether one request can carry every unit.
func (e Endpoint) Bulk() bool { return e != EndpointOffset }

// Client talks to the gateway's HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	endpoint  Endpoint
}

const (
	// DefaultAddress is the gateway's access-point address.
	DefaultAddress   = "192.168.10.123"
	defaultUserAgent = "flaps/0.1"
	requestTimeout   = 5 * time.Second
	maxBodyBytes     = 1 << 20
)

// NewClient builds a Client for the gateway at addr (host, host:port or URL).
func NewClient(addr string, endpoint Endpoint) (*Client, error) {
	base, err := parseBaseURL(addr)
	if err != nil {
		return nil, err
	}
	if endpoint == "" {
		endpoint = EndpointUnit
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
		endpoint:  endpoint,
	}, nil
}

// Address returns the normalized gateway URL.
func (c *Client) Address() string { return c.baseURL.String() }

// Endpoint returns the unit endpoint pair in use.
func (c *Client) Endpoint() Endpoint { return c.endpoint }

// FetchSnapshot reads unit state from the configured endpoint.
func (c *Client) FetchSnapshot(ctx context.Context) (device.DeviceSnapshot, error) {
	if c.endpoint == EndpointOffset {
		return c.FetchOffsets(ctx)
	}
	return c.FetchUnits(ctx)
}

// FetchUnits reads GET /unit.
func (c *Client) FetchUnits(ctx context.Context) (device.DeviceSnapshot, error) {
	return c.fetchSnapshot(ctx, "/unit")
}

// FetchOffsets reads the legacy GET /offset list.
func (c *Client) FetchOffsets(ctx context.Context) (device.DeviceSnapshot, error) {
	return c.fetchSnapshot(ctx, "/offset")
}

func (c *Client) fetchSnapshot(ctx context.Context, path string) (device.DeviceSnapshot, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return device.DeviceSnapshot{}, err
	}
	return device.Decode(body)
}

// WriteUnits sends every entry in one POST /unit. A nil error means the
// gateway queued the writes for the bus, not that units applied them.
func (c *Client) WriteUnits(ctx context.Context, writes []UnitWrite) error {
	if writes == nil {
		writes = []UnitWrite{}
	}
	return c.post(ctx, "/unit", writes)
}

// WriteOffset sends one legacy POST /offset.
func (c *Client) WriteOffset(ctx context.Context, w OffsetWrite) error {
	return c.post(ctx, "/offset", w)
}

// FetchClock reads the gateway's formatted wall clock.
func (c *Client) FetchClock(ctx context.Context) (ClockResponse, error) {
	var out ClockResponse
	err := c.getJSON(ctx, "/clock", &out)
	return out, err
}

// FetchMeta reads the gateway identity.
func (c *Client) FetchMeta(ctx context.Context) (MetaResponse, error) {
	var out MetaResponse
	err := c.getJSON(ctx, "/meta", &out)
	return out, err
}

// FetchMain reads the display settings.
func (c *Client) FetchMain(ctx context.Context) (MainSettings, error) {
	var out MainSettings
	err := c.getJSON(ctx, "/main", &out)
	return out, err
}

// SaveMain writes the display settings.
func (c *Client) SaveMain(ctx context.Context, m MainSettings) error {
	return c.post(ctx, "/main", m)
}

// FetchWifi reads the network settings.
func (c *Client) FetchWifi(ctx context.Context) (WifiSettings, error) {
	var out WifiSettings
	err := c.getJSON(ctx, "/wifi", &out)
	return out, err
}

// SaveWifi writes the network settings. They apply after a restart.
func (c *Client) SaveWifi(ctx context.Context, w WifiSettings) error {
	return c.post(ctx, "/wifi", w)
}

// FetchMisc reads timezone and bus health counters.
func (c *Client) FetchMisc(ctx context.Context) (MiscSettings, error) {
	var out MiscSettings
	err := c.getJSON(ctx, "/misc", &out)
	return out, err
}

// SaveMisc writes the timezone.
func (c *Client) SaveMisc(ctx context.Context, m MiscSettings) error {
	return c.post(ctx, "/misc", m)
}

// Restart asks the gateway to reboot. The firmware ignores bodyless POSTs.
func (c *Client) Restart(ctx context.Context) error {
	return c.post(ctx, "/restart", struct{}{})
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return nil, &TransportError{Method: http.MethodGet, Path: path, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, Path: path, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, path, data)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &CommitRejected{Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: path})
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	return resp, nil
}

func parseBaseURL(addr string) (*url.URL, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		trimmed = DefaultAddress
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse gateway address %q: %w", addr, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse gateway address %q: missing host", addr)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
