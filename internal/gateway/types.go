package gateway

import (
	"fmt"
	"net/netip"
	"strings"
)

// UnitWrite is one entry of the bulk POST /unit body. The gateway writes
// the mark byte for every entry, so it is always sent; 0 for units that
// never reported one.
type UnitWrite struct {
	UnitAddr int `json:"unitAddr"`
	Offset   int `json:"offset"`
	Mark     int `json:"magneticZeroPositionLetterIndex"`
}

// OffsetWrite is the legacy POST /offset body.
type OffsetWrite struct {
	Unit   int `json:"unit"`
	Offset int `json:"offset"`
}

// ClockResponse mirrors GET /clock.
type ClockResponse struct {
	Clock string `json:"clock"`
}

// MetaResponse mirrors GET /meta.
type MetaResponse struct {
	ChipID string `json:"chipId"`
}

// Display modes accepted by /main.
const (
	ModeText  = "text"
	ModeDate  = "date"
	ModeClock = "clock"
)

// MaxUnits is the largest unit count the gateway accepts.
const MaxUnits = 128

// MainSettings mirrors the /main setting bag.
type MainSettings struct {
	NumUnits  int    `json:"numUnits" yaml:"numUnits"`
	Mode      string `json:"mode" yaml:"mode"`
	Alignment string `json:"alignment" yaml:"alignment"`
	RPM       int    `json:"rpm" yaml:"rpm"`
	Text      string `json:"text" yaml:"text"`
}

// Validate checks the bounds the gateway's own settings form enforces.
func (m MainSettings) Validate() error {
	if m.NumUnits < 0 || m.NumUnits > MaxUnits {
		return fmt.Errorf("numUnits %d not in 0..%d", m.NumUnits, MaxUnits)
	}
	switch m.Mode {
	case ModeText, ModeDate, ModeClock:
	default:
		return fmt.Errorf("mode %q must be text, date or clock", m.Mode)
	}
	switch m.Alignment {
	case "left", "center", "right":
	default:
		return fmt.Errorf("alignment %q must be left, center or right", m.Alignment)
	}
	if m.RPM < 1 || m.RPM > 12 {
		return fmt.Errorf("rpm %d not in 1..12", m.RPM)
	}
	return nil
}

// WifiSettings mirrors the /wifi setting bag.
type WifiSettings struct {
	SSID         string `json:"ssid"`
	Password     string `json:"password"`
	IPAssignment string `json:"ipAssignment"`
	IP           string `json:"ip,omitempty"`
	Subnet       string `json:"subnet,omitempty"`
	Gateway      string `json:"gateway,omitempty"`
	DNS          string `json:"dns,omitempty"`
}

// Validate requires the static addressing fields only for static assignment.
func (w WifiSettings) Validate() error {
	if strings.TrimSpace(w.SSID) == "" {
		return fmt.Errorf("ssid is required")
	}
	switch w.IPAssignment {
	case "dynamic":
		return nil
	case "static":
	default:
		return fmt.Errorf("ipAssignment %q must be dynamic or static", w.IPAssignment)
	}
	for name, value := range map[string]string{"ip": w.IP, "subnet": w.Subnet, "gateway": w.Gateway, "dns": w.DNS} {
		if !validIPv4(value) {
			return fmt.Errorf("%s %q is not an IPv4 address", name, value)
		}
	}
	return nil
}

// MiscSettings mirrors the /misc setting bag. Only Timezone is writable.
type MiscSettings struct {
	Timezone                   string `json:"timezone"`
	NumI2CBusStuck             int    `json:"numI2CBusStuck"`
	LastI2CBusStuckAgoInMillis int64  `json:"lastI2CBusStuckAgoInMillis"`
}

func validIPv4(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4()
}
