package device

import (
	"fmt"
	"strconv"
)

// UnitState describes one flap unit as last reported by the gateway.
type UnitState struct {
	Address    int
	HasAddress bool // false for legacy payloads that only carry list position

	Offset          int
	CalibrationMark *int // nil when the firmware does not report a mark
	Rotating        bool

	LastResponseAgeMillis int64
}

// Mark returns the calibration mark and whether one is present.
func (u UnitState) Mark() (int, bool) {
	if u.CalibrationMark == nil {
		return 0, false
	}
	return *u.CalibrationMark, true
}

// Clone returns a copy that does not share the calibration mark pointer.
func (u UnitState) Clone() UnitState {
	dup := u
	if u.CalibrationMark != nil {
		mark := *u.CalibrationMark
		dup.CalibrationMark = &mark
	}
	return dup
}

// DeviceSnapshot is one poll result. Units is never nil once decoded.
type DeviceSnapshot struct {
	Units              []UnitState
	GatewayClockMillis int64
}

// Clone deep-copies the snapshot.
func (s DeviceSnapshot) Clone() DeviceSnapshot {
	units := make([]UnitState, len(s.Units))
	for i, u := range s.Units {
		units[i] = u.Clone()
	}
	return DeviceSnapshot{Units: units, GatewayClockMillis: s.GatewayClockMillis}
}

// KeyKind tells how a UnitKey correlates units across snapshots.
type KeyKind int

const (
	KeyAddress KeyKind = iota
	KeyPosition
)

// UnitKey identifies a unit in the edit buffer and the view model.
type UnitKey struct {
	Kind  KeyKind
	Value int
}

// AddressKey keys a unit by its bus address.
func AddressKey(addr int) UnitKey { return UnitKey{Kind: KeyAddress, Value: addr} }

// PositionKey keys a unit by its index in the reported list.
func PositionKey(index int) UnitKey { return UnitKey{Kind: KeyPosition, Value: index} }

func (k UnitKey) String() string {
	if k.Kind == KeyPosition {
		return "#" + strconv.Itoa(k.Value)
	}
	return "@" + strconv.Itoa(k.Value)
}

// IdentityPolicy selects how units are correlated between snapshots.
//
// Address keys by the reported bus address and only falls back to list
// position for payloads that carry no address at all. Position keys strictly
// by list index, which is correct only while the gateway reports units in a
// stable order for the whole session.
type IdentityPolicy int

const (
	IdentityAddress IdentityPolicy = iota
	IdentityPosition
)

// ParseIdentityPolicy maps a config value to a policy.
func ParseIdentityPolicy(value string) (IdentityPolicy, error) {
	switch value {
	case "", "address":
		return IdentityAddress, nil
	case "position":
		return IdentityPosition, nil
	default:
		return IdentityAddress, fmt.Errorf("unknown identity policy %q", value)
	}
}

func (p IdentityPolicy) String() string {
	if p == IdentityPosition {
		return "position"
	}
	return "address"
}

// Key returns the identity of the unit found at index in a snapshot.
func (p IdentityPolicy) Key(unit UnitState, index int) UnitKey {
	if p == IdentityAddress && unit.HasAddress {
		return AddressKey(unit.Address)
	}
	return PositionKey(index)
}

// BusAddress is the address to put on the wire for a unit. Firmware without
// reported addresses addresses units by their position on the bus.
func BusAddress(unit UnitState, index int) int {
	if unit.HasAddress {
		return unit.Address
	}
	return index
}
