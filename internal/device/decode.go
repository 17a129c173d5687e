package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// DecodeError reports a payload that is not well-formed snapshot data.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode snapshot: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type wireUnit struct {
	UnitAddr *int `json:"unitAddr"`
	Address  *int `json:"address"`

	Offset   int  `json:"offset"`
	Mark     *int `json:"magneticZeroPositionLetterIndex"`
	Rotating bool `json:"rotating"`

	LastResponseAtMillis  *int64 `json:"lastResponseAtMillis"`
	LastResponseAgeMillis *int64 `json:"lastResponseAgeMillis"`
}

type wireSnapshot struct {
	Avrs  []wireUnit `json:"avrs"`
	Units []wireUnit `json:"units"`
	Esp   *struct {
		CurrentMillis int64 `json:"currentMillis"`
	} `json:"esp"`
	GatewayClockMillis *int64 `json:"gatewayClockMillis"`
}

// Decode turns a raw gateway payload into a snapshot.
//
// The gateway's JSON serializer cannot emit an empty array, so a unit list
// that is absent, null or empty all decode to an empty, non-nil slice. A bare
// JSON array is the legacy /offset read: a list of offsets identified only by
// position.
func Decode(payload []byte) (DeviceSnapshot, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return DeviceSnapshot{}, &DecodeError{Err: fmt.Errorf("empty payload")}
	}
	if !json.Valid(trimmed) {
		return DeviceSnapshot{}, &DecodeError{Err: fmt.Errorf("payload is not valid JSON")}
	}

	switch trimmed[0] {
	case '[':
		return decodeOffsets(trimmed)
	case '{':
		return decodeObject(trimmed)
	case 'n':
		return DeviceSnapshot{Units: []UnitState{}}, nil
	default:
		return DeviceSnapshot{}, &DecodeError{Err: fmt.Errorf("unexpected payload starting with %q", trimmed[0])}
	}
}

func decodeObject(data []byte) (DeviceSnapshot, error) {
	var raw wireSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return DeviceSnapshot{}, &DecodeError{Err: err}
	}

	snap := DeviceSnapshot{}
	switch {
	case raw.GatewayClockMillis != nil:
		snap.GatewayClockMillis = *raw.GatewayClockMillis
	case raw.Esp != nil:
		snap.GatewayClockMillis = raw.Esp.CurrentMillis
	}

	list := raw.Avrs
	if len(list) == 0 {
		list = raw.Units
	}
	snap.Units = make([]UnitState, 0, len(list))
	for _, w := range list {
		snap.Units = append(snap.Units, w.toState(snap.GatewayClockMillis))
	}
	return snap, nil
}

func decodeOffsets(data []byte) (DeviceSnapshot, error) {
	var offsets []int
	if err := json.Unmarshal(data, &offsets); err != nil {
		return DeviceSnapshot{}, &DecodeError{Err: err}
	}
	units := make([]UnitState, len(offsets))
	for i, off := range offsets {
		units[i] = UnitState{Offset: off}
	}
	return DeviceSnapshot{Units: units}, nil
}

func (w wireUnit) toState(clock int64) UnitState {
	u := UnitState{
		Offset:   w.Offset,
		Rotating: w.Rotating,
	}
	switch {
	case w.UnitAddr != nil:
		u.Address, u.HasAddress = *w.UnitAddr, true
	case w.Address != nil:
		u.Address, u.HasAddress = *w.Address, true
	}
	if w.Mark != nil {
		mark := *w.Mark
		u.CalibrationMark = &mark
	}
	switch {
	case w.LastResponseAgeMillis != nil:
		u.LastResponseAgeMillis = *w.LastResponseAgeMillis
	case w.LastResponseAtMillis != nil:
		u.LastResponseAgeMillis = ResponseAge(clock, *w.LastResponseAtMillis)
	}
	return u
}

// ResponseAge subtracts a unit's last response timestamp from the gateway
// clock. Both are millis() readings from a 32-bit counter, so the difference
// is taken modulo 2^32 whenever both fit.
func ResponseAge(clock, at int64) int64 {
	if clock >= 0 && at >= 0 && clock <= math.MaxUint32 && at <= math.MaxUint32 {
		return int64(uint32(clock) - uint32(at))
	}
	if age := clock - at; age > 0 {
		return age
	}
	return 0
}
