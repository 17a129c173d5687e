package state

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/AfterAILab/flaps-esp/internal/device"
)

func sampleDevice() *device.DeviceSnapshot {
	mark := 1
	return &device.DeviceSnapshot{
		Units: []device.UnitState{
			{Address: 0, HasAddress: true, Offset: 10, CalibrationMark: &mark},
			{Address: 1, HasAddress: true, Offset: 20},
		},
		GatewayClockMillis: 1000,
	}
}

func TestStore_UpdateAndSnapshotClone(t *testing.T) {
	var s Store

	before := time.Now()
	s.Update(sampleDevice(), nil)

	snap := s.Snapshot()
	if !snap.HasDevice || len(snap.Device.Units) != 2 {
		t.Fatalf("snapshot device = %#v, want 2 units HasDevice=true", snap.Device)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil", snap.LastError)
	}

	// Returned snapshot should be independent of the stored one.
	snap.Device.Units[0].Offset = 999
	*snap.Device.Units[0].CalibrationMark = 7
	snap2 := s.Snapshot()
	if snap2.Device.Units[0].Offset != 10 || *snap2.Device.Units[0].CalibrationMark != 1 {
		t.Fatalf("Snapshot should clone units; got %+v", snap2.Device.Units[0])
	}
}

func TestStore_UpdateErrorKeepsPreviousData(t *testing.T) {
	var s Store

	s.Update(sampleDevice(), nil)
	prev := s.Snapshot()

	before := time.Now()
	origErr := errors.New("boom")
	s.Update(nil, origErr)

	snap := s.Snapshot()
	if snap.HasDevice != prev.HasDevice || len(snap.Device.Units) != len(prev.Device.Units) {
		t.Fatalf("device changed on error: got %#v want %#v", snap.Device, prev.Device)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError == nil || snap.LastError.Error() != "boom" {
		t.Fatalf("LastError = %v, want boom", snap.LastError)
	}
	if reflect.ValueOf(snap.LastError).Pointer() == reflect.ValueOf(origErr).Pointer() {
		t.Fatalf("Snapshot should clone error instance")
	}
	if !errors.Is(snap.LastError, origErr) {
		t.Fatalf("cloned error should still wrap the original")
	}
}

func TestStore_ConsecutiveFailures(t *testing.T) {
	var s Store

	snap := s.Snapshot()
	if snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("fresh store = %d failures offline=%v, want 0 online", snap.ConsecutiveFailures, snap.IsOffline())
	}

	for i, wantOffline := range []bool{false, true, true} {
		s.Update(nil, errors.New("fail"))
		snap = s.Snapshot()
		if snap.ConsecutiveFailures != i+1 {
			t.Fatalf("ConsecutiveFailures = %d, want %d", snap.ConsecutiveFailures, i+1)
		}
		if snap.IsOffline() != wantOffline {
			t.Fatalf("IsOffline() after %d failures = %v, want %v", i+1, snap.IsOffline(), wantOffline)
		}
	}

	// Success resets counter
	s.Update(&device.DeviceSnapshot{Units: []device.UnitState{}}, nil)
	snap = s.Snapshot()
	if snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("after success = %d failures offline=%v, want 0 online", snap.ConsecutiveFailures, snap.IsOffline())
	}
}

func TestStore_NoticesAreBounded(t *testing.T) {
	var s Store

	if _, ok := s.Snapshot().LatestNotice(); ok {
		t.Fatalf("LatestNotice on empty store returned ok")
	}
	for i := 0; i < maxNotices+5; i++ {
		s.Notify(NoticeWarn, "notice %d", i)
	}
	snap := s.Snapshot()
	if len(snap.Notices) != maxNotices {
		t.Fatalf("len(Notices) = %d, want %d", len(snap.Notices), maxNotices)
	}
	if snap.Notices[0].Message != "notice 5" {
		t.Fatalf("oldest notice = %q, want notice 5", snap.Notices[0].Message)
	}
	latest, ok := snap.LatestNotice()
	if !ok || latest.Message != "notice 54" || latest.Level != NoticeWarn {
		t.Fatalf("LatestNotice = %+v, %v", latest, ok)
	}
}

func TestStore_ClockAndChipID(t *testing.T) {
	var s Store
	s.SetClock("12:30:05")
	s.SetChipID("a1b2c3")
	snap := s.Snapshot()
	if snap.Clock != "12:30:05" || snap.ChipID != "a1b2c3" {
		t.Fatalf("snapshot = %q/%q", snap.Clock, snap.ChipID)
	}
}
