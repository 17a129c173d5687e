package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/AfterAILab/flaps-esp/internal/device"
	"github.com/AfterAILab/flaps-esp/internal/edit"
)

func addressed(addr, offset int) device.UnitState {
	return device.UnitState{Address: addr, HasAddress: true, Offset: offset}
}

func snapshot(units ...device.UnitState) device.DeviceSnapshot {
	return device.DeviceSnapshot{Units: units, GatewayClockMillis: 1000}
}

func TestMerge_ScenarioStagedOffsetWins(t *testing.T) {
	snap, err := device.Decode([]byte(`{"units":[{"address":0,"offset":10,"rotating":false,"lastResponseAgeMillis":50}],"gatewayClockMillis":1000}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	buf := edit.NewBuffer(nil, 0)
	if err := buf.Stage(device.AddressKey(0), edit.FieldOffset, 99); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	vm := Merge(snap, buf, device.IdentityAddress)
	if len(vm.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(vm.Rows))
	}
	row := vm.Rows[0]
	if row.Unit.Offset != 99 || !row.Dirty {
		t.Fatalf("row = %+v, want offset 99 and dirty", row)
	}
	want := snap.Units[0]
	want.Offset = 99
	if diff := cmp.Diff(want, row.Unit); diff != "" {
		t.Fatalf("merged unit mismatch (-want +got):\n%s", diff)
	}
	if row.Fetched.Offset != 10 {
		t.Fatalf("Fetched.Offset = %d, want 10", row.Fetched.Offset)
	}
	if vm.GatewayClockMillis != 1000 {
		t.Fatalf("clock = %d, want 1000", vm.GatewayClockMillis)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	buf := edit.NewBuffer(nil, 0)
	if err := buf.Stage(device.AddressKey(2), edit.FieldCalibrationMark, 5); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	snap := snapshot(addressed(1, 100), addressed(2, 200), addressed(3, 300))

	first := Merge(snap, buf, device.IdentityAddress)
	second := Merge(snap, buf, device.IdentityAddress)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("merge not idempotent (-first +second):\n%s", diff)
	}
}

func TestMerge_LateFetchNeverOverwritesStagedEdit(t *testing.T) {
	buf := edit.NewBuffer(nil, 0)
	if err := buf.Stage(device.AddressKey(3), edit.FieldOffset, 500); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	// fetches completing in any order after the edit was staged
	fetches := []device.DeviceSnapshot{
		snapshot(addressed(3, 120), addressed(4, 7)),
		snapshot(addressed(3, 121)),
		snapshot(addressed(4, 8), addressed(3, 119)),
	}
	for i, snap := range fetches {
		row, ok := Merge(snap, buf, device.IdentityAddress).Row(device.AddressKey(3))
		if !ok {
			t.Fatalf("fetch %d: unit 3 missing", i)
		}
		if row.Unit.Offset != 500 {
			t.Fatalf("fetch %d: unit 3 offset = %d, want 500", i, row.Unit.Offset)
		}
	}
}

func TestMerge_ReorderingAddressPolicy(t *testing.T) {
	buf := edit.NewBuffer(nil, 0)
	if err := buf.Stage(device.AddressKey(1), edit.FieldOffset, 42); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	before := Merge(snapshot(addressed(1, 10), addressed(2, 20)), buf, device.IdentityAddress)
	after := Merge(snapshot(addressed(2, 20), addressed(1, 10)), buf, device.IdentityAddress)

	for _, vm := range []ViewModel{before, after} {
		row, _ := vm.Row(device.AddressKey(1))
		if row.Unit.Offset != 42 {
			t.Fatalf("unit 1 offset = %d, want 42", row.Unit.Offset)
		}
		other, _ := vm.Row(device.AddressKey(2))
		if other.Dirty || other.Unit.Offset != 20 {
			t.Fatalf("unit 2 = %+v, want clean offset 20", other)
		}
	}
	if after.Rows[1].BusAddress() != 1 {
		t.Fatalf("BusAddress = %d, want 1", after.Rows[1].BusAddress())
	}
}

func TestMerge_ReorderingPositionPolicy(t *testing.T) {
	buf := edit.NewBuffer(nil, 0)
	if err := buf.Stage(device.PositionKey(0), edit.FieldOffset, 42); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	// Position identity follows the slot, not the unit: after a reorder the
	// staged value lands on whichever unit is now first.
	after := Merge(snapshot(addressed(2, 20), addressed(1, 10)), buf, device.IdentityPosition)
	if got := after.Rows[0]; got.Fetched.Address != 2 || got.Unit.Offset != 42 {
		t.Fatalf("row 0 = %+v, want unit 2 carrying the staged 42", got)
	}
	if after.Rows[1].Dirty {
		t.Fatalf("row 1 dirty under position policy")
	}
}

func TestMerge_LegacyPayloadFallsBackToPosition(t *testing.T) {
	snap, err := device.Decode([]byte(`[5, 6]`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	buf := edit.NewBuffer(nil, 0)
	if err := buf.Stage(device.PositionKey(1), edit.FieldOffset, 66); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	vm := Merge(snap, buf, device.IdentityAddress)
	if vm.Rows[1].Key != device.PositionKey(1) || vm.Rows[1].Unit.Offset != 66 {
		t.Fatalf("row 1 = %+v, want #1 offset 66", vm.Rows[1])
	}
	if got := vm.Rows[1].BusAddress(); got != 1 {
		t.Fatalf("BusAddress = %d, want position 1", got)
	}
	if len(vm.DirtyRows()) != 1 {
		t.Fatalf("DirtyRows = %d, want 1", len(vm.DirtyRows()))
	}
}

func TestMerge_EmptySnapshotAndNilSource(t *testing.T) {
	vm := Merge(device.DeviceSnapshot{Units: []device.UnitState{}}, nil, device.IdentityAddress)
	if vm.Rows == nil || len(vm.Rows) != 0 {
		t.Fatalf("Rows = %#v, want empty", vm.Rows)
	}
}
