// Package reconcile merges fetched snapshots with staged edits.
package reconcile

import (
	"github.com/AfterAILab/flaps-esp/internal/device"
	"github.com/AfterAILab/flaps-esp/internal/edit"
)

// PendingSource yields the staged values for a unit, if any.
type PendingSource interface {
	Get(key device.UnitKey) (edit.Pending, bool)
}

// Row is one unit as the operator should see it.
type Row struct {
	Key      device.UnitKey
	Position int
	Fetched  device.UnitState // as reported by the gateway
	Unit     device.UnitState // fetched values with staged fields applied
	Pending  edit.Pending
	Dirty    bool
}

// BusAddress is the address a write for this row targets.
func (r Row) BusAddress() int {
	return device.BusAddress(r.Fetched, r.Position)
}

// ViewModel is the immutable result of one merge.
type ViewModel struct {
	Rows               []Row
	GatewayClockMillis int64
	Policy             device.IdentityPolicy
}

// Row returns the row for key.
func (v ViewModel) Row(key device.UnitKey) (Row, bool) {
	for _, r := range v.Rows {
		if r.Key == key {
			return r, true
		}
	}
	return Row{}, false
}

// DirtyRows returns the rows carrying staged values, in display order.
func (v ViewModel) DirtyRows() []Row {
	var out []Row
	for _, r := range v.Rows {
		if r.Dirty {
			out = append(out, r)
		}
	}
	return out
}

// Merge builds the view model for snap. Staged values win for the fields
// they cover; every other field comes from snap. Merge reads nothing but its
// arguments, so merging the same inputs again yields an equal view model no
// matter how many fetches completed in between.
func Merge(snap device.DeviceSnapshot, pending PendingSource, policy device.IdentityPolicy) ViewModel {
	rows := make([]Row, 0, len(snap.Units))
	for i, u := range snap.Units {
		key := policy.Key(u, i)
		row := Row{
			Key:      key,
			Position: i,
			Fetched:  u.Clone(),
			Unit:     u.Clone(),
		}
		if pending != nil {
			if p, ok := pending.Get(key); ok && !p.Empty() {
				row.Pending = p
				row.Unit = p.Apply(u)
				row.Dirty = true
			}
		}
		rows = append(rows, row)
	}
	return ViewModel{
		Rows:               rows,
		GatewayClockMillis: snap.GatewayClockMillis,
		Policy:             policy,
	}
}
