// Package edit holds the operator's uncommitted per-unit values.
package edit

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/AfterAILab/flaps-esp/internal/device"
)

// Field names an operator-editable unit field.
type Field int

const (
	FieldOffset Field = iota
	FieldCalibrationMark
)

func (f Field) String() string {
	if f == FieldCalibrationMark {
		return "calibration mark"
	}
	return "offset"
}

// ErrOutOfRange is returned when a staged value cannot be sent to a unit.
var ErrOutOfRange = errors.New("value out of range")

// Pending is the set of fields staged for one unit. Nil fields are not staged.
type Pending struct {
	Offset          *int
	CalibrationMark *int
}

// Apply overlays the staged fields on a fetched unit state.
func (p Pending) Apply(u device.UnitState) device.UnitState {
	out := u.Clone()
	if p.Offset != nil {
		out.Offset = *p.Offset
	}
	if p.CalibrationMark != nil {
		mark := *p.CalibrationMark
		out.CalibrationMark = &mark
	}
	return out
}

// Empty reports whether nothing is staged.
func (p Pending) Empty() bool {
	return p.Offset == nil && p.CalibrationMark == nil
}

// Equal reports whether both stage the same fields with the same values.
func (p Pending) Equal(o Pending) bool {
	return equalPtr(p.Offset, o.Offset) && equalPtr(p.CalibrationMark, o.CalibrationMark)
}

func equalPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (p Pending) clone() Pending {
	var out Pending
	if p.Offset != nil {
		v := *p.Offset
		out.Offset = &v
	}
	if p.CalibrationMark != nil {
		v := *p.CalibrationMark
		out.CalibrationMark = &v
	}
	return out
}

// Pauser is notified whenever a value is staged so polling can stop.
type Pauser interface {
	PauseForEdit()
	EditPaused() bool
}

// Buffer maps unit identity to staged values.
type Buffer struct {
	mu        sync.Mutex
	entries   map[device.UnitKey]Pending
	pauser    Pauser
	maxOffset int
}

// NewBuffer returns an empty buffer. maxOffset <= 0 uses the firmware default.
func NewBuffer(pauser Pauser, maxOffset int) *Buffer {
	if maxOffset <= 0 {
		maxOffset = device.DefaultMaxOffset
	}
	return &Buffer{
		entries:   make(map[device.UnitKey]Pending),
		pauser:    pauser,
		maxOffset: maxOffset,
	}
}

// Stage records a pending value and pauses polling. A calibration mark also
// stages the firmware-suggested offset for that mark since the firmware
// resets the offset whenever the mark changes.
func (b *Buffer) Stage(key device.UnitKey, field Field, value int) error {
	switch field {
	case FieldOffset:
		if value < 0 || value > b.maxOffset {
			return fmt.Errorf("offset %d not in 0..%d: %w", value, b.maxOffset, ErrOutOfRange)
		}
	case FieldCalibrationMark:
		if !device.ValidMark(value) {
			return fmt.Errorf("calibration mark %d not in 0..%d: %w", value, device.NumMarks-1, ErrOutOfRange)
		}
	default:
		return fmt.Errorf("unknown field %d", field)
	}

	b.mu.Lock()
	p := b.entries[key]
	switch field {
	case FieldOffset:
		v := value
		p.Offset = &v
	case FieldCalibrationMark:
		mark := value
		offset := device.SuggestedOffset(value)
		p.CalibrationMark = &mark
		p.Offset = &offset
	}
	b.entries[key] = p
	b.mu.Unlock()

	if b.pauser != nil {
		b.pauser.PauseForEdit()
	}
	return nil
}

// Get returns a copy of the values staged for key.
func (b *Buffer) Get(key device.UnitKey) (Pending, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.entries[key]
	if !ok {
		return Pending{}, false
	}
	return p.clone(), true
}

// Clear drops whatever is staged for key.
func (b *Buffer) Clear(key device.UnitKey) {
	b.mu.Lock()
	delete(b.entries, key)
	b.mu.Unlock()
}

// ClearIfUnchanged drops the entry for key only while it still holds want,
// so a value staged after want was sent survives. It reports whether the
// entry was removed.
func (b *Buffer) ClearIfUnchanged(key device.UnitKey, want Pending) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.entries[key]
	if !ok || !cur.Equal(want) {
		return false
	}
	delete(b.entries, key)
	return true
}

// ClearAll empties the buffer.
func (b *Buffer) ClearAll() {
	b.mu.Lock()
	b.entries = make(map[device.UnitKey]Pending)
	b.mu.Unlock()
}

// IsEmpty reports whether nothing is staged.
func (b *Buffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries) == 0
}

// Len returns the number of units with staged values.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Keys returns staged keys, address keys first, each kind in ascending order.
func (b *Buffer) Keys() []device.UnitKey {
	b.mu.Lock()
	keys := make([]device.UnitKey, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	b.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].Value < keys[j].Value
	})
	return keys
}

// Paused reports whether polling is currently paused for an edit.
func (b *Buffer) Paused() bool {
	if b.pauser == nil {
		return false
	}
	return b.pauser.EditPaused()
}

// MaxOffset is the largest offset the buffer accepts.
func (b *Buffer) MaxOffset() int {
	return b.maxOffset
}
