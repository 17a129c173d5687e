package backup

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AfterAILab/flaps-esp/internal/device"
	"github.com/AfterAILab/flaps-esp/internal/edit"
	"github.com/AfterAILab/flaps-esp/internal/reconcile"
)

func TestExportWritesFetchedValues(t *testing.T) {
	mark := 1
	snap := device.DeviceSnapshot{Units: []device.UnitState{
		{Address: 2, HasAddress: true, Offset: 1993, CalibrationMark: &mark},
		{Address: 5, HasAddress: true, Offset: 40},
	}}
	buf := edit.NewBuffer(nil, 0)
	require.NoError(t, buf.Stage(device.AddressKey(5), edit.FieldOffset, 41))
	view := reconcile.Merge(snap, buf, device.IdentityAddress)

	var out bytes.Buffer
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, Export(&out, "http://192.168.10.123", view, at))

	text := out.String()
	assert.Contains(t, text, "192.168.10.123")
	assert.Contains(t, text, "calibration_mark: 1")
	assert.Contains(t, text, "letter: A")
	assert.Contains(t, text, "offset: 40", "staged values are not exported")

	doc, err := Import(strings.NewReader(text), 0)
	require.NoError(t, err)
	require.Len(t, doc.Units, 2)
	assert.Equal(t, Entry{Address: 5, Offset: 40}, doc.Units[1])
	assert.True(t, doc.ExportedAt.Equal(at))
}

func TestImportValidates(t *testing.T) {
	doc := `
exported_at: 2026-03-01T09:00:00Z
units:
  - address: 1
    offset: 3000
  - address: 1
    offset: 10
    calibration_mark: 45
`
	_, err := Import(strings.NewReader(doc), 0)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "offset 3000 not in 0..2038")
	assert.Contains(t, msg, "duplicate address 1")
	assert.Contains(t, msg, "calibration mark 45")
}

func TestImportRejectsUnknownFieldsAndEmpty(t *testing.T) {
	_, err := Import(strings.NewReader("units:\n  - address: 1\n    ofset: 3\n"), 0)
	assert.Error(t, err)

	_, err = Import(strings.NewReader(""), 0)
	assert.ErrorContains(t, err, "empty document")
}
