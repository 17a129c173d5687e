// Package backup exports and imports per-unit calibration as YAML.
package backup

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AfterAILab/flaps-esp/internal/device"
	"github.com/AfterAILab/flaps-esp/internal/reconcile"
)

// Entry is one unit's saved calibration.
type Entry struct {
	Address         int    `yaml:"address"`
	Offset          int    `yaml:"offset"`
	CalibrationMark *int   `yaml:"calibration_mark,omitempty"`
	Letter          string `yaml:"letter,omitempty"`
}

// File is the on-disk document.
type File struct {
	Gateway    string    `yaml:"gateway,omitempty"`
	ExportedAt time.Time `yaml:"exported_at"`
	Units      []Entry   `yaml:"units"`
}

// Export writes the fetched (not staged) values of every unit in view.
func Export(w io.Writer, gateway string, view reconcile.ViewModel, at time.Time) error {
	doc := File{Gateway: gateway, ExportedAt: at.UTC(), Units: make([]Entry, 0, len(view.Rows))}
	for _, r := range view.Rows {
		e := Entry{Address: r.BusAddress(), Offset: r.Fetched.Offset}
		if mark, ok := r.Fetched.Mark(); ok {
			m := mark
			e.CalibrationMark = &m
			e.Letter = device.MarkLabel(mark)
		}
		doc.Units = append(doc.Units, e)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return enc.Close()
}

// Import reads and validates a backup. Every problem is reported, not just
// the first.
func Import(r io.Reader, maxOffset int) (File, error) {
	if maxOffset <= 0 {
		maxOffset = device.DefaultMaxOffset
	}
	var doc File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, fmt.Errorf("decode backup: empty document")
		}
		return File{}, fmt.Errorf("decode backup: %w", err)
	}

	var errs []error
	seen := make(map[int]bool, len(doc.Units))
	for i, e := range doc.Units {
		if e.Address < 0 {
			errs = append(errs, fmt.Errorf("units[%d]: negative address %d", i, e.Address))
		}
		if seen[e.Address] {
			errs = append(errs, fmt.Errorf("units[%d]: duplicate address %d", i, e.Address))
		}
		seen[e.Address] = true
		if e.Offset < 0 || e.Offset > maxOffset {
			errs = append(errs, fmt.Errorf("units[%d]: offset %d not in 0..%d", i, e.Offset, maxOffset))
		}
		if e.CalibrationMark != nil && !device.ValidMark(*e.CalibrationMark) {
			errs = append(errs, fmt.Errorf("units[%d]: calibration mark %d not in 0..%d", i, *e.CalibrationMark, device.NumMarks-1))
		}
	}
	if len(errs) > 0 {
		return File{}, errors.Join(errs...)
	}
	return doc, nil
}
