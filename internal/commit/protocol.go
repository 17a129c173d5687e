// Package commit sends staged edits to the gateway and re-reads the result
// once the secondary bus has had time to apply them.
package commit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AfterAILab/flaps-esp/internal/device"
	"github.com/AfterAILab/flaps-esp/internal/edit"
	"github.com/AfterAILab/flaps-esp/internal/gateway"
	"github.com/AfterAILab/flaps-esp/internal/reconcile"
)

// Settle delay bounds. The gateway answers a write before the bus has
// carried it to the unit; the settle delay is how long to wait before
// trusting a re-read. It is an approximation, not a completion signal.
const (
	DefaultSettle = time.Second
	MinSettle     = 500 * time.Millisecond
	MaxSettle     = 5 * time.Second
)

// ClampSettle bounds d to MinSettle..MaxSettle; zero means DefaultSettle.
func ClampSettle(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultSettle
	case d < MinSettle:
		return MinSettle
	case d > MaxSettle:
		return MaxSettle
	default:
		return d
	}
}

// ErrNothingStaged is returned when a commit has no dirty rows.
var ErrNothingStaged = errors.New("no staged edits to commit")

// Writer sends unit writes to the gateway.
type Writer interface {
	WriteUnits(ctx context.Context, writes []gateway.UnitWrite) error
	WriteOffset(ctx context.Context, w gateway.OffsetWrite) error
}

// Fetcher re-reads unit state.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) (device.DeviceSnapshot, error)
}

// Scheduler is the poll control the protocol drives.
type Scheduler interface {
	PauseForEdit()
	ResumeAfterCommit()
}

// Buffer is the edit buffer entries are cleared from.
type Buffer interface {
	ClearIfUnchanged(key device.UnitKey, want edit.Pending) bool
	IsEmpty() bool
}

// Sink receives the re-fetched snapshot, or the re-fetch error.
type Sink interface {
	Update(snap *device.DeviceSnapshot, err error)
}

// Options configure a Protocol.
type Options struct {
	Settle time.Duration
	// Bulk sends all rows in one POST /unit; otherwise each row is its own
	// POST /offset, in order, stopping at the first failure.
	Bulk   bool
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *zap.Logger
	// OnAccepted runs after the gateway accepted the writes, before the
	// settle delay.
	OnAccepted func(id string)
}

// Result describes a commit that reached the gateway.
type Result struct {
	ID       string
	Written  []device.UnitKey // accepted by the gateway
	Cleared  []device.UnitKey // removed from the edit buffer
	Snapshot *device.DeviceSnapshot
	// RefetchErr is set when the writes were accepted but the follow-up read
	// failed. The buffer is cleared and polling resumed regardless.
	RefetchErr error
}

// Protocol runs pause, write, settle, re-fetch, clear, resume.
type Protocol struct {
	writer  Writer
	fetcher Fetcher
	sched   Scheduler
	buffer  Buffer
	sink    Sink

	settle time.Duration
	bulk   bool
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger

	onAccepted func(id string)

	mu sync.Mutex
}

// New returns a Protocol. sink may be nil.
func New(w Writer, f Fetcher, s Scheduler, b Buffer, sink Sink, opts Options) *Protocol {
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Protocol{
		writer:  w,
		fetcher: f,
		sched:   s,
		buffer:  b,
		sink:    sink,
		settle:  opts.Settle,
		bulk:    opts.Bulk,
		sleep:   opts.Sleep,
		logger:  opts.Logger,

		onAccepted: opts.OnAccepted,
	}
}

// Settle returns the configured settle delay.
func (p *Protocol) Settle() time.Duration { return p.settle }

// Commit writes the staged values of the unit at key. rows is the whole
// current view in snapshot order; a bulk write carries every unit, so the
// others are sent with their fetched values.
func (p *Protocol) Commit(ctx context.Context, rows []reconcile.Row, key device.UnitKey) (Result, error) {
	var selected []reconcile.Row
	for _, r := range rows {
		if r.Key == key && r.Dirty {
			selected = append(selected, r)
		}
	}
	return p.commit(ctx, rows, selected)
}

// CommitAll writes every dirty row. On a write failure nothing is cleared
// and polling stays paused; the returned error is a *gateway.CommitRejected
// or *gateway.TransportError.
func (p *Protocol) CommitAll(ctx context.Context, rows []reconcile.Row) (Result, error) {
	dirty := make([]reconcile.Row, 0, len(rows))
	for _, r := range rows {
		if r.Dirty {
			dirty = append(dirty, r)
		}
	}
	return p.commit(ctx, rows, dirty)
}

func (p *Protocol) commit(ctx context.Context, rows, dirty []reconcile.Row) (Result, error) {
	if len(dirty) == 0 {
		return Result{}, ErrNothingStaged
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res := Result{ID: uuid.NewString()}
	log := p.logger.With(zap.String("commit", res.ID), zap.Int("units", len(dirty)))

	p.sched.PauseForEdit()

	written, err := p.write(ctx, rows, dirty)
	res.Written = written
	if err != nil {
		log.Warn("commit write failed; edits kept and polling paused",
			zap.Int("accepted", len(written)), zap.Error(err))
		return res, fmt.Errorf("commit %s: %w", res.ID, err)
	}
	log.Info("commit accepted by gateway", zap.Duration("settle", p.settle))
	if p.onAccepted != nil {
		p.onAccepted(res.ID)
	}

	if err := p.sleep(ctx, p.settle); err != nil {
		log.Warn("commit settle interrupted", zap.Error(err))
		return res, fmt.Errorf("commit %s: settle: %w", res.ID, err)
	}

	snap, fetchErr := p.fetcher.FetchSnapshot(ctx)
	if fetchErr != nil {
		res.RefetchErr = fetchErr
		log.Warn("commit refetch failed", zap.Error(fetchErr))
	} else {
		res.Snapshot = &snap
	}
	// store the re-read before clearing so a merge never sees the old
	// snapshot without the staged values over it
	if p.sink != nil {
		if fetchErr != nil {
			p.sink.Update(nil, fetchErr)
		} else {
			p.sink.Update(&snap, nil)
		}
	}

	for _, r := range dirty {
		if p.buffer.ClearIfUnchanged(r.Key, r.Pending) {
			res.Cleared = append(res.Cleared, r.Key)
		}
	}

	if p.buffer.IsEmpty() {
		p.sched.ResumeAfterCommit()
	} else {
		// edits staged during the settle delay, or left out of this commit
		p.sched.PauseForEdit()
	}
	log.Info("commit reconciled", zap.Int("cleared", len(res.Cleared)))
	return res, nil
}

func (p *Protocol) write(ctx context.Context, rows, dirty []reconcile.Row) ([]device.UnitKey, error) {
	if p.bulk {
		keys := make([]device.UnitKey, 0, len(dirty))
		for _, r := range dirty {
			keys = append(keys, r.Key)
		}
		if err := p.writer.WriteUnits(ctx, BulkPayload(rows, keys)); err != nil {
			return nil, err
		}
		return keys, nil
	}

	var keys []device.UnitKey
	for _, r := range dirty {
		w := gateway.OffsetWrite{Unit: r.BusAddress(), Offset: r.Unit.Offset}
		if err := p.writer.WriteOffset(ctx, w); err != nil {
			return keys, fmt.Errorf("unit %d: %w", w.Unit, err)
		}
		keys = append(keys, r.Key)
	}
	return keys, nil
}

// BulkPayload builds the POST /unit body: one entry per row, in snapshot
// order, since the gateway applies entries by slot. Units in keys carry
// their staged values; every other unit repeats what it last reported.
func BulkPayload(rows []reconcile.Row, keys []device.UnitKey) []gateway.UnitWrite {
	commit := make(map[device.UnitKey]bool, len(keys))
	for _, k := range keys {
		commit[k] = true
	}
	writes := make([]gateway.UnitWrite, 0, len(rows))
	for _, r := range rows {
		u := r.Fetched
		if commit[r.Key] {
			u = r.Unit
		}
		w := gateway.UnitWrite{UnitAddr: r.BusAddress(), Offset: u.Offset}
		if mark, ok := u.Mark(); ok {
			w.Mark = mark
		}
		writes = append(writes, w)
	}
	return writes
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
