// Package console wires polling, editing and committing into one engine that
// the TUI and CLI drive.
package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AfterAILab/flaps-esp/internal/commit"
	"github.com/AfterAILab/flaps-esp/internal/device"
	"github.com/AfterAILab/flaps-esp/internal/edit"
	"github.com/AfterAILab/flaps-esp/internal/gateway"
	"github.com/AfterAILab/flaps-esp/internal/poll"
	"github.com/AfterAILab/flaps-esp/internal/reconcile"
	"github.com/AfterAILab/flaps-esp/internal/state"
)

var (
	// ErrUnknownUnit is returned when a key names no unit in the current view.
	ErrUnknownUnit = errors.New("unit not in current snapshot")
	// ErrBusy is returned when a commit is already running.
	ErrBusy = errors.New("a commit is already in progress")
	// ErrMarksUnsupported is returned when the gateway cannot write marks.
	ErrMarksUnsupported = errors.New("gateway firmware does not support calibration marks")
)

// Gateway is the subset of the gateway client the engine uses.
type Gateway interface {
	FetchSnapshot(ctx context.Context) (device.DeviceSnapshot, error)
	WriteUnits(ctx context.Context, writes []gateway.UnitWrite) error
	WriteOffset(ctx context.Context, w gateway.OffsetWrite) error
	FetchClock(ctx context.Context) (gateway.ClockResponse, error)
	FetchMeta(ctx context.Context) (gateway.MetaResponse, error)
	Endpoint() gateway.Endpoint
}

// Recorder persists successful snapshots.
type Recorder interface {
	Record(ctx context.Context, snap device.DeviceSnapshot) error
}

// Options configure a Console.
type Options struct {
	Identity  device.IdentityPolicy
	MaxOffset int
	Settle    time.Duration
	Poll      poll.Options
	Recorder  Recorder
	Logger    *zap.Logger

	// Sleep replaces the settle wait; tests use it to skip real time.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Status summarizes the engine for headers and status lines.
type Status struct {
	Phase   Phase
	Poll    poll.State
	Pending int
}

// Console owns the scheduler, edit buffer and commit protocol for one gateway.
type Console struct {
	ctx      context.Context
	gw       Gateway
	store    *state.Store
	sched    *poll.Scheduler
	buffer   *edit.Buffer
	proto    *commit.Protocol
	policy   device.IdentityPolicy
	recorder Recorder
	logger   *zap.Logger

	mu    sync.Mutex
	phase Phase
}

// New builds an idle console. Polling does not start until Start.
func New(ctx context.Context, gw Gateway, store *state.Store, opts Options) *Console {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c := &Console{
		ctx:      ctx,
		gw:       gw,
		store:    store,
		policy:   opts.Identity,
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}

	pollOpts := opts.Poll
	pollOpts.Logger = opts.Logger.Named("poll")
	c.sched = poll.New(ctx, func(ctx context.Context) { _ = c.Refresh(ctx) }, pollOpts)
	c.buffer = edit.NewBuffer(c.sched, opts.MaxOffset)
	c.proto = commit.New(gw, gw, c.sched, c.buffer, store, commit.Options{
		Settle:     opts.Settle,
		Bulk:       gw.Endpoint().Bulk(),
		Sleep:      opts.Sleep,
		Logger:     opts.Logger.Named("commit"),
		OnAccepted: func(string) { c.setPhase(PhaseReconciling) },
	})
	return c
}

// Start loads gateway identity and begins polling at cadence.
func (c *Console) Start(cadence poll.Cadence) {
	if meta, err := c.gw.FetchMeta(c.ctx); err != nil {
		c.logger.Debug("meta fetch failed", zap.Error(err))
	} else {
		c.store.SetChipID(meta.ChipID)
	}
	if cadence == poll.Stopped {
		// nothing would populate the view otherwise
		_ = c.Refresh(c.ctx)
	}
	c.sched.Start(cadence)
}

// Refresh fetches one snapshot into the store. Failures are recorded in the
// store and returned, never panicked; the poll loop ignores the return value.
func (c *Console) Refresh(ctx context.Context) error {
	snap, err := c.gw.FetchSnapshot(ctx)
	if err != nil {
		c.store.Update(nil, err)
		failures := c.store.Snapshot().ConsecutiveFailures
		var decodeErr *device.DecodeError
		switch {
		case errors.As(err, &decodeErr):
			c.logger.Warn("snapshot decode failed", zap.Error(err))
			c.store.Notify(state.NoticeWarn, "gateway sent unreadable data: %v", err)
		case failures == 1:
			c.logger.Warn("snapshot fetch failed", zap.Error(err))
			c.store.Notify(state.NoticeError, "gateway unreachable: %v", err)
		default:
			c.logger.Debug("snapshot fetch failed", zap.Error(err), zap.Int("failures", failures))
		}
		return err
	}

	c.store.Update(&snap, nil)

	if clock, err := c.gw.FetchClock(ctx); err == nil {
		c.store.SetClock(clock.Clock)
	} else {
		c.logger.Debug("clock fetch failed", zap.Error(err))
	}

	if c.recorder != nil {
		if err := c.recorder.Record(ctx, snap); err != nil {
			c.logger.Warn("history record failed", zap.Error(err))
		}
	}
	return nil
}

// View merges the last good snapshot with the staged edits.
func (c *Console) View() reconcile.ViewModel {
	return reconcile.Merge(c.store.Snapshot().Device, c.buffer, c.policy)
}

// Snapshot returns the store contents.
func (c *Console) Snapshot() state.Snapshot {
	return c.store.Snapshot()
}

// Status reports phase, poll state and pending edit count.
func (c *Console) Status() Status {
	return Status{Phase: c.Phase(), Poll: c.sched.State(), Pending: c.buffer.Len()}
}

// Phase returns the current phase.
func (c *Console) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Buffer exposes the edit buffer for read-only inspection.
func (c *Console) Buffer() *edit.Buffer { return c.buffer }

// MaxOffset is the largest offset the console will stage.
func (c *Console) MaxOffset() int { return c.buffer.MaxOffset() }

// MarksSupported reports whether calibration marks can be written.
func (c *Console) MarksSupported() bool { return c.gw.Endpoint().Bulk() }

// SetCadence applies an operator cadence choice.
func (c *Console) SetCadence(cadence poll.Cadence) {
	c.logger.Info("cadence changed", zap.Stringer("cadence", cadence))
	c.sched.SetCadence(cadence)
}

// ResumePolling restarts polling every second without touching staged edits,
// for example after a rejected commit the operator does not want to retry.
func (c *Console) ResumePolling() {
	c.sched.ResumeAfterCommit()
}

// StageOffset stages an offset for key and pauses polling.
func (c *Console) StageOffset(key device.UnitKey, offset int) error {
	return c.stage(key, edit.FieldOffset, offset)
}

// StageCalibration stages a calibration mark, which also stages the
// firmware-suggested offset for it.
func (c *Console) StageCalibration(key device.UnitKey, mark int) error {
	if !c.MarksSupported() {
		return ErrMarksUnsupported
	}
	return c.stage(key, edit.FieldCalibrationMark, mark)
}

func (c *Console) stage(key device.UnitKey, field edit.Field, value int) error {
	if _, ok := c.View().Row(key); !ok {
		return fmt.Errorf("stage %s for %s: %w", field, key, ErrUnknownUnit)
	}
	if err := c.buffer.Stage(key, field, value); err != nil {
		return err
	}
	c.logger.Debug("edit staged", zap.Stringer("unit", key), zap.Stringer("field", field), zap.Int("value", value))
	c.mu.Lock()
	if c.phase == PhaseIdle {
		c.transitionLocked(PhaseEditing)
	}
	c.mu.Unlock()
	return nil
}

// Discard drops the staged values of one unit. Polling resumes once nothing
// is left staged.
func (c *Console) Discard(key device.UnitKey) {
	c.buffer.Clear(key)
	c.afterDiscard()
}

// DiscardAll drops every staged value and resumes polling.
func (c *Console) DiscardAll() {
	c.buffer.ClearAll()
	c.afterDiscard()
}

func (c *Console) afterDiscard() {
	if !c.buffer.IsEmpty() {
		return
	}
	c.mu.Lock()
	editing := c.phase == PhaseEditing
	if editing {
		c.transitionLocked(PhaseIdle)
	}
	c.mu.Unlock()
	if editing && c.sched.EditPaused() {
		c.sched.ResumeAfterCommit()
	}
}

// Commit writes the staged values of one unit.
func (c *Console) Commit(ctx context.Context, key device.UnitKey) (commit.Result, error) {
	view := c.View()
	if _, ok := view.Row(key); !ok {
		return commit.Result{}, fmt.Errorf("commit %s: %w", key, ErrUnknownUnit)
	}
	return c.run(func() (commit.Result, error) {
		return c.proto.Commit(ctx, view.Rows, key)
	})
}

// CommitAll writes every staged value.
func (c *Console) CommitAll(ctx context.Context) (commit.Result, error) {
	view := c.View()
	return c.run(func() (commit.Result, error) {
		return c.proto.CommitAll(ctx, view.Rows)
	})
}

func (c *Console) run(do func() (commit.Result, error)) (commit.Result, error) {
	c.mu.Lock()
	if c.phase == PhaseCommitting || c.phase == PhaseReconciling {
		c.mu.Unlock()
		return commit.Result{}, ErrBusy
	}
	prev := c.phase
	c.transitionLocked(PhaseCommitting)
	c.mu.Unlock()

	res, err := do()

	switch {
	case errors.Is(err, commit.ErrNothingStaged):
		c.setPhase(prev)
		return res, err
	case err != nil:
		c.store.Notify(state.NoticeError, "commit failed, edits kept and polling paused: %v", err)
	case res.RefetchErr != nil:
		c.store.Notify(state.NoticeWarn, "committed %d unit(s) but refetch failed: %v", len(res.Written), res.RefetchErr)
	default:
		c.store.Notify(state.NoticeInfo, "committed %d unit(s)", len(res.Written))
	}

	if c.buffer.IsEmpty() {
		c.setPhase(PhaseIdle)
	} else {
		c.setPhase(PhaseEditing)
	}
	return res, err
}

func (c *Console) setPhase(p Phase) {
	c.mu.Lock()
	c.transitionLocked(p)
	c.mu.Unlock()
}

func (c *Console) transitionLocked(p Phase) {
	if c.phase == p {
		return
	}
	c.logger.Debug("phase transition", zap.Stringer("from", c.phase), zap.Stringer("to", p))
	c.phase = p
}

// Close stops polling and waits for the poll goroutine.
func (c *Console) Close() {
	c.sched.Close()
}
