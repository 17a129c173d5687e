// Package poll drives periodic snapshot refresh for the console.
package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cadence is the operator-selected refresh rate.
type Cadence int

const (
	Stopped Cadence = iota
	EverySecond
	Every10Seconds
)

func (c Cadence) String() string {
	switch c {
	case EverySecond:
		return "1s"
	case Every10Seconds:
		return "10s"
	default:
		return "stop"
	}
}

// ParseCadence maps the config/CLI spelling to a cadence.
func ParseCadence(value string) (Cadence, error) {
	switch value {
	case "stop", "stopped", "off":
		return Stopped, nil
	case "", "1s", "second":
		return EverySecond, nil
	case "10s":
		return Every10Seconds, nil
	default:
		return Stopped, fmt.Errorf("unknown scan cadence %q (want stop, 1s or 10s)", value)
	}
}

// FetchFunc performs one snapshot fetch. It owns its own error handling;
// the scheduler only recovers panics so the timer keeps running.
type FetchFunc func(ctx context.Context)

// Options tune a Scheduler. Zero values use the production intervals.
type Options struct {
	EverySecond    time.Duration
	Every10Seconds time.Duration
	Logger         *zap.Logger
}

// State is a point-in-time view of the scheduler.
type State struct {
	Cadence    Cadence
	EditPaused bool
	Running    bool
	Generation uint64
}

// Scheduler owns the single repeating poll timer.
//
// Each armed timer gets its own cancel func and generation number. Stopping
// cancels the timer only: fetches run on the scheduler's parent context, so a
// fetch already in flight finishes and still delivers its result.
type Scheduler struct {
	parent    context.Context
	fetch     FetchFunc
	intervals map[Cadence]time.Duration
	logger    *zap.Logger

	mu         sync.Mutex
	cadence    Cadence
	editPaused bool
	cancel     context.CancelFunc
	generation uint64
	closed     bool

	wg sync.WaitGroup
}

// New returns a stopped scheduler. parent bounds every fetch it issues.
func New(parent context.Context, fetch FetchFunc, opts Options) *Scheduler {
	if opts.EverySecond <= 0 {
		opts.EverySecond = time.Second
	}
	if opts.Every10Seconds <= 0 {
		opts.Every10Seconds = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scheduler{
		parent: parent,
		fetch:  fetch,
		intervals: map[Cadence]time.Duration{
			EverySecond:    opts.EverySecond,
			Every10Seconds: opts.Every10Seconds,
		},
		logger: opts.Logger,
	}
}

// Start fetches immediately and then repeats at the cadence interval,
// replacing any running timer. Start(Stopped) is Stop.
func (s *Scheduler) Start(c Cadence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editPaused = false
	s.armLocked(c)
}

// Stop cancels the running timer. It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editPaused = false
	s.stopLocked()
}

// SetCadence is an explicit operator choice, so it also clears an
// edit-initiated pause.
func (s *Scheduler) SetCadence(c Cadence) {
	s.Start(c)
}

// PauseForEdit stops polling and remembers the pause came from an edit.
func (s *Scheduler) PauseForEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || !s.editPaused {
		s.logger.Debug("poll paused for edit", zap.Stringer("was", s.cadence))
	}
	s.stopLocked()
	s.editPaused = true
}

// ResumeAfterCommit restarts polling every second whatever the cadence was
// before the edit.
func (s *Scheduler) ResumeAfterCommit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editPaused = false
	s.armLocked(EverySecond)
}

// EditPaused reports whether polling is stopped because of an edit.
func (s *Scheduler) EditPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editPaused
}

// State returns the current cadence and timer status.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Cadence:    s.cadence,
		EditPaused: s.editPaused,
		Running:    s.cancel != nil,
		Generation: s.generation,
	}
}

// Close stops the timer and waits for its goroutine, including any fetch
// it is running, to return. The scheduler cannot be restarted.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.stopLocked()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.logger.Debug("poll timer stopped", zap.Uint64("generation", s.generation))
	}
	s.cadence = Stopped
}

func (s *Scheduler) armLocked(c Cadence) {
	s.stopLocked()
	if c == Stopped || s.closed {
		return
	}
	interval := s.intervals[c]
	s.generation++
	gen := s.generation
	timerCtx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel
	s.cadence = c

	s.logger.Debug("poll timer armed",
		zap.Stringer("cadence", c),
		zap.Duration("interval", interval),
		zap.Uint64("generation", gen))

	s.wg.Add(1)
	go s.run(timerCtx, gen, interval)
}

func (s *Scheduler) run(ctx context.Context, gen uint64, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if !s.current(ctx, gen) {
			return
		}
		s.fetchOnce(gen)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// current reports whether gen is still the armed timer. A superseded timer
// must not fetch even if its tick raced the cancellation.
func (s *Scheduler) current(ctx context.Context, gen uint64) bool {
	if ctx.Err() != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil && s.generation == gen
}

func (s *Scheduler) fetchOnce(gen uint64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("poll fetch panicked", zap.Any("panic", r), zap.Uint64("generation", gen))
		}
	}()
	s.fetch(s.parent)
}
