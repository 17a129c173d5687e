package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/AfterAILab/flaps-esp/internal/device"
)

// NoticeLevel ranks an operator notification.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarn
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeWarn:
		return "warn"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a message for the operator, such as a failed commit.
type Notice struct {
	At      time.Time
	Level   NoticeLevel
	Message string
}

const maxNotices = 50

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Device              device.DeviceSnapshot
	HasDevice           bool
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive poll failures

	Clock  string
	ChipID string

	Notices []Notice // oldest first
}

// IsOffline returns true when the gateway has been unreachable for multiple polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// LatestNotice returns the most recent notice, if any.
func (s Snapshot) LatestNotice() (Notice, bool) {
	if len(s.Notices) == 0 {
		return Notice{}, false
	}
	return s.Notices[len(s.Notices)-1], true
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update replaces the stored device snapshot. When err is non-nil the previous
// data is kept but the error is recorded for visibility.
func (s *Store) Update(snap *device.DeviceSnapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.LastUpdated = time.Now()
		s.snapshot.ConsecutiveFailures++
		return
	}

	if snap != nil {
		s.snapshot.Device = snap.Clone()
		s.snapshot.HasDevice = true
	}
	s.snapshot.LastError = nil
	s.snapshot.LastUpdated = time.Now()
	s.snapshot.ConsecutiveFailures = 0
}

// SetClock records the gateway's formatted wall clock.
func (s *Store) SetClock(clock string) {
	s.mu.Lock()
	s.snapshot.Clock = clock
	s.mu.Unlock()
}

// SetChipID records the gateway identity.
func (s *Store) SetChipID(id string) {
	s.mu.Lock()
	s.snapshot.ChipID = id
	s.mu.Unlock()
}

// Notify appends an operator notice, dropping the oldest beyond the limit.
func (s *Store) Notify(level NoticeLevel, format string, args ...any) {
	n := Notice{At: time.Now(), Level: level, Message: fmt.Sprintf(format, args...)}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Notices = append(s.snapshot.Notices, n)
	if over := len(s.snapshot.Notices) - maxNotices; over > 0 {
		s.snapshot.Notices = append([]Notice(nil), s.snapshot.Notices[over:]...)
	}
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Device = s.snapshot.Device.Clone()
	if len(s.snapshot.Notices) > 0 {
		snap.Notices = append([]Notice(nil), s.snapshot.Notices...)
	}
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}
