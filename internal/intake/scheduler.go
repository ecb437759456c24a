package intake

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// Scheduler runs a single deferred callback.
type Scheduler interface {
	// Arm schedules f to run once after d. It returns false and does nothing
	// if a callback is already armed.
	Arm(d time.Duration, f func()) bool
	// Cancel disarms a pending callback. It returns false if nothing was armed.
	Cancel() bool
	// Armed reports whether a callback is pending.
	Armed() bool
}

// ClockScheduler is a Scheduler backed by a clock.Clock.
type ClockScheduler struct {
	clock clock.Clock

	mu    sync.Mutex
	timer clock.Timer
	gen   uint64
}

var _ Scheduler = (*ClockScheduler)(nil)

// NewClockScheduler creates a scheduler on clk. A nil clk uses the wall clock.
func NewClockScheduler(clk clock.Clock) *ClockScheduler {
	if clk == nil {
		clk = clock.WallClock
	}
	return &ClockScheduler{clock: clk}
}

// Arm implements Scheduler.
func (s *ClockScheduler) Arm(d time.Duration, f func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		return false
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		if s.gen != gen || s.timer == nil {
			// Cancelled, or superseded by a later Arm.
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		f()
	})
	return true
}

// Cancel implements Scheduler.
func (s *ClockScheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	s.gen++
	return true
}

// Armed implements Scheduler.
func (s *ClockScheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
