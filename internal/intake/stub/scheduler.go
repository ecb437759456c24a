// Package stub provides a manually fired intake.Scheduler for tests.
package stub

import (
	"sync"
	"time"

	"solana-token-feed/internal/intake"
)

// Scheduler records Arm calls and runs the armed callback only when Fire is called.
type Scheduler struct {
	mu       sync.Mutex
	f        func()
	arms     int
	duration time.Duration
}

var _ intake.Scheduler = (*Scheduler)(nil)

// New creates a disarmed scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) Arm(d time.Duration, f func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f != nil {
		return false
	}
	s.f = f
	s.arms++
	s.duration = d
	return true
}

func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	armed := s.f != nil
	s.f = nil
	return armed
}

func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f != nil
}

// Fire disarms and runs the pending callback on the calling goroutine.
// It returns false if nothing was armed.
func (s *Scheduler) Fire() bool {
	s.mu.Lock()
	f := s.f
	s.f = nil
	s.mu.Unlock()

	if f == nil {
		return false
	}
	f()
	return true
}

// Arms returns how many times Arm succeeded.
func (s *Scheduler) Arms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arms
}

// Duration returns the delay passed to the last successful Arm.
func (s *Scheduler) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}
