// Package syncer reconciles local optimistic writes with the server's change
// feed: it ignores echoes of our own writes for a short window and collapses
// bursts of remote changes into a single refetch.
package syncer

import (
	"sync"
	"time"
)

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

// Clock creates timers. Tests swap in a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock is backed by the time package.
var RealClock Clock = realClock{}

// Scheduler holds at most one deferred action. Scheduling replaces whatever
// was pending.
type Scheduler struct {
	clock Clock

	mu      sync.Mutex
	gen     uint64
	timer   Timer
	stopped bool
}

// NewScheduler returns an idle Scheduler.
func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock
	}
	return &Scheduler{clock: clock}
}

// Schedule runs fn after d unless it is replaced, cancelled or the scheduler
// is stopped first. It reports false once the scheduler is stopped.
func (s *Scheduler) Schedule(d time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.cancelLocked()
	gen := s.gen
	s.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		if s.stopped || s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
	return true
}

// Cancel drops the pending action, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()
}

func (s *Scheduler) cancelLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Stop cancels the pending action and rejects later ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancelLocked()
	s.stopped = true
	s.mu.Unlock()
}

// Pending reports whether an action is waiting to run.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
