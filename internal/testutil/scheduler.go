package testutil

import (
	"sort"
	"sync"
	"time"
)

// ManualScheduler collects scheduled callbacks and fires them only when
// the test advances its clock. Callbacks due at the same time fire in the
// order they were scheduled.
//
// Implements machine.Scheduler.
type ManualScheduler struct {
	mu      sync.Mutex
	clock   *FakeClock
	next    int
	pending []scheduled
}

type scheduled struct {
	due  time.Time
	seq  int
	fire func()
}

// NewManualScheduler creates a scheduler driven by clock.
func NewManualScheduler(clock *FakeClock) *ManualScheduler {
	return &ManualScheduler{clock: clock}
}

// Schedule records fire to run once the clock reaches now+delay.
func (s *ManualScheduler) Schedule(delay time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.pending = append(s.pending, scheduled{
		due:  s.clock.Now().Add(delay),
		seq:  s.next,
		fire: fire,
	})
}

// Advance moves the clock forward by d, stopping at each due time to fire
// the callbacks scheduled for it. It returns the number fired. Callbacks
// scheduled while advancing fire too when they fall inside the window.
func (s *ManualScheduler) Advance(d time.Duration) int {
	end := s.clock.Now().Add(d)
	fired := 0
	for {
		item, ok := s.popDue(end)
		if !ok {
			break
		}
		if item.due.After(s.clock.Now()) {
			s.clock.Set(item.due)
		}
		item.fire()
		fired++
	}
	s.clock.Set(end)
	return fired
}

// FireDue fires the callbacks due at the current time.
func (s *ManualScheduler) FireDue() int {
	return s.Advance(0)
}

// Pending returns the number of callbacks not yet fired.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// NextDue returns the earliest due time.
func (s *ManualScheduler) NextDue() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return time.Time{}, false
	}
	s.sortLocked()
	return s.pending[0].due, true
}

func (s *ManualScheduler) popDue(end time.Time) (scheduled, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return scheduled{}, false
	}
	s.sortLocked()
	first := s.pending[0]
	if first.due.After(end) {
		return scheduled{}, false
	}
	s.pending = s.pending[1:]
	return first, true
}

func (s *ManualScheduler) sortLocked() {
	sort.SliceStable(s.pending, func(i, j int) bool {
		a, b := s.pending[i], s.pending[j]
		if !a.due.Equal(b.due) {
			return a.due.Before(b.due)
		}
		return a.seq < b.seq
	})
}
