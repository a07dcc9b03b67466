package engine

import (
	"sync"
	"time"
)

// TimerScheduler schedules trigger callbacks on real timers. It tracks the
// timers it started so Stop can cancel those that have not fired.
type TimerScheduler struct {
	mu      sync.Mutex
	next    uint64
	timers  map[uint64]*time.Timer
	stopped bool
}

// NewTimerScheduler creates an empty scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[uint64]*time.Timer)}
}

// Schedule runs fire on its own goroutine after delay. Calls after Stop are
// ignored.
func (s *TimerScheduler) Schedule(delay time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.next++
	id := s.next
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		s.mu.Unlock()
		if live {
			fire()
		}
	})
	timersScheduled.Inc()
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending timer and rejects further scheduling.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
