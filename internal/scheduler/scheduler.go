// Package scheduler provides named, cancellable one-shot timers so that
// disconnect can cancel every pending callback in one enumerable operation.
package scheduler

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler owns a set of named one-shot timers. Scheduling a name that is
// already pending replaces the previous timer.
type Scheduler struct {
	logger *slog.Logger

	mu     sync.Mutex
	timers map[string]*entry
}

type entry struct {
	timer *time.Timer
}

// New creates an empty scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger: logger,
		timers: make(map[string]*entry),
	}
}

// Schedule arms a one-shot timer under name. A pending timer with the same
// name is cancelled first. fn runs on the timer goroutine after it is
// unregistered, so fn may schedule again under the same name.
func (s *Scheduler) Schedule(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[name]; ok {
		prev.timer.Stop()
	}

	e := &entry{}
	e.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		current, ok := s.timers[name]
		if ok && current == e {
			delete(s.timers, name)
		}
		s.mu.Unlock()

		// A replaced or cancelled timer that already fired must not run.
		if !ok || current != e {
			return
		}
		fn()
	})
	s.timers[name] = e

	s.logger.Debug("timer scheduled", "name", name, "delay", d)
}

// Cancel stops the named timer if pending. Cancelling an unknown name is a
// no-op.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.timers[name]; ok {
		e.timer.Stop()
		delete(s.timers, name)
		s.logger.Debug("timer cancelled", "name", name)
	}
}

// CancelAll stops every pending timer.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, name)
	}
}

// Pending returns true if the named timer is armed.
func (s *Scheduler) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.timers[name]
	return ok
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
