package indexer

import (
	"sync"
	"time"
)

// Scheduler runs fire(key) once no Arm(key) has happened for delay. A new Arm
// cancels and re-arms the pending run for that key. Runs for different keys
// are independent.
type Scheduler struct {
	delay time.Duration
	fire  func(key string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	gens    map[string]uint64
	closed  bool
	running sync.WaitGroup
}

// NewScheduler creates a scheduler with the given debounce delay.
func NewScheduler(delay time.Duration, fire func(key string)) *Scheduler {
	return &Scheduler{
		delay:  delay,
		fire:   fire,
		timers: make(map[string]*time.Timer),
		gens:   make(map[string]uint64),
	}
}

// Arm schedules fire(key) after the delay, replacing any pending run.
func (s *Scheduler) Arm(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t := s.timers[key]; t != nil {
		t.Stop()
	}
	s.gens[key]++
	gen := s.gens[key]
	s.timers[key] = time.AfterFunc(s.delay, func() { s.run(key, gen) })
}

func (s *Scheduler) run(key string, gen uint64) {
	s.mu.Lock()
	// A stale timer can still fire if Stop raced with expiry.
	if s.closed || s.gens[key] != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	s.fire(key)
}

// Cancel drops the pending run for key. It reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, key)
	s.gens[key]++
	return true
}

// Flush runs a pending fire(key) immediately on the calling goroutine.
func (s *Scheduler) Flush(key string) bool {
	if !s.Cancel(key) {
		return false
	}
	s.fire(key)
	return true
}

// Pending reports whether a run for key is armed.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Close cancels every pending run and waits for running ones to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()
	s.running.Wait()
}
