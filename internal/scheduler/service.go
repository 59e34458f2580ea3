// Package scheduler runs keyed recurring timers on top of robfig/cron. Each
// key owns at most one live entry: scheduling a key again replaces it.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Service handles keyed recurring timers
type Service struct {
	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewService creates a stopped scheduler. Panics in scheduled functions are
// recovered and logged.
func NewService() *Service {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	return &Service{
		cron:    cron.New(cron.WithChain(cron.Recover(logger))),
		entries: make(map[string]cron.EntryID),
	}
}

// Every schedules fn under key with a fixed interval, replacing any previous
// entry for the same key. cron rounds intervals below one second up to one
// second.
func (s *Service) Every(key string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("interval for %s must be positive", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(key)
	s.entries[key] = s.cron.Schedule(cron.Every(interval), cron.FuncJob(fn))
	return nil
}

// Cron schedules fn under key with a standard cron spec or descriptor such
// as "@every 5m", replacing any previous entry for the same key.
func (s *Service) Cron(key, spec string, fn func()) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(key)
	s.entries[key] = s.cron.Schedule(schedule, cron.FuncJob(fn))
	return nil
}

// Cancel removes the entry for key. It reports whether one existed.
func (s *Service) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeLocked(key)
}

// CancelAll removes every entry
func (s *Service) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.entries {
		s.removeLocked(key)
	}
}

// Has reports whether key has a live entry
func (s *Service) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[key]
	return ok
}

// Len returns the number of live entries
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// NextRun returns the next activation time of key. It is zero until the
// scheduler has been started.
func (s *Service) NextRun(key string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[key]
	s.mu.Unlock()

	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Start runs the scheduler in its own goroutine
func (s *Service) Start() {
	s.cron.Start()
	logrus.Info("Scheduler started")
}

// Stop halts the scheduler. The returned context is done once running
// functions have returned.
func (s *Service) Stop() context.Context {
	ctx := s.cron.Stop()
	logrus.Info("Scheduler stopped")
	return ctx
}

func (s *Service) removeLocked(key string) bool {
	id, ok := s.entries[key]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, key)
	return true
}
