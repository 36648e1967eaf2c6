package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first timestamp a StepTime returns.
var DefaultEpoch = time.Unix(1_700_000_000, 0).UTC()

// StepTime is a deterministic time source. Each Now call returns the
// previous value advanced by Step, starting at Start.
//
// Thread-safety: all methods are safe for concurrent use.
type StepTime struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewStepTime returns a StepTime starting at start and advancing by step.
func NewStepTime(start time.Time, step time.Duration) *StepTime {
	return &StepTime{next: start, step: step}
}

// NewLedgerTime is a StepTime at DefaultEpoch with five second ledgers.
func NewLedgerTime() *StepTime {
	return NewStepTime(DefaultEpoch, 5*time.Second)
}

// Now returns the current value and advances.
func (s *StepTime) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.next
	s.next = s.next.Add(s.step)
	return t
}

// Set moves the next returned value to t, which may be in the past.
func (s *StepTime) Set(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = t
}

// Peek returns the value the next Now call will return.
func (s *StepTime) Peek() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
