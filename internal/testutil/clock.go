package testutil

import (
	"context"
	"sync"
	"time"
)

// RecordingSleeper stands in for the inter-batch sleep in tests.
//
// It never blocks; it records every requested delay so tests can assert how
// many pauses happened and how long each one was meant to be.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration

	// Before, when set, runs at the start of every Sleep call. Tests use it
	// to mutate a store between batches.
	Before func(call int)
}

// NewRecordingSleeper creates a sleeper with no recorded delays.
func NewRecordingSleeper() *RecordingSleeper {
	return &RecordingSleeper{}
}

// Sleep records d and returns ctx.Err(). It matches store.SleepFunc.
func (s *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	call := len(s.delays)
	before := s.Before
	s.mu.Unlock()

	if before != nil {
		before(call)
	}
	return ctx.Err()
}

// Calls returns the number of Sleep calls so far.
func (s *RecordingSleeper) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

// Delays returns a copy of the recorded delays.
func (s *RecordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// Reset forgets all recorded delays.
func (s *RecordingSleeper) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = nil
}
