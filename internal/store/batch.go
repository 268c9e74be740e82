package store

import (
	"context"
	"time"
)

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Batch holds the two back-pressure knobs shared by the read and write
// paths.
type Batch struct {
	// Size is the maximum number of documents per batch. Must be >= 1.
	Size int

	// Delay is slept between consecutive batches.
	Delay time.Duration

	// Sleep overrides the sleep implementation (tests). Nil uses a timer.
	Sleep SleepFunc
}

// BatchResult reports what the store did with one bulk batch.
type BatchResult struct {
	Index     int // zero-based batch number within the call
	Requested int
	Matched   int
	Modified  int
	Deleted   int
}

// Short reports whether the store touched fewer documents than requested.
// Updates compare matched documents, deletes compare deleted documents.
func (r BatchResult) Short(isDelete bool) bool {
	if isDelete {
		return r.Deleted < r.Requested
	}
	return r.Matched < r.Requested
}

// TimerSleep is the default SleepFunc.
func TimerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pause sleeps for the configured delay.
func (b Batch) Pause(ctx context.Context) error {
	sleep := b.Sleep
	if sleep == nil {
		sleep = TimerSleep
	}
	return sleep(ctx, b.Delay)
}

func (b Batch) size() int {
	if b.Size < 1 {
		return 1
	}
	return b.Size
}

// ForEachBatch calls fn with consecutive [lo, hi) windows of at most
// b.Size items out of n, pausing between windows. It stops at the first
// error.
func ForEachBatch(ctx context.Context, n int, b Batch, fn func(index, lo, hi int) error) error {
	size := b.size()
	for index, lo := 0, 0; lo < n; index, lo = index+1, lo+size {
		if index > 0 {
			if err := b.Pause(ctx); err != nil {
				return err
			}
		}
		hi := min(lo+size, n)
		if err := fn(index, lo, hi); err != nil {
			return err
		}
	}
	return nil
}
