package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/structprune/internal/split"
)

// createTestSQLite creates a new SQLite mirror in a temp dir.
func createTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

// linearChain returns structures 1..n where 1 is the Original and each k
// points at k-1.
func linearChain(n int) []split.Structure {
	out := make([]split.Structure, 0, n)
	for k := 1; k <= n; k++ {
		s := split.Structure{ID: id(k), OriginalID: id(1)}
		if k > 1 {
			s.PreviousID = id(k - 1)
		}
		out = append(out, s)
	}
	return out
}

func id(k int) string {
	return string(rune('a'+k/26)) + string(rune('a'+k%26))
}

// recordingSleep returns a SleepFunc that records requested delays.
func recordingSleep(into *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*into = append(*into, d)
		return nil
	}
}
