package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/structprune/internal/split"
)

func TestOpenSQLite_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close(context.Background())

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(path)
		require.NoError(t, err, "iteration %d", i)
		s.Close(context.Background())
	}

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close(context.Background())

	for _, table := range []string{"structures", "active_versions"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %q not found", table)
	}

	var journal string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&journal))
	assert.Equal(t, "wal", journal)
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/test.db")
	require.Error(t, err)
	assert.True(t, split.IsKind(err, split.KindStoreUnavailable))
}

func TestSQLite_Close_NilDB(t *testing.T) {
	s := &SQLite{db: nil}
	assert.NoError(t, s.Close(context.Background()))
}

func TestSQLite_IterateStructures_KeysetPages(t *testing.T) {
	ctx := context.Background()
	s := createTestSQLite(t)
	require.NoError(t, s.PutStructures(ctx, linearChain(7)))

	var sleeps []time.Duration
	var seen []string
	err := s.IterateStructures(ctx, Batch{Size: 3, Delay: time.Millisecond, Sleep: recordingSleep(&sleeps)},
		func(st split.Structure) error {
			seen = append(seen, st.ID)
			return nil
		})

	require.NoError(t, err)
	want := make([]string, 0, 7)
	for _, st := range linearChain(7) {
		want = append(want, st.ID)
	}
	assert.Equal(t, want, seen)
	assert.Len(t, sleeps, 2, "pages of 3,3,1")
}

func TestSQLite_IterateStructures_ExactMultiple(t *testing.T) {
	ctx := context.Background()
	s := createTestSQLite(t)
	require.NoError(t, s.PutStructures(ctx, linearChain(4)))

	count := 0
	err := s.IterateStructures(ctx, Batch{Size: 2}, func(split.Structure) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestSQLite_GetStructure(t *testing.T) {
	ctx := context.Background()
	s := createTestSQLite(t)
	require.NoError(t, s.PutStructures(ctx, linearChain(2)))

	got, ok, err := s.GetStructure(ctx, id(2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, split.Structure{ID: id(2), OriginalID: id(1), PreviousID: id(1)}, got)

	_, ok, err = s.GetStructure(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_Branches_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestSQLite(t)
	edited := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutBranches(ctx, []split.Branch{
		{ActiveVersionID: "A2", Name: "draft", StructureID: "x", Key: "o+c+r", EditedOn: edited},
		{ActiveVersionID: "A1", Name: "published", StructureID: "y"},
	}))
	// Upsert moves the branch.
	require.NoError(t, s.PutBranches(ctx, []split.Branch{
		{ActiveVersionID: "A2", Name: "draft", StructureID: "z", Key: "o+c+r", EditedOn: edited},
	}))

	var got []split.Branch
	require.NoError(t, s.IterateActiveBranches(ctx, func(b split.Branch) error {
		got = append(got, b)
		return nil
	}))

	require.Len(t, got, 2)
	assert.Equal(t, "A1", got[0].ActiveVersionID)
	assert.True(t, got[0].EditedOn.IsZero())
	assert.Equal(t, "z", got[1].StructureID)
	assert.True(t, edited.Equal(got[1].EditedOn))
}

func TestSQLite_UpdatePreviousIDs(t *testing.T) {
	ctx := context.Background()
	s := createTestSQLite(t)
	require.NoError(t, s.PutStructures(ctx, linearChain(5)))

	relinks := []split.Relink{
		{StructureID: id(3), PreviousID: id(1)},
		{StructureID: id(5), PreviousID: id(1)},
		{StructureID: "gone", PreviousID: id(1)},
	}
	results, err := s.UpdatePreviousIDs(ctx, relinks, Batch{Size: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, BatchResult{Index: 0, Requested: 2, Matched: 2, Modified: 2}, results[0])
	assert.Equal(t, BatchResult{Index: 1, Requested: 1}, results[1])

	got, _, err := s.GetStructure(ctx, id(5))
	require.NoError(t, err)
	assert.Equal(t, id(1), got.PreviousID)

	results, err = s.UpdatePreviousIDs(ctx, relinks[:2], Batch{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, results[0].Matched)
	assert.Equal(t, 0, results[0].Modified, "second run is a no-op modification")
}

func TestSQLite_DeleteStructures(t *testing.T) {
	ctx := context.Background()
	s := createTestSQLite(t)
	require.NoError(t, s.PutStructures(ctx, linearChain(5)))

	results, err := s.DeleteStructures(ctx, []string{id(2), id(3), id(4)}, Batch{Size: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Deleted)
	assert.Equal(t, 1, results[1].Deleted)

	results, err = s.DeleteStructures(ctx, []string{id(2), id(3), id(4)}, Batch{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Index: 0, Requested: 3, Deleted: 0}, results[0])

	var remaining int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM structures").Scan(&remaining))
	assert.Equal(t, 2, remaining)
}

func TestSQLite_DeleteStructures_LargeBatch(t *testing.T) {
	ctx := context.Background()
	s := createTestSQLite(t)

	const n = 3*maxSQLVariables + 7
	structures := make([]split.Structure, n)
	ids := make([]string, n)
	for i := range structures {
		ids[i] = fmt.Sprintf("s%05d", i)
		structures[i] = split.Structure{ID: ids[i], OriginalID: ids[0]}
		if i > 0 {
			structures[i].PreviousID = ids[i-1]
		}
	}
	require.NoError(t, s.PutStructures(ctx, structures))

	results, err := s.DeleteStructures(ctx, ids[1:], Batch{Size: 40000})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, BatchResult{Index: 0, Requested: n - 1, Deleted: n - 1}, results[0])

	var remaining int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM structures").Scan(&remaining))
	assert.Equal(t, 1, remaining)
}
