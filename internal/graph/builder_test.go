package graph

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/structprune/internal/split"
	"github.com/roach88/structprune/internal/store"
	"github.com/roach88/structprune/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// racingReader simulates an authoring process that writes between the
// structure stream and the branch read.
type racingReader struct {
	*store.Memory
	beforeBranches func()
	gets           []string
}

func (r *racingReader) IterateActiveBranches(ctx context.Context, fn func(split.Branch) error) error {
	if r.beforeBranches != nil {
		r.beforeBranches()
		r.beforeBranches = nil
	}
	return r.Memory.IterateActiveBranches(ctx, fn)
}

func (r *racingReader) GetStructure(ctx context.Context, id string) (split.Structure, bool, error) {
	r.gets = append(r.gets, id)
	return r.Memory.GetStructure(ctx, id)
}

func TestBuild_Complete(t *testing.T) {
	sc := testutil.Overlapping()
	b := &Builder{Reader: sc.Store(), Batch: store.Batch{Size: 3}, Logger: quietLogger()}

	g, stats, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sc.Graph(), g)
	assert.Equal(t, Stats{Streamed: 10, Branches: 4}, stats)
	assert.False(t, g.HasMissing())
}

func TestBuild_RepairsRace(t *testing.T) {
	m := testutil.Linear(4).Store()
	reader := &racingReader{Memory: m}
	reader.beforeBranches = func() {
		structures, branches := testutil.RaceAppend()
		m.AddStructure(structures...)
		for _, br := range branches {
			m.SetBranch(br)
		}
	}

	b := &Builder{Reader: reader, Batch: store.Batch{Size: 2}, Logger: quietLogger()}
	g, stats, err := b.Build(context.Background())
	require.NoError(t, err)

	for _, id := range []string{"5", "6", "7"} {
		assert.Contains(t, g.Structures, id)
	}
	assert.ElementsMatch(t, []string{"5", "6", "7"}, reader.gets, "only the structures missing from the stream are fetched")
	assert.Equal(t, 4, stats.Streamed)
	assert.Equal(t, 3, stats.Repaired)
	require.Len(t, g.Branches, 2)
	assert.Equal(t, "A100", g.Branches[0].ActiveVersionID)
	assert.Equal(t, "5", g.Branches[0].StructureID)
	assert.Equal(t, "A102", g.Branches[1].ActiveVersionID)
}

func TestBuild_RecordsMissingAncestor(t *testing.T) {
	sc := testutil.Scenario{
		Structures: []split.Structure{
			testutil.Original("1"),
			testutil.Child("3", "2", "1"),
			testutil.Child("4", "3", "1"),
		},
		Branches: []split.Branch{
			testutil.Head("A100", "draft", "4"),
			testutil.Head("A100", "published", "3"),
		},
	}
	b := &Builder{Reader: sc.Store(), Batch: store.Batch{Size: 10}, Logger: quietLogger()}

	g, stats, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"2"}, g.Missing)
	assert.Equal(t, 1, stats.Missing)
	assert.True(t, g.HasMissing())
}

func TestBuild_StopsAtLineageRootWithPrevious(t *testing.T) {
	root := testutil.Original("1")
	root.PreviousID = "gone"
	sc := testutil.Scenario{
		Structures: []split.Structure{
			root,
			testutil.Child("2", "1", "1"),
			testutil.Child("3", "2", "1"),
		},
		Branches: []split.Branch{testutil.Head("A100", "draft", "3")},
	}
	r := &racingReader{Memory: sc.Store()}
	b := &Builder{Reader: r, Batch: store.Batch{Size: 10}, Logger: quietLogger()}

	g, stats, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Empty(t, g.Missing)
	assert.Equal(t, 0, stats.Missing)
	assert.Empty(t, r.gets, "nothing beyond the root is fetched")
}

func TestBuild_MissingHead(t *testing.T) {
	sc := testutil.Scenario{
		Structures: []split.Structure{testutil.Original("1")},
		Branches:   []split.Branch{testutil.Head("A100", "draft", "9")},
	}
	b := &Builder{Reader: sc.Store(), Batch: store.Batch{Size: 10}, Logger: quietLogger()}

	g, _, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"9"}, g.Missing)
}

func TestBuild_DetectsCycle(t *testing.T) {
	sc := testutil.Scenario{
		Structures: []split.Structure{
			testutil.Original("1"),
			testutil.Child("2", "3", "1"),
			testutil.Child("3", "2", "1"),
		},
		Branches: []split.Branch{testutil.Head("A100", "draft", "3")},
	}
	b := &Builder{Reader: sc.Store(), Batch: store.Batch{Size: 10}, Logger: quietLogger()}

	_, _, err := b.Build(context.Background())
	require.Error(t, err)
	assert.True(t, split.IsKind(err, split.KindLineageCycle))
}

func TestBuild_StoreFailure(t *testing.T) {
	m := testutil.Linear(3).Store()
	m.Fail = func(op string) error {
		if op == "iterate_structures" {
			return split.NewStoreUnavailable(op, errors.New("no reachable servers"))
		}
		return nil
	}
	b := &Builder{Reader: m, Batch: store.Batch{Size: 10}, Logger: quietLogger()}

	_, _, err := b.Build(context.Background())
	require.Error(t, err)
	assert.True(t, split.IsKind(err, split.KindStoreUnavailable))
}

func TestBuild_PausesBetweenStreamBatches(t *testing.T) {
	sleeper := testutil.NewRecordingSleeper()
	b := &Builder{
		Reader: testutil.Linear(7).Store(),
		Batch:  store.Batch{Size: 3, Sleep: sleeper.Sleep},
		Logger: quietLogger(),
	}

	_, _, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sleeper.Calls())
}
