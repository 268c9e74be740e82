package planner

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/structprune/internal/graph"
	"github.com/roach88/structprune/internal/split"
	"github.com/roach88/structprune/internal/store"
	"github.com/roach88/structprune/internal/testutil"
)

// An authoring process writes new structures and moves branches the first
// time the structure stream pauses, so the stream misses them.
func TestPlan_RaceRepair(t *testing.T) {
	m := testutil.Linear(4).Store()
	sleeper := testutil.NewRecordingSleeper()
	sleeper.Before = func(call int) {
		if call != 1 {
			return
		}
		structures, branches := testutil.RaceAppend()
		m.AddStructure(structures...)
		for _, b := range branches {
			m.SetBranch(b)
		}
	}

	b := &graph.Builder{
		Reader: m,
		Batch:  store.Batch{Size: 2, Sleep: sleeper.Sleep},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	g, stats, err := b.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.Repaired)

	for _, retain := range []int{0, 1} {
		res, err := Plan(g, Options{Retain: retain})
		require.NoError(t, err)

		assert.NotContains(t, res.Plan.Delete, "5")
		assert.NotContains(t, res.Plan.Delete, "7")
		checkPlanProperties(t, g, res.Plan)
	}
}

func TestPlan_RaceRepair_Retain0(t *testing.T) {
	sc := testutil.Linear(4)
	structures, branches := testutil.RaceAppend()
	sc.Structures = append(sc.Structures, structures...)
	sc.Branches = branches

	res, err := Plan(sc.Graph(), Options{Retain: 0})
	require.NoError(t, err)

	// A100/draft: 5 4 3 2 1 keeps 5 and 1; A102/library: 7 6 5 ... keeps 7, 5, 1.
	assert.Equal(t, []string{"2", "3", "4", "6"}, res.Plan.Delete)
	assert.Equal(t, []split.Relink{
		{StructureID: "5", PreviousID: "1"},
		{StructureID: "7", PreviousID: "1"},
	}, res.Plan.UpdateParents)
}
