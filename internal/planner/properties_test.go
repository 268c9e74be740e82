package planner

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/structprune/internal/split"
	"github.com/roach88/structprune/internal/testutil"
)

// checkPlanProperties asserts the invariants every plan must satisfy for
// graph g.
func checkPlanProperties(t *testing.T, g *split.Graph, p *split.ChangePlan) {
	t.Helper()

	deleted := make(map[string]bool, len(p.Delete))
	for _, id := range p.Delete {
		deleted[id] = true
		_, observed := g.Structures[id]
		assert.True(t, observed, "deleted id %s was never observed", id)
	}

	for _, b := range g.Branches {
		assert.False(t, deleted[b.StructureID], "active %s deleted", b.StructureID)
	}

	for id, s := range g.Structures {
		if s.OriginalID == id {
			assert.False(t, deleted[id], "original %s deleted", id)
		}
	}

	for _, r := range p.UpdateParents {
		s, ok := g.Structures[r.StructureID]
		require.True(t, ok)
		assert.Equal(t, s.OriginalID, r.PreviousID, "re-link target of %s", r.StructureID)
		assert.False(t, deleted[r.PreviousID], "re-link target %s deleted", r.PreviousID)
		assert.False(t, deleted[r.StructureID], "re-linked %s also deleted", r.StructureID)
	}

	assert.True(t, sort.StringsAreSorted(p.Delete), "delete sorted")
	assert.True(t, sort.SliceIsSorted(p.UpdateParents, func(i, j int) bool {
		return p.UpdateParents[i].StructureID < p.UpdateParents[j].StructureID
	}), "update_parents sorted")

	// After applying, every surviving lineage member's parent survives.
	after := make(map[string]split.Structure, len(g.Structures))
	for id, s := range g.Structures {
		if !deleted[id] {
			after[id] = s
		}
	}
	for _, r := range p.UpdateParents {
		s := after[r.StructureID]
		s.PreviousID = r.PreviousID
		after[r.StructureID] = s
	}
	for _, b := range g.Branches {
		for id := b.StructureID; id != ""; {
			s, ok := after[id]
			require.True(t, ok, "lineage of %s/%s broken at %s", b.ActiveVersionID, b.Name, id)
			if s.IsLineageRoot() {
				break
			}
			id = s.PreviousID
		}
	}
}

func TestPlanProperties_RandomGraphs(t *testing.T) {
	for seed := uint64(1); seed <= 40; seed++ {
		sc := testutil.Random(seed, 4, 25)
		for _, retain := range []int{0, 1, 2, 5} {
			t.Run(fmt.Sprintf("seed=%d/retain=%d", seed, retain), func(t *testing.T) {
				g := sc.Graph()
				res, err := Plan(g, Options{Retain: retain})
				require.NoError(t, err)
				require.NoError(t, res.Plan.Validate())
				checkPlanProperties(t, g, res.Plan)
			})
		}
	}
}

func TestPlanProperties_RetentionBound(t *testing.T) {
	// One branch per lineage so every kept intermediate is kept by that
	// lineage alone.
	for seed := uint64(1); seed <= 30; seed++ {
		sc := testutil.Random(seed, 1, 30)
		sc.Branches = sc.Branches[:1]

		for _, retain := range []int{0, 1, 3} {
			g := sc.Graph()
			res, err := Plan(g, Options{Retain: retain})
			require.NoError(t, err)

			require.Len(t, res.Lineages, 1)
			intermediates := 0
			for _, e := range res.Lineages[0].Entries {
				if e.Kept && !e.Active && !e.Original {
					intermediates++
				}
			}
			assert.LessOrEqual(t, intermediates, retain, "seed=%d retain=%d", seed, retain)
		}
	}
}

func TestPlanProperties_MoreRetentionNeverDeletesMore(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		g := testutil.Random(seed, 3, 20).Graph()

		prev, err := Plan(g, Options{Retain: 0})
		require.NoError(t, err)
		for retain := 1; retain <= 4; retain++ {
			next, err := Plan(g, Options{Retain: retain})
			require.NoError(t, err)
			assert.Subset(t, prev.Plan.Delete, next.Plan.Delete, "seed=%d retain=%d", seed, retain)
			prev = next
		}
	}
}
