// Package testutil holds fixtures shared by the pruner's package tests.
package testutil

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/roach88/structprune/internal/split"
	"github.com/roach88/structprune/internal/store"
)

// Scenario is a named structure graph.
type Scenario struct {
	Name       string
	Structures []split.Structure
	Branches   []split.Branch
}

// Original returns a root structure.
func Original(id string) split.Structure {
	return split.Structure{ID: id, OriginalID: id}
}

// Child returns a structure whose parent is previous in the lineage rooted
// at original.
func Child(id, previous, original string) split.Structure {
	return split.Structure{ID: id, OriginalID: original, PreviousID: previous}
}

// Head returns a branch pointing at structureID.
func Head(activeVersionID, name, structureID string) split.Branch {
	return split.Branch{
		ActiveVersionID: activeVersionID,
		Name:            name,
		StructureID:     structureID,
		Key:             "org+" + activeVersionID + "+run",
	}
}

// Store seeds a Memory store with the scenario.
func (s Scenario) Store() *store.Memory {
	m := store.NewMemory()
	m.AddStructure(s.Structures...)
	for _, b := range s.Branches {
		m.SetBranch(b)
	}
	return m
}

// Graph returns the scenario as a complete in-memory graph.
func (s Scenario) Graph() *split.Graph {
	g := split.NewGraph()
	for _, st := range s.Structures {
		g.Structures[st.ID] = st
	}
	g.Branches = append(g.Branches, s.Branches...)
	split.SortBranches(g.Branches)
	return g
}

// Linear is structures 1..n with 1 the Original and A100/draft at n.
func Linear(n int) Scenario {
	s := Scenario{Name: fmt.Sprintf("linear_%d", n)}
	s.Structures = append(s.Structures, Original("1"))
	for k := 2; k <= n; k++ {
		s.Structures = append(s.Structures, Child(fmt.Sprint(k), fmt.Sprint(k-1), "1"))
	}
	s.Branches = []split.Branch{Head("A100", "draft", fmt.Sprint(n))}
	return s
}

// Overlapping is two active versions sharing history, with a third branch
// on a long side chain.
func Overlapping() Scenario {
	return Scenario{
		Name: "overlapping",
		Structures: []split.Structure{
			Original("1"),
			Child("2", "1", "1"),
			Child("3", "2", "1"),
			Child("4", "3", "1"),
			Child("5", "4", "1"),
			Child("6", "3", "1"),
			Child("7", "2", "1"),
			Child("8", "7", "1"),
			Child("9", "8", "1"),
			Child("10", "9", "1"),
		},
		Branches: []split.Branch{
			Head("A100", "draft", "3"),
			Head("A100", "published", "5"),
			Head("A200", "draft", "6"),
			Head("A201", "draft", "10"),
		},
	}
}

// SingleOriginal is one active Original with no history.
func SingleOriginal() Scenario {
	return Scenario{
		Name:       "single_original",
		Structures: []split.Structure{Original("1")},
		Branches:   []split.Branch{Head("A100", "draft", "1")},
	}
}

// OrphanChain is a linear lineage whose branch points at 3 while 4 and 5
// are no longer referenced.
func OrphanChain() Scenario {
	s := Linear(5)
	s.Name = "orphan_chain"
	s.Branches = []split.Branch{Head("A100", "draft", "3")}
	return s
}

// RaceAppend is the set of structures an authoring process writes while
// the pruner streams Linear(4): a new head 5 for A100/draft and a new
// library branch at 7.
func RaceAppend() ([]split.Structure, []split.Branch) {
	return []split.Structure{
			Child("5", "4", "1"),
			Child("6", "5", "1"),
			Child("7", "6", "1"),
		}, []split.Branch{
			Head("A100", "draft", "5"),
			Head("A102", "library", "7"),
		}
}

// Random builds a pseudo-random forest of lineages from seed. Ids are
// zero-padded so ascending id order is creation order. Roughly one in
// three structures is a branch head; the rest are intermediates or orphans.
func Random(seed uint64, lineages, size int) Scenario {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	s := Scenario{Name: fmt.Sprintf("random_%d", seed)}

	next := 0
	newID := func() string {
		next++
		return fmt.Sprintf("s%06d", next)
	}

	for l := 0; l < lineages; l++ {
		root := Original(newID())
		members := []split.Structure{root}
		for k := 1; k < size; k++ {
			// Bias parents toward recent structures so lineages are deep.
			lo := max(0, len(members)-4)
			parent := members[lo+r.IntN(len(members)-lo)]
			members = append(members, Child(newID(), parent.ID, root.ID))
		}
		s.Structures = append(s.Structures, members...)

		av := fmt.Sprintf("A%03d", l)
		names := []string{"draft", "published", "library"}
		for _, name := range names {
			if r.IntN(3) == 0 && name != "draft" {
				continue
			}
			head := members[r.IntN(len(members))]
			s.Branches = append(s.Branches, Head(av, name, head.ID))
		}
	}
	return s
}

// WriteSQLite creates a SQLite store at path holding the scenario and
// closes it.
func (s Scenario) WriteSQLite(ctx context.Context, path string) error {
	db, err := store.OpenSQLite(path)
	if err != nil {
		return err
	}
	if err := db.PutStructures(ctx, s.Structures); err != nil {
		db.Close(ctx)
		return err
	}
	if err := db.PutBranches(ctx, s.Branches); err != nil {
		db.Close(ctx)
		return err
	}
	return db.Close(ctx)
}
