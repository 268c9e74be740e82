package planner

import (
	"github.com/roach88/structprune/internal/split"
)

// Options controls retention and gap handling.
type Options struct {
	// Retain is the number of intermediate structures kept per lineage.
	Retain int

	// IgnoreMissing plans around lineages with missing ancestors instead of
	// failing with MISSING_ANCESTOR.
	IgnoreMissing bool
}

// Entry is one lineage member as the details report shows it.
type Entry struct {
	ID       string
	Active   bool
	Original bool
	Kept     bool
	Missing  bool
	RelinkTo string
}

// Lineage is the walk from one branch head toward its Original.
type Lineage struct {
	Branch  split.Branch
	Entries []Entry
}

// Stats summarizes a plan.
type Stats struct {
	Structures int
	Branches   int
	Kept       int
	Deleted    int
	Orphans    int
	Relinked   int
	Missing    int
	Skipped    int
}

// Result is the plan plus what is needed to explain it.
type Result struct {
	Plan     *split.ChangePlan
	Lineages []Lineage

	// Skipped lists re-links that were not emitted because the target
	// Original was never observed.
	Skipped []split.Relink

	Stats Stats
}

type walk struct {
	ids     []string // present lineage members, head first
	missing string   // first absent id, if the walk hit a gap
}

// Plan computes the change plan for g. The graph is not modified.
func Plan(g *split.Graph, opts Options) (*Result, error) {
	if opts.Retain < 0 {
		return nil, split.NewBadConfiguration("retain must be >= 0, got %d", opts.Retain)
	}

	active := make(map[string]struct{}, len(g.Branches))
	for _, b := range g.Branches {
		active[b.StructureID] = struct{}{}
	}

	walks := make([]walk, len(g.Branches))
	limit := len(g.Structures) + 1
	for i, b := range g.Branches {
		w, err := walkLineage(g, b.StructureID, limit)
		if err != nil {
			return nil, err
		}
		if w.missing != "" && !opts.IgnoreMissing {
			return nil, split.NewMissingAncestor(b, w.missing)
		}
		walks[i] = w
	}

	keep := make(map[string]struct{}, len(g.Branches)*(opts.Retain+2))
	for _, w := range walks {
		retainLineage(g, w, opts.Retain, keep)
	}
	for id, s := range g.Structures {
		if s.IsLineageRoot() {
			keep[id] = struct{}{}
		}
		if _, ok := active[id]; ok {
			keep[id] = struct{}{}
		}
	}

	relinks := make(map[string]string)
	var skipped []split.Relink
	for _, w := range walks {
		r, ok := relinkFor(g, w, keep)
		if !ok {
			continue
		}
		if _, seen := g.Structures[r.PreviousID]; !seen {
			skipped = append(skipped, r)
			continue
		}
		relinks[r.StructureID] = r.PreviousID
	}

	plan := &split.ChangePlan{Delete: []string{}, UpdateParents: []split.Relink{}}
	for id := range g.Structures {
		if _, ok := keep[id]; !ok {
			plan.Delete = append(plan.Delete, id)
		}
	}
	for id, prev := range relinks {
		plan.UpdateParents = append(plan.UpdateParents, split.Relink{StructureID: id, PreviousID: prev})
	}
	plan.Sort()
	skipped = dedupe(skipped)

	res := &Result{
		Plan:     plan,
		Lineages: describe(g, walks, active, keep, relinks),
		Skipped:  skipped,
	}
	res.Stats = summarize(g, walks, plan, len(skipped))
	return res, nil
}

// walkLineage follows previous_id from head until a lineage root, an empty
// previous_id, or an id absent from the graph. It fails with LINEAGE_CYCLE
// after limit steps.
func walkLineage(g *split.Graph, head string, limit int) (walk, error) {
	var w walk
	for id := head; id != ""; {
		if len(w.ids) >= limit {
			return walk{}, split.NewLineageCycle(head, limit)
		}
		s, ok := g.Structures[id]
		if !ok {
			w.missing = id
			return w, nil
		}
		w.ids = append(w.ids, id)
		if s.IsLineageRoot() {
			break
		}
		id = s.PreviousID
	}
	return w, nil
}

// retainLineage marks the head, up to retain intermediates, and the root of
// one lineage as kept.
func retainLineage(g *split.Graph, w walk, retain int, keep map[string]struct{}) {
	if len(w.ids) == 0 {
		return
	}
	keep[w.ids[0]] = struct{}{}

	kept := 0
	for _, id := range w.ids[1:] {
		s := g.Structures[id]
		if s.IsLineageRoot() || s.PreviousID == "" {
			keep[id] = struct{}{}
			break
		}
		if kept < retain {
			keep[id] = struct{}{}
			kept++
		}
	}
}

// relinkFor finds the oldest consecutive kept non-Original structure of a
// lineage and returns its re-link when its parent will not survive.
func relinkFor(g *split.Graph, w walk, keep map[string]struct{}) (split.Relink, bool) {
	var tail split.Structure
	found := false
	for _, id := range w.ids {
		if _, ok := keep[id]; !ok {
			break
		}
		s := g.Structures[id]
		if s.IsLineageRoot() {
			break
		}
		tail, found = s, true
	}
	if !found || tail.PreviousID == "" || tail.PreviousID == tail.OriginalID {
		return split.Relink{}, false
	}
	if _, ok := keep[tail.PreviousID]; ok {
		return split.Relink{}, false
	}
	return split.Relink{StructureID: tail.ID, PreviousID: tail.OriginalID}, true
}

func describe(g *split.Graph, walks []walk, active, keep map[string]struct{}, relinks map[string]string) []Lineage {
	out := make([]Lineage, len(g.Branches))
	for i, b := range g.Branches {
		l := Lineage{Branch: b}
		for _, id := range walks[i].ids {
			_, isActive := active[id]
			_, isKept := keep[id]
			l.Entries = append(l.Entries, Entry{
				ID:       id,
				Active:   isActive,
				Original: g.Structures[id].IsLineageRoot(),
				Kept:     isKept,
				RelinkTo: relinks[id],
			})
		}
		if walks[i].missing != "" {
			l.Entries = append(l.Entries, Entry{ID: walks[i].missing, Missing: true})
		}
		out[i] = l
	}
	return out
}

func summarize(g *split.Graph, walks []walk, plan *split.ChangePlan, skipped int) Stats {
	reachable := make(map[string]struct{})
	missing := make(map[string]struct{})
	for _, w := range walks {
		for _, id := range w.ids {
			reachable[id] = struct{}{}
		}
		if w.missing != "" {
			missing[w.missing] = struct{}{}
		}
	}
	for _, id := range g.Missing {
		missing[id] = struct{}{}
	}

	return Stats{
		Structures: len(g.Structures),
		Branches:   len(g.Branches),
		Kept:       len(g.Structures) - len(plan.Delete),
		Deleted:    len(plan.Delete),
		Orphans:    len(g.Structures) - len(reachable),
		Relinked:   len(plan.UpdateParents),
		Missing:    len(missing),
		Skipped:    skipped,
	}
}

func dedupe(relinks []split.Relink) []split.Relink {
	if len(relinks) == 0 {
		return nil
	}
	p := &split.ChangePlan{UpdateParents: relinks}
	p.Sort()
	out := relinks[:1]
	for _, r := range relinks[1:] {
		if r != out[len(out)-1] {
			out = append(out, r)
		}
	}
	return out
}
