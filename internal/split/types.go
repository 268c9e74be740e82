package split

import (
	"sort"
	"time"
)

// Structure is a node in the course-version DAG. Only the three identity
// fields are read; the rest of the document is never loaded.
type Structure struct {
	ID         string `json:"id"`
	OriginalID string `json:"original_id"`
	PreviousID string `json:"previous_id,omitempty"`
}

// IsOriginal reports whether s is the root of its lineage.
func (s Structure) IsOriginal() bool {
	return s.PreviousID == "" && s.OriginalID == s.ID
}

// IsLineageRoot reports whether s is its own OriginalID. Such structures are
// never deleted, even when the stored PreviousID is set.
func (s Structure) IsLineageRoot() bool {
	return s.OriginalID == s.ID
}

// Branch is one (active version, branch name) head pointer.
type Branch struct {
	ActiveVersionID string    `json:"active_version_id"`
	Name            string    `json:"branch"`
	StructureID     string    `json:"structure_id"`
	Key             string    `json:"key"`
	EditedOn        time.Time `json:"edited_on"`
}

// SortBranches orders branches by (ActiveVersionID, Name) for reproducible
// planning and reporting.
func SortBranches(branches []Branch) {
	sort.Slice(branches, func(i, j int) bool {
		if branches[i].ActiveVersionID != branches[j].ActiveVersionID {
			return branches[i].ActiveVersionID < branches[j].ActiveVersionID
		}
		return branches[i].Name < branches[j].Name
	})
}

// Graph is the in-memory view the planner works on. It is owned by one
// component at a time and not mutated once planning starts.
type Graph struct {
	Branches   []Branch
	Structures map[string]Structure

	// Missing lists ancestor ids referenced by some lineage that could not be
	// fetched from the store. Sorted, no duplicates.
	Missing []string
}

// NewGraph returns an empty graph ready to be filled.
func NewGraph() *Graph {
	return &Graph{Structures: make(map[string]Structure)}
}

// HasMissing reports whether the repair loop left gaps in any lineage.
func (g *Graph) HasMissing() bool {
	return len(g.Missing) > 0
}

// Relink rewrites the PreviousID of StructureID.
type Relink struct {
	StructureID string
	PreviousID  string
}

// ChangePlan is the output of the planner and the input of the applier.
type ChangePlan struct {
	Delete        []string
	UpdateParents []Relink
}

// Empty reports whether applying the plan would change nothing.
func (p *ChangePlan) Empty() bool {
	return len(p.Delete) == 0 && len(p.UpdateParents) == 0
}

// Sort puts both lists in ascending id order.
func (p *ChangePlan) Sort() {
	sort.Strings(p.Delete)
	sort.Slice(p.UpdateParents, func(i, j int) bool {
		return p.UpdateParents[i].StructureID < p.UpdateParents[j].StructureID
	})
}

// IndexOfDelete returns the position of id in the sorted Delete list, or -1.
func (p *ChangePlan) IndexOfDelete(id string) int {
	i := sort.SearchStrings(p.Delete, id)
	if i < len(p.Delete) && p.Delete[i] == id {
		return i
	}
	return -1
}

// Validate checks ordering and the cross-list invariants.
func (p *ChangePlan) Validate() error {
	deleted := make(map[string]struct{}, len(p.Delete))
	for i, id := range p.Delete {
		if id == "" {
			return NewBadConfiguration("plan delete list contains an empty id")
		}
		if i > 0 && p.Delete[i-1] >= id {
			return NewBadConfiguration("plan delete list is not strictly ascending").
				WithID(id)
		}
		deleted[id] = struct{}{}
	}

	for i, r := range p.UpdateParents {
		if r.StructureID == "" || r.PreviousID == "" {
			return NewBadConfiguration("plan update_parents entry has an empty id")
		}
		if i > 0 && p.UpdateParents[i-1].StructureID >= r.StructureID {
			return NewBadConfiguration("plan update_parents is not strictly ascending").
				WithID(r.StructureID)
		}
		if _, ok := deleted[r.StructureID]; ok {
			return NewBadConfiguration("structure is both re-linked and deleted").
				WithID(r.StructureID)
		}
		if _, ok := deleted[r.PreviousID]; ok {
			return NewBadConfiguration("re-link targets a deleted structure").
				WithID(r.StructureID).
				WithDetail("previous_id", r.PreviousID)
		}
	}
	return nil
}
