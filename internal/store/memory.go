package store

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/structprune/internal/split"
)

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu         sync.Mutex
	structures map[string]split.Structure
	branches   map[[2]string]split.Branch

	// Fail, when set, is consulted before every operation; a non-nil return
	// is reported as the operation's error. Used to inject store failures.
	Fail func(op string) error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		structures: make(map[string]split.Structure),
		branches:   make(map[[2]string]split.Branch),
	}
}

// AddStructure inserts or replaces structures.
func (m *Memory) AddStructure(structures ...split.Structure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range structures {
		m.structures[s.ID] = s
	}
}

// SetBranch points a branch at a structure, creating it if needed.
func (m *Memory) SetBranch(b split.Branch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branches[[2]string{b.ActiveVersionID, b.Name}] = b
}

// RemoveBranch drops a branch.
func (m *Memory) RemoveBranch(activeVersionID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.branches, [2]string{activeVersionID, name})
}

// Has reports whether a structure exists.
func (m *Memory) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.structures[id]
	return ok
}

// Structure returns a stored structure.
func (m *Memory) Structure(id string) (split.Structure, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.structures[id]
	return s, ok
}

// StructureIDs returns all stored ids in ascending order.
func (m *Memory) StructureIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.structures))
	for id := range m.structures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of all stored structures keyed by id.
func (m *Memory) Snapshot() map[string]split.Structure {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]split.Structure, len(m.structures))
	for id, s := range m.structures {
		out[id] = s
	}
	return out
}

func (m *Memory) fail(op string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op)
}

// IterateActiveBranches implements Store. Branches are delivered in
// (active version, branch) order.
func (m *Memory) IterateActiveBranches(ctx context.Context, fn func(split.Branch) error) error {
	if err := m.fail("iterate_active_branches"); err != nil {
		return err
	}

	m.mu.Lock()
	branches := make([]split.Branch, 0, len(m.branches))
	for _, b := range m.branches {
		branches = append(branches, b)
	}
	m.mu.Unlock()
	split.SortBranches(branches)

	for _, b := range branches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

// IterateStructures implements Store. The id list is captured when the call
// starts; structures added afterwards are not observed, which mimics a
// cursor over a live collection.
func (m *Memory) IterateStructures(ctx context.Context, b Batch, fn func(split.Structure) error) error {
	if err := m.fail("iterate_structures"); err != nil {
		return err
	}

	ids := m.StructureIDs()
	return ForEachBatch(ctx, len(ids), b, func(_, lo, hi int) error {
		for _, id := range ids[lo:hi] {
			s, ok := m.Structure(id)
			if !ok {
				continue
			}
			if err := fn(s); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetStructure implements Store.
func (m *Memory) GetStructure(ctx context.Context, id string) (split.Structure, bool, error) {
	if err := m.fail("get_structure"); err != nil {
		return split.Structure{}, false, err
	}
	s, ok := m.Structure(id)
	return s, ok, nil
}

// UpdatePreviousIDs implements Store.
func (m *Memory) UpdatePreviousIDs(ctx context.Context, relinks []split.Relink, b Batch) ([]BatchResult, error) {
	var results []BatchResult
	err := ForEachBatch(ctx, len(relinks), b, func(index, lo, hi int) error {
		if err := m.fail("update_previous_id"); err != nil {
			return err
		}
		res := BatchResult{Index: index, Requested: hi - lo}

		m.mu.Lock()
		for _, r := range relinks[lo:hi] {
			s, ok := m.structures[r.StructureID]
			if !ok {
				continue
			}
			res.Matched++
			if s.PreviousID != r.PreviousID {
				s.PreviousID = r.PreviousID
				m.structures[s.ID] = s
				res.Modified++
			}
		}
		m.mu.Unlock()

		results = append(results, res)
		return nil
	})
	return results, err
}

// DeleteStructures implements Store.
func (m *Memory) DeleteStructures(ctx context.Context, ids []string, b Batch) ([]BatchResult, error) {
	var results []BatchResult
	err := ForEachBatch(ctx, len(ids), b, func(index, lo, hi int) error {
		if err := m.fail("delete_structures"); err != nil {
			return err
		}
		res := BatchResult{Index: index, Requested: hi - lo}

		m.mu.Lock()
		for _, id := range ids[lo:hi] {
			if _, ok := m.structures[id]; ok {
				delete(m.structures, id)
				res.Deleted++
			}
		}
		m.mu.Unlock()

		results = append(results, res)
		return nil
	})
	return results, err
}

// Close implements Store.
func (m *Memory) Close(context.Context) error {
	return nil
}
