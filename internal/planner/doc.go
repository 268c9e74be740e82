// Package planner computes a ChangePlan from a structure graph.
//
// Planning is a pure function of its inputs: it performs no I/O and always
// returns the same plan for the same graph and options.
//
// # Retention
//
// For every lineage that ends at an active branch head the planner keeps
// the head, the Original, and up to Retain structures strictly between
// them, nearest the head first. Everything else in the graph is deleted,
// including orphans no branch reaches. Heads and Originals are never
// deleted.
//
// # Re-linking
//
// Walking from a head toward the Original, the last consecutive kept
// non-Original structure T has its previous_id rewritten to its
// original_id whenever its current parent is not kept. This is one write
// per affected lineage and leaves no dangling previous_id once deletes run.
//
// # Ordering
//
// Both output lists are sorted ascending by id. For ObjectId stores this
// is creation order, which groups deletes by storage locality.
package planner
