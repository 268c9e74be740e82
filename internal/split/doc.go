// Package split defines the data model shared by the pruner components.
//
// The Split modulestore keeps every published version of a course as an
// immutable structure document. Structures form lineages: each one points
// at its parent through PreviousID and at the root of its lineage through
// OriginalID. Active version branches (draft, published, library) point at
// the head of a lineage.
//
// # Invariants
//
//   - An Original has an empty PreviousID and OriginalID == ID.
//   - Identifiers are opaque strings. Store-native ids are converted at the
//     adapter boundary and never re-interpreted here.
//   - A ChangePlan is sorted ascending, its Delete list and re-linked ids are
//     disjoint, and no re-link targets a deleted id.
//
// All pruner errors are *Error values with a stable Kind so the CLI can map
// them to distinguishable exit codes.
package split
