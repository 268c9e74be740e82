// Package store provides the adapters the pruner uses to read and mutate a
// Split modulestore.
//
// Three implementations share one capability set:
//   - Mongo: the production modulestore (active_versions and structures
//     collections).
//   - SQLite: a local mirror of the structure graph, written by the
//     snapshot command and usable for offline planning.
//   - Memory: an in-process store for tests and fixtures.
//
// # Batching
//
// Every streaming read and bulk write is partitioned into batches of at most
// Batch.Size documents with Batch.Delay slept between consecutive batches.
// Bulk writes are per-document operations; there is no multi-document
// transaction. A delete that matches fewer documents than requested is not
// an error: another actor may have deleted them first.
//
// # Errors
//
// Adapters never retry. Connection, timeout and authentication failures are
// returned as split.KindStoreUnavailable; bulk writes the store rejected are
// returned as split.KindPartialBatch together with the results of the
// batches committed before the failure.
package store
