// Package applier executes a ChangePlan against a store.
//
// The re-link phase always runs to completion before the delete phase
// starts, so an interrupted run never leaves a previous_id pointing at a
// deleted structure. Both phases are idempotent; an interrupted delete
// phase is resumed by passing the next undeleted id as StartID.
package applier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/structprune/internal/split"
	"github.com/roach88/structprune/internal/store"
)

// Writer is the write side of a store adapter.
type Writer interface {
	UpdatePreviousIDs(ctx context.Context, relinks []split.Relink, b store.Batch) ([]store.BatchResult, error)
	DeleteStructures(ctx context.Context, ids []string, b store.Batch) ([]store.BatchResult, error)
}

// Applier runs plans against one store.
type Applier struct {
	Writer Writer
	Batch  store.Batch
	Logger *slog.Logger
}

// Options controls a single Apply call.
type Options struct {
	// StartID resumes the delete phase: delete ids below it are skipped. It
	// must be an element of the plan's delete list.
	StartID string
}

// Report is what Apply did.
type Report struct {
	RelinkRequested int
	RelinkMatched   int
	RelinkModified  int

	DeleteRequested int
	Deleted         int
	DeleteSkipped   int // ids below StartID

	Batches      int
	ShortBatches int
}

func (a *Applier) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Apply runs the re-link phase and then the delete phase. On error the
// report covers the batches committed before the failure.
func (a *Applier) Apply(ctx context.Context, plan *split.ChangePlan, opts Options) (*Report, error) {
	if a.Batch.Size < 1 {
		return nil, split.NewBadConfiguration("batch size must be >= 1, got %d", a.Batch.Size)
	}

	deletes := plan.Delete
	skipped := 0
	if opts.StartID != "" {
		i := plan.IndexOfDelete(opts.StartID)
		if i < 0 {
			return nil, split.NewInvalidPlanReference(opts.StartID, len(plan.Delete))
		}
		deletes, skipped = plan.Delete[i:], i
	}

	log := a.logger()
	rep := &Report{DeleteSkipped: skipped}

	log.Info("re-link phase starting", "count", len(plan.UpdateParents), "batch_size", a.Batch.Size)
	results, err := a.Writer.UpdatePreviousIDs(ctx, plan.UpdateParents, a.Batch)
	for _, r := range results {
		rep.record(r, false)
		a.logBatch(log, "re-link", r, false)
	}
	if err != nil {
		return rep, fmt.Errorf("re-link phase: %w", err)
	}
	log.Info("re-link phase done",
		"matched", rep.RelinkMatched,
		"modified", rep.RelinkModified,
	)

	if skipped > 0 {
		log.Info("resuming delete phase", "start_id", opts.StartID, "skipped", skipped)
	}
	log.Info("delete phase starting", "count", len(deletes), "batch_size", a.Batch.Size)
	results, err = a.Writer.DeleteStructures(ctx, deletes, a.Batch)
	for _, r := range results {
		rep.record(r, true)
		a.logBatch(log, "delete", r, true)
	}
	if err != nil {
		if next := nextUndeleted(deletes, results, a.Batch.Size); next != "" {
			log.Error("delete phase interrupted; resume with --start-id", "start_id", next)
		}
		return rep, fmt.Errorf("delete phase: %w", err)
	}
	log.Info("delete phase done", "deleted", rep.Deleted, "requested", rep.DeleteRequested)

	return rep, nil
}

func (r *Report) record(b store.BatchResult, isDelete bool) {
	r.Batches++
	if b.Short(isDelete) {
		r.ShortBatches++
	}
	if isDelete {
		r.DeleteRequested += b.Requested
		r.Deleted += b.Deleted
		return
	}
	r.RelinkRequested += b.Requested
	r.RelinkMatched += b.Matched
	r.RelinkModified += b.Modified
}

func (a *Applier) logBatch(log *slog.Logger, phase string, r store.BatchResult, isDelete bool) {
	attrs := []any{"phase", phase, "batch", r.Index, "requested", r.Requested}
	if isDelete {
		attrs = append(attrs, "deleted", r.Deleted)
	} else {
		attrs = append(attrs, "matched", r.Matched, "modified", r.Modified)
	}

	if r.Short(isDelete) {
		log.Warn("batch touched fewer structures than requested",
			append(attrs, "kind", string(split.KindPartialBatch))...)
		return
	}
	log.Debug("batch applied", attrs...)
}

// nextUndeleted returns the first id of the batch after the last committed
// one, which is where a resumed run should start.
func nextUndeleted(ids []string, committed []store.BatchResult, size int) string {
	i := len(committed) * size
	if i >= len(ids) {
		return ""
	}
	return ids[i]
}
