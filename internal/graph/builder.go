// Package graph assembles the in-memory structure graph the planner works
// on.
//
// Structures are streamed first and active branches second. Anything an
// authoring process wrote between the two reads (a new head and the chain
// leading to it) is then fetched one document at a time by the repair loop,
// so every lineage reachable from an observed branch is complete or its gap
// is recorded in Graph.Missing.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/structprune/internal/split"
	"github.com/roach88/structprune/internal/store"
)

// Reader is the read side of a store adapter.
type Reader interface {
	IterateActiveBranches(ctx context.Context, fn func(split.Branch) error) error
	IterateStructures(ctx context.Context, b store.Batch, fn func(split.Structure) error) error
	GetStructure(ctx context.Context, id string) (split.Structure, bool, error)
}

// Builder builds a split.Graph from a Reader.
type Builder struct {
	Reader Reader
	Batch  store.Batch
	Logger *slog.Logger
}

// Stats summarizes one Build call.
type Stats struct {
	Streamed int // structures read by the streaming pass
	Branches int
	Repaired int // structures fetched individually by the repair loop
	Missing  int
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// Build reads the store and returns a graph whose branch heads and lineages
// are present in Structures, except for ids listed in Missing.
func (b *Builder) Build(ctx context.Context) (*split.Graph, Stats, error) {
	log := b.logger()
	g := split.NewGraph()
	var stats Stats

	log.Info("streaming structures", "batch_size", b.Batch.Size, "delay", b.Batch.Delay)
	err := b.Reader.IterateStructures(ctx, b.Batch, func(s split.Structure) error {
		g.Structures[s.ID] = s
		stats.Streamed++
		if stats.Streamed%100000 == 0 {
			log.Debug("structures streamed", "count", stats.Streamed)
		}
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("stream structures: %w", err)
	}
	log.Info("structures streamed", "count", stats.Streamed)

	err = b.Reader.IterateActiveBranches(ctx, func(br split.Branch) error {
		g.Branches = append(g.Branches, br)
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("read active versions: %w", err)
	}
	split.SortBranches(g.Branches)
	stats.Branches = len(g.Branches)
	log.Info("active branches read", "count", stats.Branches)

	missing := make(map[string]struct{})
	for _, br := range g.Branches {
		fetched, err := b.repair(ctx, g, br, missing)
		stats.Repaired += fetched
		if err != nil {
			return nil, stats, err
		}
	}

	for id := range missing {
		g.Missing = append(g.Missing, id)
	}
	sort.Strings(g.Missing)
	stats.Missing = len(g.Missing)

	if stats.Repaired > 0 || stats.Missing > 0 {
		log.Warn("structure graph repaired",
			"fetched", stats.Repaired,
			"missing", stats.Missing,
		)
	}
	return g, stats, nil
}

// repair walks one lineage from its head and fetches every id absent from
// the map. The walk ends at a lineage root, an empty previous_id, or a gap,
// matching the planner's walk.
func (b *Builder) repair(ctx context.Context, g *split.Graph, br split.Branch, missing map[string]struct{}) (int, error) {
	log := b.logger()
	fetched := 0

	id := br.StructureID
	for steps := 0; id != ""; steps++ {
		if steps > len(g.Structures) {
			return fetched, split.NewLineageCycle(br.StructureID, len(g.Structures))
		}
		if _, gone := missing[id]; gone {
			return fetched, nil
		}

		s, ok := g.Structures[id]
		if !ok {
			var found bool
			var err error
			s, found, err = b.Reader.GetStructure(ctx, id)
			if err != nil {
				return fetched, fmt.Errorf("fetch structure %s: %w", id, err)
			}
			if !found {
				log.Warn("lineage ancestor not found",
					"id", id,
					"active_version_id", br.ActiveVersionID,
					"branch", br.Name,
				)
				missing[id] = struct{}{}
				return fetched, nil
			}
			g.Structures[id] = s
			fetched++
			log.Debug("fetched structure missing from stream", "id", id, "branch", br.Name)
		}

		if s.IsLineageRoot() {
			return fetched, nil
		}
		id = s.PreviousID
	}
	return fetched, nil
}
