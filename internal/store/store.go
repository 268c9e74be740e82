package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/structprune/internal/split"
)

// Store is the full capability set of a modulestore adapter.
type Store interface {
	// IterateActiveBranches calls fn once per (active version, branch) pair.
	IterateActiveBranches(ctx context.Context, fn func(split.Branch) error) error

	// IterateStructures streams every structure once, projected to its
	// identity fields, pausing between batches.
	IterateStructures(ctx context.Context, b Batch, fn func(split.Structure) error) error

	// GetStructure fetches a single structure. The bool is false when the
	// structure does not exist.
	GetStructure(ctx context.Context, id string) (split.Structure, bool, error)

	// UpdatePreviousIDs rewrites previous_id in bulk batches.
	UpdatePreviousIDs(ctx context.Context, relinks []split.Relink, b Batch) ([]BatchResult, error)

	// DeleteStructures deletes structures in bulk batches.
	DeleteStructures(ctx context.Context, ids []string, b Batch) ([]BatchResult, error)

	// Close releases the connection.
	Close(ctx context.Context) error
}

// Options configures Open.
type Options struct {
	// Database is the Mongo database name. Ignored by other backends.
	Database string
}

// DefaultDatabase is the modulestore database name used by Open when none
// is configured.
const DefaultDatabase = "edxapp"

// Open connects to the store named by uri. mongodb:// and mongodb+srv://
// URIs select the Mongo adapter; sqlite: URIs and paths ending in .db or
// .sqlite select the SQLite adapter, which must already exist.
func Open(ctx context.Context, uri string, opts Options) (Store, error) {
	switch {
	case uri == "":
		return nil, split.NewBadConfiguration("store uri is required")
	case strings.HasPrefix(uri, "mongodb://"), strings.HasPrefix(uri, "mongodb+srv://"):
		db := opts.Database
		if db == "" {
			db = DefaultDatabase
		}
		return OpenMongo(ctx, uri, db)
	case strings.HasPrefix(uri, "sqlite:"):
		return OpenExistingSQLite(SQLitePath(uri))
	case strings.HasSuffix(uri, ".db"), strings.HasSuffix(uri, ".sqlite"):
		return OpenExistingSQLite(uri)
	default:
		return nil, split.NewBadConfiguration("unsupported store uri %q", uri)
	}
}

// SQLitePath strips the sqlite: or sqlite:// prefix from uri.
func SQLitePath(uri string) string {
	if p, ok := strings.CutPrefix(uri, "sqlite://"); ok {
		return p
	}
	return strings.TrimPrefix(uri, "sqlite:")
}

// Copy streams every structure and branch from src into dst. Used by the
// snapshot command to build an offline mirror.
func Copy(ctx context.Context, src Store, dst *SQLite, b Batch) (structures, branches int, err error) {
	pending := make([]split.Structure, 0, b.size())
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := dst.PutStructures(ctx, pending); err != nil {
			return err
		}
		structures += len(pending)
		pending = pending[:0]
		return nil
	}

	err = src.IterateStructures(ctx, b, func(s split.Structure) error {
		pending = append(pending, s)
		if len(pending) >= b.size() {
			return flush()
		}
		return nil
	})
	if err != nil {
		return structures, 0, fmt.Errorf("copy structures: %w", err)
	}
	if err := flush(); err != nil {
		return structures, 0, fmt.Errorf("copy structures: %w", err)
	}

	var all []split.Branch
	err = src.IterateActiveBranches(ctx, func(br split.Branch) error {
		all = append(all, br)
		return nil
	})
	if err != nil {
		return structures, 0, fmt.Errorf("copy branches: %w", err)
	}
	if err := dst.PutBranches(ctx, all); err != nil {
		return structures, 0, fmt.Errorf("copy branches: %w", err)
	}
	return structures, len(all), nil
}
