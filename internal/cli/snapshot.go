package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/structprune/internal/planner"
	"github.com/roach88/structprune/internal/split"
	"github.com/roach88/structprune/internal/store"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	storeFlags

	Out string
}

// SnapshotSummary is the snapshot result.
type SnapshotSummary struct {
	Out        string `json:"out"`
	Structures int    `json:"structures"`
	Branches   int    `json:"branches"`
}

func (s SnapshotSummary) String() string {
	return fmt.Sprintf("Snapshot written to %s\n  structures: %s\n  active:     %s",
		s.Out, planner.FormatCount(s.Structures), planner.FormatCount(s.Branches))
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Copy the structure graph into a local SQLite mirror",
		Long: `Copy every structure and active version from a store into a new SQLite
file. Plans can then be computed and reviewed offline with
--store FILE.db; they apply unchanged to the source store.

Example:
  structprune snapshot --store mongodb://localhost:27017 --out mirror.db --batch-size 5000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(opts, cmd)
		},
	}

	opts.storeFlags.register(cmd)
	cmd.Flags().StringVar(&opts.Out, "out", "", "path of the SQLite file to create (required)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runSnapshot(opts *SnapshotOptions, cmd *cobra.Command) error {
	s := newSession(cmd, opts.RootOptions)

	cfg, err := s.loadConfig(true, opts.storeFlags.apply(cmd))
	if err != nil {
		return s.fail("invalid configuration", err)
	}

	out := store.SQLitePath(opts.Out)
	if _, err := os.Stat(out); !errors.Is(err, fs.ErrNotExist) {
		return s.fail("invalid output", split.NewBadConfiguration("snapshot target %q already exists", out))
	}

	src, err := s.openStore(cfg)
	if err != nil {
		return s.fail("failed to open store", err)
	}
	defer s.closeStore(src)

	dst, err := store.OpenSQLite(out)
	if err != nil {
		return s.fail("failed to create snapshot", err)
	}
	defer s.closeStore(dst)

	structures, branches, err := store.Copy(s.ctx(), src, dst, batchFor(cfg))
	if err != nil {
		return s.fail("failed to copy store", err)
	}
	s.log.Info("snapshot written", "path", out, "structures", structures, "branches", branches)

	return s.out.Success(SnapshotSummary{Out: out, Structures: structures, Branches: branches})
}
