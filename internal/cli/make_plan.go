package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/structprune/internal/config"
	"github.com/roach88/structprune/internal/graph"
	"github.com/roach88/structprune/internal/planner"
	"github.com/roach88/structprune/internal/split"
)

// MakePlanOptions holds flags for the make-plan command.
type MakePlanOptions struct {
	*RootOptions
	storeFlags

	Retain        int
	IgnoreMissing bool
	PlanOut       string
	DetailsOut    string
}

// PlanSummary is the make-plan result.
type PlanSummary struct {
	PlanFile      string `json:"plan_file"`
	DetailsFile   string `json:"details_file,omitempty"`
	Structures    int    `json:"structures"`
	Branches      int    `json:"branches"`
	Kept          int    `json:"kept"`
	Delete        int    `json:"delete"`
	Orphans       int    `json:"orphans"`
	UpdateParents int    `json:"update_parents"`
	Missing       int    `json:"missing"`
	Skipped       int    `json:"skipped_relinks"`
	Repaired      int    `json:"repaired"`
}

func (s PlanSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan written to %s\n", s.PlanFile)
	if s.DetailsFile != "" && s.DetailsFile != "-" {
		fmt.Fprintf(&b, "Details written to %s\n", s.DetailsFile)
	}
	fmt.Fprintf(&b, "  structures:     %s\n", planner.FormatCount(s.Structures))
	fmt.Fprintf(&b, "  active:         %s\n", planner.FormatCount(s.Branches))
	fmt.Fprintf(&b, "  kept:           %s\n", planner.FormatCount(s.Kept))
	fmt.Fprintf(&b, "  delete:         %s (%s orphans)\n", planner.FormatCount(s.Delete), planner.FormatCount(s.Orphans))
	fmt.Fprintf(&b, "  update_parents: %s", planner.FormatCount(s.UpdateParents))
	if s.Missing > 0 || s.Skipped > 0 {
		fmt.Fprintf(&b, "\n  missing:        %s (%s re-links skipped)", planner.FormatCount(s.Missing), planner.FormatCount(s.Skipped))
	}
	return b.String()
}

// NewMakePlanCommand creates the make-plan command.
func NewMakePlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MakePlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "make-plan",
		Short: "Compute a change plan without modifying the store",
		Long: `Read every active version and structure, decide which structures to keep,
and write the resulting change plan as JSON.

Each lineage keeps its head, its Original and up to --retain intermediate
structures. Everything no active version reaches is deleted. Lineages with
missing ancestors fail the run unless --ignore-missing is given.

Example:
  structprune make-plan --store mongodb://localhost:27017 --retain 2 --plan-out plan.json
  structprune make-plan --store mirror.db --retain 0 --plan-out plan.json --details-out details.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMakePlan(opts, cmd)
		},
	}

	opts.storeFlags.register(cmd)
	d := config.Default()
	cmd.Flags().IntVar(&opts.Retain, "retain", d.Retain, "intermediate structures to keep per lineage")
	cmd.Flags().BoolVar(&opts.IgnoreMissing, "ignore-missing", false, "plan around lineages with missing ancestors")
	cmd.Flags().StringVar(&opts.PlanOut, "plan-out", "", "path to write the JSON plan (required)")
	cmd.Flags().StringVar(&opts.DetailsOut, "details-out", "", "path to write the details report, - for stdout (text format only)")
	_ = cmd.MarkFlagRequired("plan-out")

	return cmd
}

func runMakePlan(opts *MakePlanOptions, cmd *cobra.Command) error {
	s := newSession(cmd, opts.RootOptions)

	if opts.DetailsOut == "-" && opts.Format == "json" {
		return s.fail("invalid configuration", split.NewBadConfiguration("--details-out - cannot be combined with --format json"))
	}

	cfg, err := s.loadConfig(true, opts.storeFlags.apply(cmd), func(cfg *config.Config) {
		if cmd.Flags().Changed("retain") {
			cfg.Retain = opts.Retain
		}
		if cmd.Flags().Changed("ignore-missing") {
			cfg.IgnoreMissing = opts.IgnoreMissing
		}
	})
	if err != nil {
		return s.fail("invalid configuration", err)
	}

	st, err := s.openStore(cfg)
	if err != nil {
		return s.fail("failed to open store", err)
	}
	defer s.closeStore(st)

	builder := &graph.Builder{Reader: st, Batch: batchFor(cfg), Logger: s.log}
	g, gstats, err := builder.Build(s.ctx())
	if err != nil {
		return s.fail("failed to read structure graph", err)
	}

	res, err := planner.Plan(g, planner.Options{Retain: cfg.Retain, IgnoreMissing: cfg.IgnoreMissing})
	if err != nil {
		return s.fail("failed to compute plan", err)
	}
	for _, r := range res.Skipped {
		s.log.Warn("re-link skipped: original not in store", "structure_id", r.StructureID, "original_id", r.PreviousID)
	}

	if err := split.WritePlanFile(opts.PlanOut, res.Plan); err != nil {
		return s.fail("failed to write plan", err)
	}
	s.log.Info("plan written", "path", opts.PlanOut,
		"delete", len(res.Plan.Delete),
		"update_parents", len(res.Plan.UpdateParents),
	)

	if opts.DetailsOut != "" {
		if err := writeDetailsTo(opts.DetailsOut, cmd.OutOrStdout(), res); err != nil {
			return s.fail("failed to write details", err)
		}
	}

	return s.out.Success(PlanSummary{
		PlanFile:      opts.PlanOut,
		DetailsFile:   opts.DetailsOut,
		Structures:    res.Stats.Structures,
		Branches:      res.Stats.Branches,
		Kept:          res.Stats.Kept,
		Delete:        res.Stats.Deleted,
		Orphans:       res.Stats.Orphans,
		UpdateParents: res.Stats.Relinked,
		Missing:       res.Stats.Missing,
		Skipped:       res.Stats.Skipped,
		Repaired:      gstats.Repaired,
	})
}

func writeDetailsTo(path string, stdout io.Writer, res *planner.Result) error {
	if path == "-" {
		return planner.WriteDetails(stdout, res)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := planner.WriteDetails(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
