package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/structprune/internal/applier"
	"github.com/roach88/structprune/internal/planner"
	"github.com/roach88/structprune/internal/split"
)

// ApplyPlanOptions holds flags for the apply-plan command.
type ApplyPlanOptions struct {
	*RootOptions
	storeFlags

	Plan    string
	StartID string
}

// ApplySummary is the apply-plan result.
type ApplySummary struct {
	PlanFile        string `json:"plan_file"`
	StartID         string `json:"start_id,omitempty"`
	RelinkRequested int    `json:"relink_requested"`
	RelinkMatched   int    `json:"relink_matched"`
	RelinkModified  int    `json:"relink_modified"`
	DeleteRequested int    `json:"delete_requested"`
	Deleted         int    `json:"deleted"`
	DeleteSkipped   int    `json:"delete_skipped"`
	Batches         int    `json:"batches"`
	ShortBatches    int    `json:"short_batches"`
}

func newApplySummary(path, startID string, r *applier.Report) ApplySummary {
	return ApplySummary{
		PlanFile:        path,
		StartID:         startID,
		RelinkRequested: r.RelinkRequested,
		RelinkMatched:   r.RelinkMatched,
		RelinkModified:  r.RelinkModified,
		DeleteRequested: r.DeleteRequested,
		Deleted:         r.Deleted,
		DeleteSkipped:   r.DeleteSkipped,
		Batches:         r.Batches,
		ShortBatches:    r.ShortBatches,
	}
}

func (s ApplySummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Applied %s\n", s.PlanFile)
	fmt.Fprintf(&b, "  re-linked: %s of %s (%s modified)\n",
		planner.FormatCount(s.RelinkMatched), planner.FormatCount(s.RelinkRequested), planner.FormatCount(s.RelinkModified))
	fmt.Fprintf(&b, "  deleted:   %s of %s", planner.FormatCount(s.Deleted), planner.FormatCount(s.DeleteRequested))
	if s.DeleteSkipped > 0 {
		fmt.Fprintf(&b, " (%s before %s skipped)", planner.FormatCount(s.DeleteSkipped), s.StartID)
	}
	fmt.Fprintf(&b, "\n  batches:   %d", s.Batches)
	if s.ShortBatches > 0 {
		fmt.Fprintf(&b, " (%d short)", s.ShortBatches)
	}
	return b.String()
}

// NewApplyPlanCommand creates the apply-plan command.
func NewApplyPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyPlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply-plan",
		Short: "Apply a change plan to the store",
		Long: `Apply a plan written by make-plan: every re-link is written first, then the
planned structures are deleted in sorted batches with --delay seconds
between batches.

Applying the same plan twice is harmless. If a run is interrupted, the
error log names the --start-id to resume the delete phase from.

Example:
  structprune apply-plan --store mongodb://localhost:27017 --plan plan.json --batch-size 500 --delay 1
  structprune apply-plan --store mirror.db --plan plan.json --start-id 5f1a...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApplyPlan(opts, cmd)
		},
	}

	opts.storeFlags.register(cmd)
	cmd.Flags().StringVar(&opts.Plan, "plan", "", "path to the JSON plan (required)")
	cmd.Flags().StringVar(&opts.StartID, "start-id", "", "resume the delete phase at this id")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

func runApplyPlan(opts *ApplyPlanOptions, cmd *cobra.Command) error {
	s := newSession(cmd, opts.RootOptions)

	cfg, err := s.loadConfig(true, opts.storeFlags.apply(cmd))
	if err != nil {
		return s.fail("invalid configuration", err)
	}

	plan, err := split.ReadPlanFile(opts.Plan)
	if err != nil {
		return s.fail("failed to read plan", err)
	}
	if opts.StartID != "" && plan.IndexOfDelete(opts.StartID) < 0 {
		return s.fail("invalid start id", split.NewInvalidPlanReference(opts.StartID, len(plan.Delete)))
	}
	s.log.Info("plan loaded", "path", opts.Plan,
		"delete", len(plan.Delete),
		"update_parents", len(plan.UpdateParents),
	)

	st, err := s.openStore(cfg)
	if err != nil {
		return s.fail("failed to open store", err)
	}
	defer s.closeStore(st)

	a := &applier.Applier{Writer: st, Batch: batchFor(cfg), Logger: s.log}
	rep, err := a.Apply(s.ctx(), plan, applier.Options{StartID: opts.StartID})
	if err != nil {
		return s.fail("failed to apply plan", err)
	}

	return s.out.Success(newApplySummary(opts.Plan, opts.StartID, rep))
}
