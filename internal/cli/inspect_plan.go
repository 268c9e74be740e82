package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/structprune/internal/planner"
	"github.com/roach88/structprune/internal/split"
)

// PlanInfo describes a plan file.
type PlanInfo struct {
	PlanFile      string `json:"plan_file"`
	Delete        int    `json:"delete"`
	UpdateParents int    `json:"update_parents"`
	FirstDelete   string `json:"first_delete,omitempty"`
	LastDelete    string `json:"last_delete,omitempty"`
}

func (p PlanInfo) String() string {
	s := fmt.Sprintf("%s\n  delete:         %s\n  update_parents: %s",
		p.PlanFile, planner.FormatCount(p.Delete), planner.FormatCount(p.UpdateParents))
	if p.Delete > 0 {
		s += fmt.Sprintf("\n  delete range:   %s .. %s", p.FirstDelete, p.LastDelete)
	}
	return s
}

// NewInspectPlanCommand creates the inspect-plan command.
func NewInspectPlanCommand(rootOpts *RootOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "inspect-plan",
		Short: "Validate a plan file and print its counts",
		Long: `Validate a plan file without touching any store: both lists must be sorted,
ids must be unique, and no re-link may point at a deleted structure.

The delete range bounds the values accepted by apply-plan --start-id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newSession(cmd, rootOpts)

			plan, err := split.ReadPlanFile(path)
			if err != nil {
				return s.fail("invalid plan", err)
			}

			info := PlanInfo{
				PlanFile:      path,
				Delete:        len(plan.Delete),
				UpdateParents: len(plan.UpdateParents),
			}
			if n := len(plan.Delete); n > 0 {
				info.FirstDelete, info.LastDelete = plan.Delete[0], plan.Delete[n-1]
			}
			return s.out.Success(info)
		},
	}

	cmd.Flags().StringVar(&path, "plan", "", "path to the JSON plan (required)")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}
