package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// RunID overrides the run id generator (for testing). If nil, each run
	// gets a UUIDv7.
	RunID func() string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func (o *RootOptions) newRunID() string {
	if o.RunID != nil {
		return o.RunID()
	}
	return uuid.Must(uuid.NewV7()).String()
}

// NewRootCommand creates the root command for the structprune CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "structprune",
		Short: "Prune unreachable course structures from a split modulestore",
		Long: `structprune plans and applies the removal of course structure documents
that no active version can reach, keeping each lineage's Original and a
bounded number of intermediate versions.

Planning is read-only and writes a JSON plan file. Applying re-links kept
structures first and then deletes the planned ids in batches; an
interrupted apply resumes with --start-id.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file (default ./structprune.yaml if present)")

	cmd.AddCommand(NewMakePlanCommand(opts))
	cmd.AddCommand(NewApplyPlanCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))
	cmd.AddCommand(NewInspectPlanCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Argument and flag errors cobra reports before a command runs are
// BAD_CONFIGURATION.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, &RootOptions{}, args, stdout, stderr)
}

func execute(ctx context.Context, opts *RootOptions, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitBadConfiguration
}
