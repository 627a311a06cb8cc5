package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/monokit/pkg/observability"
	"github.com/Sumatoshi-tech/monokit/pkg/report"
)

// BuildCommand holds the flags of build-exports.
type BuildCommand struct {
	dryRun bool
	format string
}

// NewBuildCommand creates the export map command.
func NewBuildCommand() *cobra.Command {
	bc := &BuildCommand{}

	cmd := &cobra.Command{
		Use:   "build-exports",
		Short: `Generate dual-format "exports" maps for built packages`,
		Long: `Walk each package's compiled output, delete test and story artifacts,
and rewrite the built package.json with an "exports" map pairing the
primary and alternate module formats. Packages holding a .skip-build
marker are left alone.`,
		Args: cobra.NoArgs,
		RunE: bc.run,
	}

	cmd.Flags().BoolVar(&bc.dryRun, "dry-run", false, "Print a diff of each manifest instead of writing or deleting anything")
	cmd.Flags().StringVarP(&bc.format, "format", "f", string(report.FormatText), "Output format: text, json, yaml")

	return cmd
}

func (bc *BuildCommand) run(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}
	defer s.close(cmd.Context())

	printer, err := s.printer(cmd, bc.format)
	if err != nil {
		return err
	}

	runner, err := s.runner(s.options())
	if err != nil {
		return err
	}

	summary, err := runner.BuildExports(cmd.Context(), bc.dryRun)
	if err != nil {
		return err
	}

	if err := printer.Build(summary); err != nil {
		return err
	}

	if len(summary.Failures) > 0 {
		return fmt.Errorf("%w: %d of %d", ErrPackagesFailed, len(summary.Failures), len(summary.Failures)+len(summary.Packages))
	}

	return nil
}
