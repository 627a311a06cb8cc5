package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/monokit/pkg/observability"
	"github.com/Sumatoshi-tech/monokit/pkg/report"
)

// NewCleanCommand creates the command removing build outputs.
func NewCleanCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove build outputs from the root and every package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			printer, err := s.printer(cmd, format)
			if err != nil {
				return err
			}

			runner, err := s.runner(s.options())
			if err != nil {
				return err
			}

			removed, err := runner.Clean(s.root)
			if err != nil {
				return err
			}

			return printer.Removed(removed)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatText), "Output format: text, json, yaml")

	return cmd
}

// NewPackagesCommand creates the command listing workspace packages.
func NewPackagesCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "packages",
		Short: "List workspace packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			printer, err := s.printer(cmd, format)
			if err != nil {
				return err
			}

			runner, err := s.runner(s.options())
			if err != nil {
				return err
			}

			return printer.Packages(runner.Packages())
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatText), "Output format: text, json, yaml")

	return cmd
}
