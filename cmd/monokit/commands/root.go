// Package commands implements CLI command handlers for monokit.
package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

// Persistent flag names shared by every command.
const (
	flagConfig   = "config"
	flagRoot     = "root"
	flagLogLevel = "log-level"
	flagLogJSON  = "log-json"
	flagNoColor  = "no-color"
)

var (
	// ErrDependencyDrift is returned by lint-deps when any package imports a
	// package it does not declare. The CLI exits with status 1.
	ErrDependencyDrift = errors.New("dependency drift detected")
	// ErrPackagesFailed is returned by build-exports when a package could
	// not be processed.
	ErrPackagesFailed = errors.New("some packages failed")
)

// NewRootCommand assembles the monokit command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "monokit",
		Short: "Monorepo toolchain for JavaScript and TypeScript workspaces",
		Long: `monokit keeps a yarn/npm workspace monorepo honest.

Commands:
  lint-deps      Report runtime imports missing from package.json
  build-exports  Generate dual-format "exports" maps for built packages
  clean          Remove build outputs
  packages       List workspace packages
  mcp            Serve the pipelines as MCP tools over stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String(flagConfig, "", "Config file (default: .monokit.yaml in the working directory or $HOME)")
	flags.String(flagRoot, "", "Workspace root (overrides workspace.root)")
	flags.String(flagLogLevel, "", "Log level: debug, info, warn, error (overrides logging.level)")
	flags.Bool(flagLogJSON, false, "Log JSON to stderr (overrides logging.json)")
	flags.Bool(flagNoColor, false, "Disable colored output")

	rootCmd.AddCommand(NewLintCommand())
	rootCmd.AddCommand(NewBuildCommand())
	rootCmd.AddCommand(NewCleanCommand())
	rootCmd.AddCommand(NewPackagesCommand())
	rootCmd.AddCommand(NewMCPCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}
