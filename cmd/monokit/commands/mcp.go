package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/monokit/pkg/depcheck"
	"github.com/Sumatoshi-tech/monokit/pkg/mcp"
	"github.com/Sumatoshi-tech/monokit/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes the monokit pipelines as tools that AI agents can
discover and invoke:
  - monokit_lint_dependencies: dependency drift audit of a workspace
  - monokit_build_exports: dry-run preview of generated export maps
  - monokit_extract_imports: imports of an inline JS/TS snippet

Logs are JSON on stderr; stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, observability.ModeMCP)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			opts := s.options()

			if s.cfg.Lint.CacheSize > 0 {
				opts.Cache, err = depcheck.NewParseCache(s.cfg.Lint.CacheSize)
				if err != nil {
					return err
				}
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Fs:      s.fs,
				Options: opts,
				Logger:  s.logger,
				Tracer:  s.providers.Tracer,
			})

			return srv.Run(cmd.Context())
		},
	}
}
