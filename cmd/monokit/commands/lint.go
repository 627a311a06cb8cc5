package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/monokit/pkg/depcheck"
	"github.com/Sumatoshi-tech/monokit/pkg/observability"
	"github.com/Sumatoshi-tech/monokit/pkg/report"
	"github.com/Sumatoshi-tech/monokit/pkg/watch"
	"github.com/Sumatoshi-tech/monokit/pkg/workspace"
)

// LintCommand holds the flags of lint-deps.
type LintCommand struct {
	fix        bool
	watch      bool
	warnUnused bool
	format     string
}

// NewLintCommand creates the dependency drift audit command.
func NewLintCommand() *cobra.Command {
	lc := &LintCommand{}

	cmd := &cobra.Command{
		Use:   "lint-deps",
		Short: "Report runtime imports missing from package.json",
		Long: `Scan every workspace package's sources and report each external package
that is imported at runtime but declared in neither dependencies nor
peerDependencies. Type-only imports and test files never require a
runtime dependency.

Exits with status 1 when drift is found.`,
		Args: cobra.NoArgs,
		RunE: lc.run,
	}

	cmd.Flags().BoolVar(&lc.fix, "fix", false, "Run lint.fix_command for each missing package instead of reporting it")
	cmd.Flags().BoolVarP(&lc.watch, "watch", "w", false, "Re-run the audit whenever sources or manifests change")
	cmd.Flags().BoolVar(&lc.warnUnused, "warn-unused", false, "Also warn about declared dependencies nothing imports")
	cmd.Flags().StringVarP(&lc.format, "format", "f", string(report.FormatText), "Output format: text, json, yaml")

	return cmd
}

func (lc *LintCommand) run(cmd *cobra.Command, _ []string) error {
	mode := observability.ModeCLI
	if lc.watch {
		mode = observability.ModeWatch
	}

	s, err := newSession(cmd, mode)
	if err != nil {
		return err
	}
	defer s.close(cmd.Context())

	printer, err := s.printer(cmd, lc.format)
	if err != nil {
		return err
	}

	opts, err := lc.options(cmd, s)
	if err != nil {
		return err
	}

	if lc.watch {
		return lc.runWatch(cmd.Context(), s, opts, printer)
	}

	summary, err := lc.audit(cmd.Context(), s, opts)
	if err != nil {
		return err
	}

	if err := printer.Lint(summary); err != nil {
		return err
	}

	if summary.Drift() {
		return ErrDependencyDrift
	}

	return nil
}

func (lc *LintCommand) options(cmd *cobra.Command, s *session) (workspace.Options, error) {
	opts := s.options()
	opts.WarnUnused = opts.WarnUnused || lc.warnUnused

	if lc.fix {
		// The package manager's output goes to stderr so stdout stays parseable.
		fixer, err := depcheck.NewShellFixer(s.cfg.Lint.FixCommand, cmd.ErrOrStderr(), cmd.ErrOrStderr())
		if err != nil {
			return opts, err
		}

		opts.Fixer = fixer
	}

	if lc.watch && s.cfg.Lint.CacheSize > 0 {
		cache, err := depcheck.NewParseCache(s.cfg.Lint.CacheSize)
		if err != nil {
			return opts, err
		}

		opts.Cache = cache
	}

	return opts, nil
}

func (lc *LintCommand) audit(ctx context.Context, s *session, opts workspace.Options) (workspace.LintSummary, error) {
	runner, err := s.runner(opts)
	if err != nil {
		return workspace.LintSummary{}, err
	}

	return runner.LintDependencies(ctx, lc.fix)
}

// runWatch audits once, then again after every batch of relevant changes,
// until interrupted. Drift never ends the loop.
func (lc *LintCommand) runWatch(
	parent context.Context, s *session, opts workspace.Options, printer *report.Printer,
) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rerun := func(ctx context.Context, changed []string) error {
		if len(changed) > 0 {
			s.logger.InfoContext(ctx, "re-running dependency audit", "changed", len(changed), "first", changed[0])
		}

		summary, err := lc.audit(ctx, s, opts)
		if err != nil {
			return err
		}

		return printer.Lint(summary)
	}

	if err := rerun(ctx, nil); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	}

	w, err := watch.New(watch.Config{
		Root:     s.root,
		Include:  watch.DefaultInclude,
		Ignore:   s.cfg.Watch.Ignore,
		Debounce: s.cfg.Watch.Debounce,
		OnChange: rerun,
		Logger:   s.logger,
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "watching for changes", "root", s.root)

	return w.Run(ctx)
}
