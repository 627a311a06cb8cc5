package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/monokit/pkg/config"
	"github.com/Sumatoshi-tech/monokit/pkg/observability"
	"github.com/Sumatoshi-tech/monokit/pkg/report"
	"github.com/Sumatoshi-tech/monokit/pkg/version"
	"github.com/Sumatoshi-tech/monokit/pkg/workspace"
)

// session is the per-invocation environment: resolved config, telemetry
// and the workspace root.
type session struct {
	cfg       *config.Config
	root      string
	fs        afero.Fs
	logger    *slog.Logger
	providers observability.Providers
	metrics   *observability.PipelineMetrics
	useColor  bool
}

func newSession(cmd *cobra.Command, mode observability.AppMode) (*session, error) {
	flags := cmd.Flags()

	configPath, _ := flags.GetString(flagConfig)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if root, _ := flags.GetString(flagRoot); root != "" {
		cfg.Workspace.Root = root
	}

	if flags.Changed(flagLogLevel) {
		cfg.Logging.Level, _ = flags.GetString(flagLogLevel)
	}

	if flags.Changed(flagLogJSON) {
		cfg.Logging.JSON, _ = flags.GetBool(flagLogJSON)
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.DebugTrace = cfg.Telemetry.DebugTrace
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.MetricsFile = cfg.Telemetry.MetricsFile
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Logging.JSON || mode == observability.ModeMCP

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	metrics, err := observability.NewPipelineMetrics(providers.Meter)
	if err != nil {
		_ = providers.Shutdown(context.Background())

		return nil, err
	}

	noColor, _ := flags.GetBool(flagNoColor)

	return &session{
		cfg:       cfg,
		root:      root,
		fs:        afero.NewOsFs(),
		logger:    observability.NewLogger(cmd.ErrOrStderr(), obsCfg),
		providers: providers,
		metrics:   metrics,
		useColor:  !noColor && !color.NoColor,
	}, nil
}

// close flushes telemetry. Failures are logged, not returned, so they never
// mask the command's own result.
func (s *session) close(ctx context.Context) {
	if err := s.providers.Shutdown(context.WithoutCancel(ctx)); err != nil {
		s.logger.WarnContext(ctx, "observability shutdown failed", "error", err)
	}
}

// options maps the configuration onto pipeline options.
func (s *session) options() workspace.Options {
	return workspace.Options{
		Patterns:     s.cfg.Patterns(),
		Concurrency:  s.cfg.Lint.Concurrency,
		Ignore:       s.cfg.Lint.Ignore,
		WarnUnused:   s.cfg.Lint.WarnUnused,
		BuildDir:     s.cfg.Build.Dir,
		PrimaryDir:   s.cfg.Build.PrimaryDir,
		AlternateDir: s.cfg.Build.AlternateDir,
		ModuleType:   s.cfg.Build.ModuleType,
		Exclude:      s.cfg.Build.Exclude,
		Reserved:     s.cfg.Build.Reserved,
		Logger:       s.logger,
		Tracer:       s.providers.Tracer,
		Metrics:      s.metrics,
	}
}

// runner discovers the workspace afresh, so packages added while a watch
// loop runs are picked up.
func (s *session) runner(opts workspace.Options) (*workspace.Runner, error) {
	pkgs, err := workspace.Discover(s.fs, s.root, s.cfg.Workspace.Globs...)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("discovered packages", "root", s.root, "count", len(pkgs))

	return workspace.NewRunner(s.fs, pkgs, opts)
}

func (s *session) printer(cmd *cobra.Command, format string) (*report.Printer, error) {
	f, err := report.ParseFormat(format)
	if err != nil {
		return nil, err
	}

	return report.NewPrinter(cmd.OutOrStdout(), f, s.useColor), nil
}
