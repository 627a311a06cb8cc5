package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/monokit/pkg/depcheck"
	"github.com/Sumatoshi-tech/monokit/pkg/importparse"
	"github.com/Sumatoshi-tech/monokit/pkg/manifest"
	"github.com/Sumatoshi-tech/monokit/pkg/observability"
	"github.com/Sumatoshi-tech/monokit/pkg/scan"
)

// DefaultBuildDir is the package-relative directory holding compiled output.
const DefaultBuildDir = "build"

// Options configures a Runner. Zero values select the defaults of each
// pipeline stage.
type Options struct {
	// Patterns selects source and test files.
	Patterns scan.Patterns
	// Concurrency bounds simultaneous file reads per package.
	Concurrency int
	// Ignore replaces depcheck.DefaultIgnore when non-nil.
	Ignore []string
	// WarnUnused reports declared dependencies that nothing imports.
	WarnUnused bool
	// Fixer adds missing dependencies in fix mode.
	Fixer depcheck.Fixer
	// Cache reuses parse results across runs.
	Cache *depcheck.ParseCache

	// BuildDir is the compiled output directory, relative to each package.
	BuildDir string
	// PrimaryDir and AlternateDir locate the two formats inside BuildDir.
	PrimaryDir   string
	AlternateDir string
	// ModuleType is written to the built manifest's "type" field.
	ModuleType string
	// Exclude and Reserved replace the walker defaults when non-nil.
	Exclude  []string
	Reserved []string

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.PipelineMetrics
}

// Failure records a package that could not be processed.
type Failure struct {
	Package string `json:"package" yaml:"package"`
	Error   string `json:"error"   yaml:"error"`
}

// PackageLint is the audit outcome of one package.
type PackageLint struct {
	Package       string        `json:"package"                  yaml:"package"`
	Files         int           `json:"files"                    yaml:"files"`
	ParseFailures []string      `json:"parse_failures,omitempty" yaml:"parse_failures,omitempty"`
	Errors        []string      `json:"errors"                   yaml:"errors"`
	Warns         []string      `json:"warns"                    yaml:"warns"`
	Duration      time.Duration `json:"duration"                 yaml:"duration"`
}

// LintSummary aggregates the audit of every package.
type LintSummary struct {
	Packages []PackageLint `json:"packages"           yaml:"packages"`
	Errors   []string      `json:"errors"             yaml:"errors"`
	Warns    []string      `json:"warns"              yaml:"warns"`
	Failures []Failure     `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Drift reports whether any package has undeclared runtime dependencies.
func (s LintSummary) Drift() bool {
	return len(s.Errors) > 0
}

// Runner executes the pipelines over a fixed set of packages.
type Runner struct {
	fs         afero.Fs
	pkgs       []Package
	opts       Options
	logger     *slog.Logger
	tracer     trace.Tracer
	aggregator *depcheck.Aggregator
	auditor    *depcheck.Auditor
}

// NewRunner prepares the pipelines for pkgs.
func NewRunner(fsys afero.Fs, pkgs []Package, opts Options) (*Runner, error) {
	if opts.Patterns.SourceDir == "" && len(opts.Patterns.Source) == 0 && len(opts.Patterns.Test) == 0 {
		opts.Patterns = scan.DefaultPatterns()
	}

	if err := opts.Patterns.Validate(); err != nil {
		return nil, err
	}

	if opts.BuildDir == "" {
		opts.BuildDir = DefaultBuildDir
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	aggOpts := []depcheck.AggregatorOption{
		depcheck.WithConcurrency(opts.Concurrency),
		depcheck.WithLogger(logger),
	}

	if opts.Cache != nil {
		aggOpts = append(aggOpts, depcheck.WithParseCache(opts.Cache))
	}

	auditOpts := []depcheck.AuditorOption{depcheck.WithWarnUnused(opts.WarnUnused)}

	if opts.Ignore != nil {
		auditOpts = append(auditOpts, depcheck.WithIgnore(opts.Ignore))
	}

	if opts.Fixer != nil {
		auditOpts = append(auditOpts, depcheck.WithFixer(opts.Fixer))
	}

	return &Runner{
		fs:         fsys,
		pkgs:       pkgs,
		opts:       opts,
		logger:     logger,
		tracer:     tracer,
		aggregator: depcheck.NewAggregator(fsys, importparse.NewExtractor(), aggOpts...),
		auditor:    depcheck.NewAuditor(auditOpts...),
	}, nil
}

// Packages returns the packages the runner covers.
func (r *Runner) Packages() []Package {
	return r.pkgs
}

// LintDependencies audits every package in order. A package that fails is
// recorded in Failures and does not stop the others; only cancellation
// aborts the run.
func (r *Runner) LintDependencies(ctx context.Context, fix bool) (LintSummary, error) {
	ctx, span := r.tracer.Start(ctx, "monokit.lint",
		trace.WithAttributes(attribute.Int("packages", len(r.pkgs)), attribute.Bool("fix", fix)))
	defer span.End()

	var summary LintSummary

	for _, pkg := range r.pkgs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		report, err := r.lintPackage(ctx, pkg, fix)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summary, err
			}

			r.logger.ErrorContext(ctx, "could not lint package", "package", pkg.Rel, "error", err)
			summary.Failures = append(summary.Failures, Failure{Package: pkg.Rel, Error: err.Error()})

			continue
		}

		summary.Packages = append(summary.Packages, report)
		summary.Errors = append(summary.Errors, report.Errors...)
		summary.Warns = append(summary.Warns, report.Warns...)
	}

	span.SetAttributes(attribute.Int("errors", len(summary.Errors)), attribute.Int("failures", len(summary.Failures)))

	return summary, nil
}

func (r *Runner) lintPackage(ctx context.Context, pkg Package, fix bool) (PackageLint, error) {
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "monokit.lint.package", trace.WithAttributes(attribute.String("package", pkg.Rel)))
	defer span.End()

	report, err := r.auditPackage(ctx, pkg, fix)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return PackageLint{}, err
	}

	report.Duration = time.Since(start)

	return report, nil
}

func (r *Runner) auditPackage(ctx context.Context, pkg Package, fix bool) (PackageLint, error) {
	m, err := manifest.Read(r.fs, filepath.Join(pkg.Dir, manifest.FileName))
	if err != nil {
		return PackageLint{}, err
	}

	files, err := scan.NewScanner(r.fs, r.opts.Patterns).Scan(pkg.Dir)
	if err != nil {
		return PackageLint{}, err
	}

	start := time.Now()

	usage, err := r.aggregator.Aggregate(ctx, pkg.Dir, files)
	if err != nil {
		return PackageLint{}, fmt.Errorf("aggregate %s: %w", pkg.Rel, err)
	}

	result, err := r.auditor.Audit(ctx, depcheck.Target{Dir: pkg.Dir, Base: pkg.Rel}, m, usage.Imports, fix)
	if err != nil {
		return PackageLint{}, err
	}

	r.opts.Metrics.RecordLint(ctx, pkg.Rel, observability.LintStats{
		Parsed:    usage.Parsed,
		Failed:    len(usage.Failed),
		CacheHits: usage.CacheHits,
		Missing:   len(result.Errors),
		Duration:  time.Since(start),
	})

	r.logger.DebugContext(ctx, "linted package",
		"package", pkg.Rel, "files", len(files), "imports", len(usage.Imports), "errors", len(result.Errors))

	return PackageLint{
		Package:       pkg.Rel,
		Files:         len(files),
		ParseFailures: usage.Failed,
		Errors:        result.Errors,
		Warns:         result.Warns,
	}, nil
}
