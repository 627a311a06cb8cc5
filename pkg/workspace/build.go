package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/monokit/pkg/exportmap"
	"github.com/Sumatoshi-tech/monokit/pkg/manifest"
	"github.com/Sumatoshi-tech/monokit/pkg/observability"
	"github.com/Sumatoshi-tech/monokit/pkg/outtree"
)

// CleanTargets are removed from the root and from every package by Clean.
var CleanTargets = []string{"build", "build-docs", "tsconfig.tsbuildinfo"}

// ErrNoBuildOutput is returned for a package whose build directory is missing.
var ErrNoBuildOutput = errors.New("no build output")

// PackageBuild is the export-map outcome of one package.
type PackageBuild struct {
	Package    string        `json:"package"              yaml:"package"`
	Skipped    bool          `json:"skipped,omitempty"    yaml:"skipped,omitempty"`
	Exports    []string      `json:"exports"              yaml:"exports"`
	Deleted    []string      `json:"deleted"              yaml:"deleted"`
	Violations []string      `json:"violations,omitempty" yaml:"violations,omitempty"`
	Diff       string        `json:"diff,omitempty"       yaml:"diff,omitempty"`
	Duration   time.Duration `json:"duration"             yaml:"duration"`
}

// BuildSummary aggregates the export-map build of every package.
type BuildSummary struct {
	Packages []PackageBuild `json:"packages"           yaml:"packages"`
	Failures []Failure      `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// BuildExports walks each package's build output, deletes stray artifacts,
// and rewrites the built manifest's export map. In dry-run mode nothing is
// deleted or written; each report carries a diff of the manifest instead.
// Packages marked with SkipBuildMarker are reported as skipped.
func (r *Runner) BuildExports(ctx context.Context, dryRun bool) (BuildSummary, error) {
	ctx, span := r.tracer.Start(ctx, "monokit.build",
		trace.WithAttributes(attribute.Int("packages", len(r.pkgs)), attribute.Bool("dry_run", dryRun)))
	defer span.End()

	var summary BuildSummary

	for _, pkg := range r.pkgs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if pkg.SkipBuild {
			r.logger.InfoContext(ctx, "skipping package", "package", pkg.Rel, "marker", SkipBuildMarker)
			summary.Packages = append(summary.Packages, PackageBuild{Package: pkg.Rel, Skipped: true})

			continue
		}

		report, err := r.buildPackage(ctx, pkg, dryRun)
		if err != nil {
			r.logger.ErrorContext(ctx, "could not build exports", "package", pkg.Rel, "error", err)
			summary.Failures = append(summary.Failures, Failure{Package: pkg.Rel, Error: err.Error()})

			continue
		}

		summary.Packages = append(summary.Packages, report)
	}

	return summary, nil
}

// Layout returns the output layout of pkg.
func (r *Runner) Layout(pkg Package) outtree.Layout {
	layout := outtree.DefaultLayout(filepath.Join(pkg.Dir, r.opts.BuildDir), r.opts.ModuleType)
	layout.PrimaryDir = r.opts.PrimaryDir
	layout.AlternateDir = r.opts.AlternateDir

	return layout
}

func (r *Runner) buildPackage(ctx context.Context, pkg Package, dryRun bool) (PackageBuild, error) {
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "monokit.build.package", trace.WithAttributes(attribute.String("package", pkg.Rel)))
	defer span.End()

	report, err := r.exportPackage(ctx, pkg, dryRun)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return PackageBuild{}, err
	}

	report.Duration = time.Since(start)

	r.opts.Metrics.RecordBuild(ctx, pkg.Rel, observability.BuildStats{
		Deleted:  len(report.Deleted),
		Exports:  len(report.Exports),
		Duration: report.Duration,
	})

	return report, nil
}

func (r *Runner) exportPackage(ctx context.Context, pkg Package, dryRun bool) (PackageBuild, error) {
	layout := r.Layout(pkg)

	found, err := afero.DirExists(r.fs, layout.Root)
	if err != nil {
		return PackageBuild{}, fmt.Errorf("stat %s: %w", layout.Root, err)
	}

	if !found {
		return PackageBuild{}, fmt.Errorf("%w: %s", ErrNoBuildOutput, layout.Root)
	}

	original, target, err := r.builtManifest(pkg, layout)
	if err != nil {
		return PackageBuild{}, err
	}

	walkOpts := []outtree.WalkerOption{outtree.WithDryRun(dryRun)}

	if r.opts.Exclude != nil {
		walkOpts = append(walkOpts, outtree.WithExclude(r.opts.Exclude))
	}

	if r.opts.Reserved != nil {
		walkOpts = append(walkOpts, outtree.WithReserved(r.opts.Reserved))
	}

	walked, err := outtree.NewWalker(r.fs, layout, walkOpts...).Walk()
	if err != nil {
		return PackageBuild{}, err
	}

	updated, exports := exportmap.NewBuilder(layout, r.logger).Build(original, walked.Entries)

	report := PackageBuild{
		Package: pkg.Rel,
		Exports: exports.Keys(),
		Deleted: make([]string, 0, len(walked.Deleted)),
	}

	for _, gone := range walked.Deleted {
		report.Deleted = append(report.Deleted, gone.Ref)
	}

	violations, err := exportmap.Validate(exports)
	if err != nil {
		return PackageBuild{}, err
	}

	for _, v := range violations {
		r.logger.WarnContext(ctx, "export map violates schema", "package", pkg.Rel, "field", v.Field, "reason", v.Description)
		report.Violations = append(report.Violations, v.String())
	}

	if dryRun {
		report.Diff = UnifiedDiff(filepath.ToSlash(filepath.Join(pkg.Rel, r.opts.BuildDir, manifest.FileName)),
			string(original.Marshal()), string(updated.Marshal()))

		return report, nil
	}

	if err := manifest.Write(r.fs, target, updated); err != nil {
		return PackageBuild{}, err
	}

	r.logger.DebugContext(ctx, "wrote exports", "package", pkg.Rel, "exports", len(exports), "deleted", len(walked.Deleted))

	return report, nil
}

// builtManifest loads the manifest inside the build directory. A build that
// did not copy its manifest starts from the package's own.
func (r *Runner) builtManifest(pkg Package, layout outtree.Layout) (manifest.Manifest, string, error) {
	target := filepath.Join(layout.Root, manifest.FileName)

	m, err := manifest.Read(r.fs, target)
	if err == nil {
		return m, target, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return manifest.Manifest{}, "", err
	}

	m, err = manifest.Read(r.fs, filepath.Join(pkg.Dir, manifest.FileName))
	if err != nil {
		return manifest.Manifest{}, "", err
	}

	return m, target, nil
}

// Clean removes build outputs from root and from every package and returns
// the removed paths.
func (r *Runner) Clean(root string) ([]string, error) {
	dirs := make([]string, 0, len(r.pkgs)+1)
	dirs = append(dirs, root)

	for _, pkg := range r.pkgs {
		dirs = append(dirs, pkg.Dir)
	}

	var removed []string

	for _, dir := range dirs {
		for _, name := range CleanTargets {
			target := filepath.Join(dir, name)

			found, err := afero.Exists(r.fs, target)
			if err != nil {
				return removed, fmt.Errorf("stat %s: %w", target, err)
			}

			if !found {
				continue
			}

			if err := r.fs.RemoveAll(target); err != nil {
				return removed, fmt.Errorf("remove %s: %w", target, err)
			}

			removed = append(removed, target)
		}
	}

	return removed, nil
}

// UnifiedDiff renders a line diff of before and after with "-", "+" and " "
// prefixes under a "--- name / +++ name" header. Equal input yields "".
func UnifiedDiff(name, before, after string) string {
	if before == after {
		return ""
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder

	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", name, name)

	for _, d := range diffs {
		prefix := " "

		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffEqual:
		}

		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}

			sb.WriteString(prefix)
			sb.WriteString(line)

			if !strings.HasSuffix(line, "\n") {
				sb.WriteByte('\n')
			}
		}
	}

	return sb.String()
}
