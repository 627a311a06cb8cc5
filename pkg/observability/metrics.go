package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricFilesParsed     = "monokit.files.parsed"
	metricParseFailures   = "monokit.parse.failures"
	metricCacheHits       = "monokit.parse.cache_hits"
	metricMissingDeps     = "monokit.dependencies.missing"
	metricArtifactsDelete = "monokit.artifacts.deleted"
	metricExportsWritten  = "monokit.exports.written"
	metricPackageDuration = "monokit.package.duration.seconds"

	attrPackage = "package"
	attrStage   = "stage"

	// StageLint labels dependency audits.
	StageLint = "lint"
	// StageBuild labels export map builds.
	StageBuild = "build"
)

// durationBuckets spans small packages (tens of ms) to large ones (a minute).
var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// LintStats is what one package audit contributes to the metrics.
type LintStats struct {
	Parsed    int
	Failed    int
	CacheHits int
	Missing   int
	Duration  time.Duration
}

// BuildStats is what one export build contributes to the metrics.
type BuildStats struct {
	Deleted  int
	Exports  int
	Duration time.Duration
}

// PipelineMetrics holds the instruments shared by the lint and build
// pipelines. A nil *PipelineMetrics records nothing.
type PipelineMetrics struct {
	filesParsed   metric.Int64Counter
	parseFailures metric.Int64Counter
	cacheHits     metric.Int64Counter
	missing       metric.Int64Counter
	deleted       metric.Int64Counter
	exports       metric.Int64Counter
	duration      metric.Float64Histogram
}

// NewPipelineMetrics creates the pipeline instruments on mt.
func NewPipelineMetrics(mt metric.Meter) (*PipelineMetrics, error) {
	var (
		pm  PipelineMetrics
		err error
	)

	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
		unit   string
	}{
		{&pm.filesParsed, metricFilesParsed, "Source files parsed for imports", "{file}"},
		{&pm.parseFailures, metricParseFailures, "Source files that could not be parsed", "{file}"},
		{&pm.cacheHits, metricCacheHits, "Source files served from the parse cache", "{file}"},
		{&pm.missing, metricMissingDeps, "Imports missing from package manifests", "{package}"},
		{&pm.deleted, metricArtifactsDelete, "Stray build artifacts deleted", "{file}"},
		{&pm.exports, metricExportsWritten, "Export map entries written", "{entry}"},
	}

	for _, c := range counters {
		*c.target, err = mt.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
	}

	pm.duration, err = mt.Float64Histogram(metricPackageDuration,
		metric.WithDescription("Time spent on one package"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricPackageDuration, err)
	}

	return &pm, nil
}

// RecordLint records one package audit.
func (pm *PipelineMetrics) RecordLint(ctx context.Context, pkg string, stats LintStats) {
	if pm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrPackage, pkg))

	pm.filesParsed.Add(ctx, int64(stats.Parsed), attrs)
	pm.parseFailures.Add(ctx, int64(stats.Failed), attrs)
	pm.cacheHits.Add(ctx, int64(stats.CacheHits), attrs)
	pm.missing.Add(ctx, int64(stats.Missing), attrs)
	pm.duration.Record(ctx, stats.Duration.Seconds(), metric.WithAttributes(
		attribute.String(attrPackage, pkg),
		attribute.String(attrStage, StageLint),
	))
}

// RecordBuild records one export build.
func (pm *PipelineMetrics) RecordBuild(ctx context.Context, pkg string, stats BuildStats) {
	if pm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrPackage, pkg))

	pm.deleted.Add(ctx, int64(stats.Deleted), attrs)
	pm.exports.Add(ctx, int64(stats.Exports), attrs)
	pm.duration.Record(ctx, stats.Duration.Seconds(), metric.WithAttributes(
		attribute.String(attrPackage, pkg),
		attribute.String(attrStage, StageBuild),
	))
}
