// Package depcheck detects drift between the packages a workspace package
// imports and the dependencies its manifest declares.
package depcheck

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/monokit/pkg/importparse"
	"github.com/Sumatoshi-tech/monokit/pkg/scan"
)

// DefaultConcurrency bounds simultaneous file reads.
const DefaultConcurrency = 50

// Parser extracts import records from one file.
type Parser interface {
	Extract(path string, content []byte) ([]importparse.Record, error)
}

// AggregatedImport is the merged usage of one external package.
type AggregatedImport struct {
	Name  string           `json:"name"  yaml:"name"`
	Files []string         `json:"files" yaml:"files"`
	Kind  importparse.Kind `json:"kind"  yaml:"kind"`
}

// Usage is the outcome of aggregating a package's files.
type Usage struct {
	Imports []AggregatedImport
	// Parsed counts files that contributed records (cache hits included).
	Parsed int
	// Failed lists files that could not be parsed and were skipped.
	Failed []string
	// CacheHits counts files served from the parse cache.
	CacheHits int
}

// Accumulator merges import records into one AggregatedImport per package.
// The merge is commutative and idempotent: the result does not depend on
// the order records are added, and re-adding a record changes nothing.
type Accumulator struct {
	entries map[string]*accEntry
}

type accEntry struct {
	files map[string]struct{}
	kind  importparse.Kind
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{entries: make(map[string]*accEntry)}
}

// Add merges rec. Records originating from test files are coerced to
// TypeImport; an entry widens to ValueImport once any non-test file
// imports the package as a value.
func (acc *Accumulator) Add(rec importparse.Record, fileKind scan.Kind) {
	kind := rec.Kind
	if fileKind == scan.Test {
		kind = importparse.TypeImport
	}

	entry, ok := acc.entries[rec.Package]
	if !ok {
		entry = &accEntry{files: make(map[string]struct{}), kind: importparse.TypeImport}
		acc.entries[rec.Package] = entry
	}

	entry.files[rec.File] = struct{}{}

	switch kind {
	case importparse.ValueImport:
		entry.kind = importparse.ValueImport
	case importparse.TypeImport:
	}
}

// Imports returns the aggregate sorted by package name, files sorted.
func (acc *Accumulator) Imports() []AggregatedImport {
	out := make([]AggregatedImport, 0, len(acc.entries))

	for name, entry := range acc.entries {
		files := make([]string, 0, len(entry.files))
		for file := range entry.files {
			files = append(files, file)
		}

		slices.Sort(files)

		out = append(out, AggregatedImport{Name: name, Files: files, Kind: entry.kind})
	}

	slices.SortFunc(out, func(a, b AggregatedImport) int {
		return strings.Compare(a.Name, b.Name)
	})

	return out
}

// Aggregator reads and parses a package's files with bounded parallelism.
type Aggregator struct {
	fs          afero.Fs
	parser      Parser
	cache       *ParseCache
	logger      *slog.Logger
	concurrency int
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithConcurrency caps simultaneous file reads. Values below one fall back
// to DefaultConcurrency.
func WithConcurrency(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithParseCache reuses parse results for unchanged files.
func WithParseCache(cache *ParseCache) AggregatorOption {
	return func(a *Aggregator) { a.cache = cache }
}

// WithLogger sets the logger used to report parse failures.
func WithLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAggregator creates an aggregator reading files from fsys.
func NewAggregator(fsys afero.Fs, parser Parser, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		fs:          fsys,
		parser:      parser,
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

type fileResult struct {
	records []importparse.Record
	failed  bool
	cached  bool
}

// Aggregate parses files (paths relative to root) and merges their imports.
// A file that fails to parse is logged and contributes nothing; a file that
// cannot be read aborts the aggregation.
func (a *Aggregator) Aggregate(ctx context.Context, root string, files []scan.FileRecord) (Usage, error) {
	results := make([]fileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res, err := a.parseFile(gctx, root, file)
			if err != nil {
				return err
			}

			results[i] = res

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Usage{}, err
	}

	acc := NewAccumulator()
	usage := Usage{}

	for i, res := range results {
		if res.failed {
			usage.Failed = append(usage.Failed, files[i].Path)

			continue
		}

		usage.Parsed++

		if res.cached {
			usage.CacheHits++
		}

		for _, rec := range res.records {
			acc.Add(rec, files[i].Kind)
		}
	}

	usage.Imports = acc.Imports()

	return usage, nil
}

func (a *Aggregator) parseFile(ctx context.Context, root string, file scan.FileRecord) (fileResult, error) {
	full := filepath.Join(root, filepath.FromSlash(file.Path))

	var key cacheKey

	if a.cache != nil {
		info, err := a.fs.Stat(full)
		if err != nil {
			return fileResult{}, fmt.Errorf("stat %s: %w", full, err)
		}

		key = cacheKey{path: full, size: info.Size(), modTime: info.ModTime().UnixNano()}

		if records, ok := a.cache.get(key); ok {
			return fileResult{records: withFile(records, file.Path), cached: true}, nil
		}
	}

	content, err := afero.ReadFile(a.fs, full)
	if err != nil {
		return fileResult{}, fmt.Errorf("read %s: %w", full, err)
	}

	records, err := a.parser.Extract(file.Path, content)
	if err != nil {
		a.logger.ErrorContext(ctx, "could not parse file", "path", file.Path, "error", err)

		return fileResult{failed: true}, nil
	}

	if a.cache != nil {
		a.cache.add(key, records)
	}

	return fileResult{records: records}, nil
}

// withFile rewrites the originating file of cached records, which may have
// been stored under a different package-relative path.
func withFile(records []importparse.Record, file string) []importparse.Record {
	out := make([]importparse.Record, len(records))

	for i, rec := range records {
		rec.File = file
		out[i] = rec
	}

	return out
}
