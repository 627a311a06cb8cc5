package depcheck_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Sumatoshi-tech/monokit/pkg/depcheck"
	"github.com/Sumatoshi-tech/monokit/pkg/importparse"
	"github.com/Sumatoshi-tech/monokit/pkg/scan"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errBroken = errors.New("broken file")

// lineParser treats each line "value:<pkg>" or "type:<pkg>" as an import and
// fails on a line reading "broken".
type lineParser struct {
	calls atomic.Int64
}

func (p *lineParser) Extract(path string, content []byte) ([]importparse.Record, error) {
	p.calls.Add(1)

	var records []importparse.Record

	for line := range strings.SplitSeq(strings.TrimSpace(string(content)), "\n") {
		kind, name, ok := strings.Cut(line, ":")
		if !ok {
			if line == "broken" {
				return nil, errBroken
			}

			continue
		}

		rec := importparse.Record{Package: name, File: path, Kind: importparse.TypeImport}
		if kind == "value" {
			rec.Kind = importparse.ValueImport
		}

		records = append(records, rec)
	}

	return records, nil
}

func memFiles(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()

	fsys := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fsys, "/pkg/"+name, []byte(content), 0o644))
	}

	return fsys
}

func TestAggregate_MergesAndWidens(t *testing.T) {
	t.Parallel()

	fsys := memFiles(t, map[string]string{
		"src/a.ts":      "value:left-pad\ntype:shared",
		"src/b.ts":      "type:left-pad\nvalue:shared",
		"src/a.spec.ts": "value:lodash\nvalue:shared",
	})

	files := []scan.FileRecord{
		{Path: "src/a.ts", Kind: scan.Source},
		{Path: "src/b.ts", Kind: scan.Source},
		{Path: "src/a.spec.ts", Kind: scan.Test},
	}

	usage, err := depcheck.NewAggregator(fsys, &lineParser{}).Aggregate(context.Background(), "/pkg", files)
	require.NoError(t, err)

	assert.Equal(t, []depcheck.AggregatedImport{
		{Name: "left-pad", Files: []string{"src/a.ts", "src/b.ts"}, Kind: importparse.ValueImport},
		{Name: "lodash", Files: []string{"src/a.spec.ts"}, Kind: importparse.TypeImport},
		{Name: "shared", Files: []string{"src/a.spec.ts", "src/a.ts", "src/b.ts"}, Kind: importparse.ValueImport},
	}, usage.Imports)
	assert.Equal(t, 3, usage.Parsed)
	assert.Empty(t, usage.Failed)
}

func TestAggregate_ParseFailureIsSkipped(t *testing.T) {
	t.Parallel()

	fsys := memFiles(t, map[string]string{
		"src/ok.ts":  "value:ok",
		"src/bad.ts": "broken",
	})

	files := []scan.FileRecord{
		{Path: "src/bad.ts", Kind: scan.Source},
		{Path: "src/ok.ts", Kind: scan.Source},
	}

	usage, err := depcheck.NewAggregator(fsys, &lineParser{}).Aggregate(context.Background(), "/pkg", files)
	require.NoError(t, err)

	assert.Equal(t, []string{"src/bad.ts"}, usage.Failed)
	require.Len(t, usage.Imports, 1)
	assert.Equal(t, "ok", usage.Imports[0].Name)
}

func TestAggregate_ReadFailureAborts(t *testing.T) {
	t.Parallel()

	fsys := memFiles(t, map[string]string{"src/ok.ts": "value:ok"})

	files := []scan.FileRecord{
		{Path: "src/ok.ts", Kind: scan.Source},
		{Path: "src/gone.ts", Kind: scan.Source},
	}

	_, err := depcheck.NewAggregator(fsys, &lineParser{}, depcheck.WithConcurrency(1)).
		Aggregate(context.Background(), "/pkg", files)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone.ts")
}

func TestAggregate_ParseCacheSkipsUnchangedFiles(t *testing.T) {
	t.Parallel()

	fsys := memFiles(t, map[string]string{
		"src/a.ts": "value:alpha",
		"src/b.ts": "value:beta",
	})

	files := []scan.FileRecord{
		{Path: "src/a.ts", Kind: scan.Source},
		{Path: "src/b.ts", Kind: scan.Source},
	}

	cache, err := depcheck.NewParseCache(16)
	require.NoError(t, err)

	parser := &lineParser{}
	agg := depcheck.NewAggregator(fsys, parser, depcheck.WithParseCache(cache))

	first, err := agg.Aggregate(context.Background(), "/pkg", files)
	require.NoError(t, err)
	assert.Equal(t, int64(2), parser.calls.Load())
	assert.Equal(t, 2, cache.Len())

	second, err := agg.Aggregate(context.Background(), "/pkg", files)
	require.NoError(t, err)
	assert.Equal(t, int64(2), parser.calls.Load())
	assert.Equal(t, 2, second.CacheHits)
	assert.Equal(t, first.Imports, second.Imports)

	// A rewrite with different content changes the size and invalidates the entry.
	require.NoError(t, afero.WriteFile(fsys, "/pkg/src/a.ts", []byte("value:alpha\nvalue:gamma"), 0o644))

	third, err := agg.Aggregate(context.Background(), "/pkg", files)
	require.NoError(t, err)
	assert.Equal(t, int64(3), parser.calls.Load())
	assert.Len(t, third.Imports, 3)
}

func TestAggregate_ContextCanceled(t *testing.T) {
	t.Parallel()

	fsys := memFiles(t, map[string]string{"src/a.ts": "value:alpha"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := depcheck.NewAggregator(fsys, &lineParser{}).
		Aggregate(ctx, "/pkg", []scan.FileRecord{{Path: "src/a.ts", Kind: scan.Source}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAggregate_WithRealExtractor(t *testing.T) {
	t.Parallel()

	fsys := memFiles(t, map[string]string{
		"src/a.ts":      "import pad from 'left-pad';\nimport type { X } from 'types-only';\n",
		"src/a.spec.ts": "import _ from 'lodash';\n",
	})

	files := []scan.FileRecord{
		{Path: "src/a.spec.ts", Kind: scan.Test},
		{Path: "src/a.ts", Kind: scan.Source},
	}

	usage, err := depcheck.NewAggregator(fsys, importparse.NewExtractor()).
		Aggregate(context.Background(), "/pkg", files)
	require.NoError(t, err)

	assert.Equal(t, []depcheck.AggregatedImport{
		{Name: "left-pad", Files: []string{"src/a.ts"}, Kind: importparse.ValueImport},
		{Name: "lodash", Files: []string{"src/a.spec.ts"}, Kind: importparse.TypeImport},
		{Name: "types-only", Files: []string{"src/a.ts"}, Kind: importparse.TypeImport},
	}, usage.Imports)
}

type kindedRecord struct {
	rec  importparse.Record
	kind scan.Kind
}

func TestAccumulator_OrderIndependentAndIdempotent(t *testing.T) {
	t.Parallel()

	records := []kindedRecord{
		{importparse.Record{Package: "a", File: "src/x.ts", Kind: importparse.TypeImport}, scan.Source},
		{importparse.Record{Package: "a", File: "src/x.spec.ts", Kind: importparse.ValueImport}, scan.Test},
		{importparse.Record{Package: "a", File: "src/y.ts", Kind: importparse.ValueImport}, scan.Source},
		{importparse.Record{Package: "b", File: "src/x.spec.ts", Kind: importparse.ValueImport}, scan.Test},
		{importparse.Record{Package: "b", File: "src/y.ts", Kind: importparse.TypeImport}, scan.Source},
		{importparse.Record{Package: "c", File: "src/z.ts", Kind: importparse.ValueImport}, scan.Source},
	}

	build := func(order []kindedRecord, repeat int) []depcheck.AggregatedImport {
		acc := depcheck.NewAccumulator()

		for range repeat {
			for _, r := range order {
				acc.Add(r.rec, r.kind)
			}
		}

		return acc.Imports()
	}

	want := build(records, 1)

	assert.Equal(t, importparse.ValueImport, want[0].Kind)
	assert.Equal(t, importparse.TypeImport, want[1].Kind)
	assert.Equal(t, importparse.ValueImport, want[2].Kind)

	rng := rand.New(rand.NewPCG(1, 2))

	for range 20 {
		shuffled := append([]kindedRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		assert.Equal(t, want, build(shuffled, 1))
		assert.Equal(t, want, build(shuffled, 3))
	}
}
