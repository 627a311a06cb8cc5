// Package scan enumerates and classifies the source files of a package.
package scan

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// Kind classifies a scanned file.
type Kind int

const (
	// Source is a production source file.
	Source Kind = iota
	// Test is a test or fixture file.
	Test
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	if k == Test {
		return "test"
	}

	return "source"
}

// FileRecord is one classified file, relative to the package root.
type FileRecord struct {
	Path string
	Kind Kind
}

// ErrInvalidPattern is returned when a configured glob does not compile.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// Default scan settings.
const (
	DefaultSourceDir = "src"

	scriptExts = "{ts,tsx,js,jsx,mjs,mts,cjs,cts}"
)

// DefaultExclude skips installed third-party trees nested under a source
// directory.
var DefaultExclude = []string{"**/node_modules/**", "**/bower_components/**"}

// Patterns configure which files a Scanner picks up. Globs are matched
// against paths relative to SourceDir.
type Patterns struct {
	SourceDir string
	Source    []string
	Test      []string
	// Exclude prunes directories and files before Source is consulted.
	Exclude []string
}

// DefaultPatterns returns the conventional layout: everything script-like
// under src, with __tests__ directories and *.spec / *.test files as tests.
func DefaultPatterns() Patterns {
	return Patterns{
		SourceDir: DefaultSourceDir,
		Source:    []string{"**/*.{ts,tsx,js,jsx,mjs,mts,cts}"},
		Exclude:   slices.Clone(DefaultExclude),
		Test: []string{
			"**/__tests__/**/*." + scriptExts,
			"**/*.{spec,test}." + scriptExts,
			"**/{spec,test}." + scriptExts,
		},
	}
}

// Validate checks that every glob is well formed.
func (p Patterns) Validate() error {
	for _, pattern := range slices.Concat(p.Source, p.Test, p.Exclude) {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
		}
	}

	return nil
}

// Scanner walks a package's source directory.
type Scanner struct {
	fs       afero.Fs
	patterns Patterns
}

// NewScanner creates a scanner over fsys.
func NewScanner(fsys afero.Fs, patterns Patterns) *Scanner {
	if patterns.SourceDir == "" {
		patterns.SourceDir = DefaultSourceDir
	}

	return &Scanner{fs: fsys, patterns: patterns}
}

// Scan returns the classified files under <root>/<SourceDir>, sorted by
// path. Paths are slash-separated and relative to root. A package without
// a source directory yields no files.
func (s *Scanner) Scan(root string) ([]FileRecord, error) {
	srcDir := filepath.Join(root, filepath.FromSlash(s.patterns.SourceDir))

	exists, err := afero.DirExists(s.fs, srcDir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", srcDir, err)
	}

	if !exists {
		return nil, nil
	}

	var records []FileRecord

	walkErr := afero.Walk(s.fs, srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(srcDir, p)
		if relErr != nil {
			return fmt.Errorf("relative path %s: %w", p, relErr)
		}

		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if rel != "." && matchAny(s.patterns.Exclude, rel+"/") {
				return filepath.SkipDir
			}

			return nil
		}

		if !info.Mode().IsRegular() || matchAny(s.patterns.Exclude, rel) || !matchAny(s.patterns.Source, rel) {
			return nil
		}

		kind := Source
		if matchAny(s.patterns.Test, rel) {
			kind = Test
		}

		records = append(records, FileRecord{
			Path: path.Join(s.patterns.SourceDir, rel),
			Kind: kind,
		})

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan %s: %w", srcDir, walkErr)
	}

	slices.SortFunc(records, func(a, b FileRecord) int {
		return strings.Compare(a.Path, b.Path)
	})

	return records, nil
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if doublestar.MatchUnvalidated(pattern, name) {
			return true
		}
	}

	return false
}
