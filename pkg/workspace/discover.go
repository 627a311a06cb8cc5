// Package workspace discovers the packages of a monorepo and runs the
// dependency audit and export-map build across all of them.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/Sumatoshi-tech/monokit/pkg/manifest"
)

// SkipBuildMarker excludes a package from the export-map build.
const SkipBuildMarker = ".skip-build"

// DefaultGlobs is used when the root manifest declares no workspaces.
var DefaultGlobs = []string{"packages/*"}

// ErrNoRootManifest is returned when the workspace root has no package.json.
var ErrNoRootManifest = errors.New("workspace root has no package.json")

// Package is one member of the workspace.
type Package struct {
	// Name is the manifest name; it may be empty.
	Name string `json:"name" yaml:"name"`
	// Dir is the package directory.
	Dir string `json:"dir" yaml:"dir"`
	// Rel is Dir relative to the workspace root, slash-separated.
	Rel string `json:"rel" yaml:"rel"`
	// SkipBuild is set when the package carries SkipBuildMarker.
	SkipBuild bool `json:"skip_build" yaml:"skip_build"`
}

// Discover lists the packages matched by the root manifest's workspace
// globs, or by globs when it is non-empty. Only directories holding a
// package.json count. The result is sorted by Rel.
func Discover(fsys afero.Fs, root string, globs ...string) ([]Package, error) {
	rootManifest := filepath.Join(root, manifest.FileName)

	found, err := afero.Exists(fsys, rootManifest)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rootManifest, err)
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoRootManifest, root)
	}

	if len(globs) == 0 {
		m, err := manifest.Read(fsys, rootManifest)
		if err != nil {
			return nil, err
		}

		globs = m.Workspaces()
	}

	if len(globs) == 0 {
		globs = DefaultGlobs
	}

	rootFS := afero.NewIOFS(afero.NewBasePathFs(fsys, root))

	seen := make(map[string]struct{})

	var pkgs []Package

	for _, glob := range globs {
		pattern := strings.TrimPrefix(path.Clean(filepath.ToSlash(glob)), "./")
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("workspace glob %q: %w", glob, doublestar.ErrBadPattern)
		}

		matches, err := doublestar.Glob(rootFS, pattern)
		if err != nil {
			return nil, fmt.Errorf("expand workspace glob %q: %w", glob, err)
		}

		for _, rel := range matches {
			if _, dup := seen[rel]; dup {
				continue
			}

			pkg, ok, err := loadPackage(fsys, root, rel)
			if err != nil {
				return nil, err
			}

			if ok {
				seen[rel] = struct{}{}
				pkgs = append(pkgs, pkg)
			}
		}
	}

	slices.SortFunc(pkgs, func(a, b Package) int { return strings.Compare(a.Rel, b.Rel) })

	return pkgs, nil
}

func loadPackage(fsys afero.Fs, root, rel string) (Package, bool, error) {
	dir := filepath.Join(root, filepath.FromSlash(rel))

	info, err := fsys.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Package{}, false, nil
		}

		return Package{}, false, fmt.Errorf("stat %s: %w", dir, err)
	}

	if !info.IsDir() {
		return Package{}, false, nil
	}

	manifestPath := filepath.Join(dir, manifest.FileName)

	hasManifest, err := afero.Exists(fsys, manifestPath)
	if err != nil {
		return Package{}, false, fmt.Errorf("stat %s: %w", manifestPath, err)
	}

	if !hasManifest {
		return Package{}, false, nil
	}

	skip, err := afero.Exists(fsys, filepath.Join(dir, SkipBuildMarker))
	if err != nil {
		return Package{}, false, fmt.Errorf("stat %s: %w", dir, err)
	}

	pkg := Package{Dir: dir, Rel: rel, SkipBuild: skip}

	// A broken manifest is reported when the package is processed.
	if m, err := manifest.Read(fsys, manifestPath); err == nil {
		pkg.Name = m.Name
	}

	return pkg, true, nil
}
