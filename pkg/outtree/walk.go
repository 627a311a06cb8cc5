package outtree

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// Decision is the walker's verdict on one file.
type Decision int

const (
	// Delete marks a stray artifact that was removed from disk.
	Delete Decision = iota
	// Paired marks a primary-format file with an alternate-format counterpart.
	Paired
	// Singular marks any other shipped file.
	Singular
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Delete:
		return "delete"
	case Paired:
		return "paired"
	case Singular:
		return "singular"
	}

	return fmt.Sprintf("decision(%d)", int(d))
}

// Entry is one classified file.
type Entry struct {
	// Path is slash-separated and relative to the tree that was walked.
	Path string
	// Ref is the "./"-prefixed reference relative to the layout root.
	Ref      string
	Decision Decision
	// Alternate references the alternate-format counterpart of a Paired entry.
	Alternate string
	// Types references the declaration file of a primary-format entry, when
	// one exists beside it.
	Types string
}

// Result is the outcome of a walk.
type Result struct {
	// Entries are the shipped files in walk order.
	Entries []Entry
	// Deleted are the files removed from disk, in walk order.
	Deleted []Entry
}

// Default walker settings.
var (
	DefaultExclude  = []string{"README.md", "LICENSE"}
	DefaultReserved = []string{"test", "__tests__"}

	artifactMarkers = []string{".spec.", ".test.", ".manual."}
)

// Walker classifies the output of one package.
type Walker struct {
	fs       afero.Fs
	layout   Layout
	exclude  []string
	reserved []string
	dryRun   bool
}

// WalkerOption configures a Walker.
type WalkerOption func(*Walker)

// WithExclude replaces the names that are dropped without classification.
func WithExclude(names []string) WalkerOption {
	return func(w *Walker) { w.exclude = slices.Clone(names) }
}

// WithReserved replaces the directory names whose contents are deleted.
func WithReserved(segments []string) WalkerOption {
	return func(w *Walker) { w.reserved = slices.Clone(segments) }
}

// WithDryRun reports deletions without removing any file.
func WithDryRun(enabled bool) WalkerOption {
	return func(w *Walker) { w.dryRun = enabled }
}

// NewWalker creates a walker for layout.
func NewWalker(fsys afero.Fs, layout Layout, opts ...WalkerOption) *Walker {
	w := &Walker{
		fs:       fsys,
		layout:   layout,
		exclude:  DefaultExclude,
		reserved: DefaultReserved,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Walk classifies every regular file of the primary tree in name order,
// deleting stray artifacts as it goes. When the alternate format lives in
// its own tree, that tree is walked afterwards for deletions only.
func (w *Walker) Walk() (Result, error) {
	var res Result

	err := w.walkPrimary("", &res)
	if err != nil {
		return Result{}, err
	}

	if w.layout.SeparateTrees() {
		err = w.walkAlternate("", &res)
		if err != nil {
			return Result{}, err
		}
	}

	return res, nil
}

func (w *Walker) walkPrimary(rel string, res *Result) error {
	infos, err := afero.ReadDir(w.fs, w.layout.primaryPath(rel))
	if err != nil {
		return fmt.Errorf("read dir %s: %w", w.layout.primaryPath(rel), err)
	}

	for _, info := range infos {
		name := info.Name()
		child := path.Join(rel, name)

		if info.IsDir() {
			if w.isAlternateRoot(child) {
				continue
			}

			if err := w.walkPrimary(child, res); err != nil {
				return err
			}

			continue
		}

		if !info.Mode().IsRegular() || slices.Contains(w.exclude, name) {
			continue
		}

		deleteIt, err := w.shouldDelete(child)
		if err != nil {
			return err
		}

		if deleteIt {
			if err := w.remove(child, res); err != nil {
				return err
			}

			continue
		}

		entry, keep, err := w.classify(child)
		if err != nil {
			return err
		}

		if keep {
			res.Entries = append(res.Entries, entry)
		}
	}

	return nil
}

func (w *Walker) walkAlternate(rel string, res *Result) error {
	dir := w.layout.alternatePath(rel)

	infos, err := afero.ReadDir(w.fs, dir)
	if errors.Is(err, fs.ErrNotExist) && rel == "" {
		return nil
	}

	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, info := range infos {
		child := path.Join(rel, info.Name())

		if info.IsDir() {
			if err := w.walkAlternate(child, res); err != nil {
				return err
			}

			continue
		}

		if !info.Mode().IsRegular() || slices.Contains(w.exclude, info.Name()) {
			continue
		}

		if !w.strayName(info.Name()) && !w.reservedPath(child) {
			continue
		}

		if err := w.removeFile(w.layout.alternatePath(child)); err != nil {
			return err
		}

		res.Deleted = append(res.Deleted, Entry{Path: child, Ref: w.layout.alternateRef(child), Decision: Delete})
	}

	return nil
}

// shouldDelete applies the deletion rules to a primary-tree file.
func (w *Walker) shouldDelete(rel string) (bool, error) {
	name := path.Base(rel)

	if w.strayName(name) || w.reservedPath(rel) {
		return true, nil
	}

	decl := w.layout.DeclExt
	if decl == "" || !strings.HasSuffix(name, decl) {
		return false, nil
	}

	hasPrimary, err := w.exists(w.layout.primaryPath(swapExt(rel, decl, w.layout.PrimaryExt)))
	if err != nil {
		return false, err
	}

	return !hasPrimary, nil
}

// strayName matches test, spec and manual-check artifacts plus compiled
// declaration stubs.
func (w *Walker) strayName(name string) bool {
	for _, marker := range artifactMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}

	return strings.HasSuffix(name, ".d"+w.layout.PrimaryExt) || strings.HasSuffix(name, ".d"+w.layout.AlternateExt)
}

// isAlternateRoot reports whether a primary-tree directory is the separate
// alternate tree, which is walked on its own.
func (w *Walker) isAlternateRoot(rel string) bool {
	if !w.layout.SeparateTrees() {
		return false
	}

	return path.Join(w.layout.PrimaryDir, rel) == path.Clean(w.layout.AlternateDir)
}

func (w *Walker) reservedPath(rel string) bool {
	segments := strings.Split(rel, "/")

	for _, segment := range segments[:len(segments)-1] {
		if slices.Contains(w.reserved, segment) {
			return true
		}
	}

	return false
}

// classify decides between Paired and Singular. Alternate-format files with
// a primary sibling in the same tree are folded into that sibling and not
// kept.
func (w *Walker) classify(rel string) (Entry, bool, error) {
	layout := w.layout
	entry := Entry{Path: rel, Ref: layout.primaryRef(rel), Decision: Singular}

	if !layout.SeparateTrees() && strings.HasSuffix(rel, layout.AlternateExt) {
		folded, err := w.exists(layout.primaryPath(swapExt(rel, layout.AlternateExt, layout.PrimaryExt)))
		if err != nil || folded {
			return Entry{}, false, err
		}

		return entry, true, nil
	}

	if !strings.HasSuffix(rel, layout.PrimaryExt) {
		return entry, true, nil
	}

	altRel := swapExt(rel, layout.PrimaryExt, layout.AlternateExt)

	paired, err := w.exists(layout.alternatePath(altRel))
	if err != nil {
		return Entry{}, false, err
	}

	if paired {
		entry.Decision = Paired
		entry.Alternate = layout.alternateRef(altRel)
	}

	if layout.DeclExt != "" {
		declRel := swapExt(rel, layout.PrimaryExt, layout.DeclExt)

		hasDecl, err := w.exists(layout.primaryPath(declRel))
		if err != nil {
			return Entry{}, false, err
		}

		if hasDecl {
			entry.Types = layout.primaryRef(declRel)
		}
	}

	return entry, true, nil
}

// remove deletes a primary-tree file and, for separate trees, its
// alternate-format counterpart.
func (w *Walker) remove(rel string, res *Result) error {
	if err := w.removeFile(w.layout.primaryPath(rel)); err != nil {
		return err
	}

	res.Deleted = append(res.Deleted, Entry{Path: rel, Ref: w.layout.primaryRef(rel), Decision: Delete})

	if !w.layout.SeparateTrees() || !strings.HasSuffix(rel, w.layout.PrimaryExt) {
		return nil
	}

	altRel := swapExt(rel, w.layout.PrimaryExt, w.layout.AlternateExt)
	altPath := w.layout.alternatePath(altRel)

	found, err := w.exists(altPath)
	if err != nil || !found {
		return err
	}

	if err := w.removeFile(altPath); err != nil {
		return err
	}

	res.Deleted = append(res.Deleted, Entry{Path: altRel, Ref: w.layout.alternateRef(altRel), Decision: Delete})

	return nil
}

func (w *Walker) removeFile(p string) error {
	if w.dryRun {
		return nil
	}

	if err := w.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", p, err)
	}

	return nil
}

func (w *Walker) exists(p string) (bool, error) {
	ok, err := afero.Exists(w.fs, p)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", filepath.ToSlash(p), err)
	}

	return ok, nil
}
