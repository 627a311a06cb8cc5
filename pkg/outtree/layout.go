// Package outtree classifies the artifacts of a compiled dual-format output
// tree and prunes the ones that must not ship.
package outtree

import (
	"path"
	"path/filepath"
	"strings"
)

// Module types a package can declare.
const (
	ModuleTypeCommonJS = "commonjs"
	ModuleTypeModule   = "module"
)

// Conventional extensions.
const (
	ExtJS   = ".js"
	ExtMJS  = ".mjs"
	ExtCJS  = ".cjs"
	ExtDecl = ".d.ts"
)

// Export conditions naming the alternate format.
const (
	ConditionImport  = "import"
	ConditionRequire = "require"
)

// Layout describes where each format of a package's build output lives.
type Layout struct {
	// Root is the build directory holding the built package.json.
	Root string
	// PrimaryDir and AlternateDir are slash paths relative to Root. Empty
	// means Root itself.
	PrimaryDir   string
	AlternateDir string
	// PrimaryExt is the extension of the default format.
	PrimaryExt string
	// AlternateExt is the extension of the other format.
	AlternateExt string
	// DeclExt is the extension of type declarations.
	DeclExt string
	// ModuleType is the package type the primary format implies.
	ModuleType string
}

// DefaultLayout returns the single-directory layout for moduleType. A
// commonjs package ships .js with .mjs beside it; a module package ships
// .js with .cjs beside it.
func DefaultLayout(root, moduleType string) Layout {
	layout := Layout{
		Root:         root,
		PrimaryExt:   ExtJS,
		AlternateExt: ExtMJS,
		DeclExt:      ExtDecl,
		ModuleType:   ModuleTypeCommonJS,
	}

	if moduleType == ModuleTypeModule {
		layout.AlternateExt = ExtCJS
		layout.ModuleType = ModuleTypeModule
	}

	return layout
}

// AlternateCondition is the export condition keyed to the alternate format.
func (l Layout) AlternateCondition() string {
	if l.ModuleType == ModuleTypeModule {
		return ConditionRequire
	}

	return ConditionImport
}

// SeparateTrees reports whether the two formats live in different directories.
func (l Layout) SeparateTrees() bool {
	return path.Clean("/"+l.PrimaryDir) != path.Clean("/"+l.AlternateDir)
}

func (l Layout) primaryPath(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(l.PrimaryDir), filepath.FromSlash(rel))
}

func (l Layout) alternatePath(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(l.AlternateDir), filepath.FromSlash(rel))
}

// primaryRef renders a primary-tree path as a "./"-prefixed reference
// relative to Root.
func (l Layout) primaryRef(rel string) string {
	return Ref(path.Join(l.PrimaryDir, rel))
}

func (l Layout) alternateRef(rel string) string {
	return Ref(path.Join(l.AlternateDir, rel))
}

// Ref normalizes a package-relative path to the "./x" form used by export
// maps. Duplicate slashes are collapsed.
func Ref(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}

	clean := path.Clean("/" + strings.TrimPrefix(p, "./"))

	return "." + clean
}

// swapExt replaces the trailing extension from with to.
func swapExt(name, from, to string) string {
	return strings.TrimSuffix(name, from) + to
}
