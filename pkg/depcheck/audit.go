package depcheck

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/Sumatoshi-tech/monokit/pkg/importparse"
	"github.com/Sumatoshi-tech/monokit/pkg/manifest"
)

// DefaultIgnore lists packages that are never reported: host runtime
// built-ins and framework-provided globals.
var DefaultIgnore = []string{
	"crypto",
	"fs",
	"path",
	"process",
	"readline",
	"util",
	"@jest/globals",
	"react",
	"react-dom",
	"react-native",
}

// Result is the outcome of auditing one package.
type Result struct {
	Errors []string `json:"errors" yaml:"errors"`
	Warns  []string `json:"warns"  yaml:"warns"`
}

// Merge appends other's messages to r.
func (r *Result) Merge(other Result) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warns = append(r.Warns, other.Warns...)
}

// Target identifies the package being audited.
type Target struct {
	// Dir is the package directory on disk; fix commands run there.
	Dir string
	// Base is the package directory relative to the workspace root. It
	// prefixes file paths in messages.
	Base string
}

// Fixer declares a missing runtime dependency.
type Fixer interface {
	Add(ctx context.Context, dir, name string) error
}

// Auditor reconciles aggregated imports against a manifest.
type Auditor struct {
	ignore     manifest.NameSet
	fixer      Fixer
	warnUnused bool
}

// AuditorOption configures an Auditor.
type AuditorOption func(*Auditor)

// WithIgnore replaces the ignore list.
func WithIgnore(names []string) AuditorOption {
	return func(a *Auditor) { a.ignore = manifest.NewNameSet(names...) }
}

// WithFixer sets the action used in fix mode.
func WithFixer(fixer Fixer) AuditorOption {
	return func(a *Auditor) { a.fixer = fixer }
}

// WithWarnUnused reports declared dependencies that nothing imports.
func WithWarnUnused(enabled bool) AuditorOption {
	return func(a *Auditor) { a.warnUnused = enabled }
}

// NewAuditor creates an auditor with DefaultIgnore unless overridden.
func NewAuditor(opts ...AuditorOption) *Auditor {
	a := &Auditor{ignore: manifest.NewNameSet(DefaultIgnore...)}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Audit reports every value import that the manifest does not declare in
// dependencies or peerDependencies. In fix mode the Fixer is invoked once
// per missing package instead and only its failures are reported.
// Type-only imports are never reported.
func (a *Auditor) Audit(
	ctx context.Context, target Target, m manifest.Manifest, imports []AggregatedImport, fix bool,
) (Result, error) {
	var result Result

	for _, imp := range imports {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("audit %s: %w", target.Base, err)
		}

		if !a.missing(m, imp) {
			continue
		}

		if !fix {
			result.Errors = append(result.Errors, missingMessage(target.Base, imp))

			continue
		}

		if a.fixer == nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("The package %q is missing from package.json and no fix command is configured.", imp.Name))

			continue
		}

		if err := a.fixer.Add(ctx, target.Dir, imp.Name); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Could not add the package %q to %s: %v", imp.Name, manifestPath(target.Base), err))
		}
	}

	if a.warnUnused {
		result.Warns = append(result.Warns, unusedWarnings(target.Base, m, imports)...)
	}

	return result, nil
}

func (a *Auditor) missing(m manifest.Manifest, imp AggregatedImport) bool {
	switch imp.Kind {
	case importparse.TypeImport:
		return false
	case importparse.ValueImport:
	}

	switch {
	case m.Dependencies.Has(imp.Name),
		m.PeerDependencies.Has(imp.Name),
		a.ignore.Has(imp.Name),
		m.Name != "" && m.Name == imp.Name:
		return false
	}

	return len(imp.Files) > 0
}

func missingMessage(base string, imp AggregatedImport) string {
	quoted := make([]string, len(imp.Files))

	for i, file := range imp.Files {
		quoted[i] = fmt.Sprintf("%q", path.Join(base, file))
	}

	return fmt.Sprintf("The package %q is used in the files %s but it is missing from the dependencies in package.json.",
		imp.Name, strings.Join(quoted, ", "))
}

func unusedWarnings(base string, m manifest.Manifest, imports []AggregatedImport) []string {
	used := make(manifest.NameSet, len(imports))
	for _, imp := range imports {
		used[imp.Name] = struct{}{}
	}

	var warns []string

	for _, name := range m.Dependencies.Sorted() {
		if used.Has(name) {
			continue
		}

		warns = append(warns, fmt.Sprintf("The package %q is declared in the dependencies of %s but no file imports it.",
			name, manifestPath(base)))
	}

	return warns
}

func manifestPath(base string) string {
	return path.Join(base, manifest.FileName)
}
