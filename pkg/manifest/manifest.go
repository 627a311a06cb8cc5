// Package manifest reads, updates and persists package.json manifests.
//
// A Manifest is an immutable value: Apply returns a new Manifest and leaves
// the receiver untouched, so the in-memory copy never aliases the document
// that is eventually written back to disk.
package manifest

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
)

// FileName is the conventional manifest file name.
const FileName = "package.json"

// Well-known manifest fields.
const (
	FieldName             = "name"
	FieldVersion          = "version"
	FieldMain             = "main"
	FieldModule           = "module"
	FieldBrowser          = "browser"
	FieldReactNative      = "react-native"
	FieldTypes            = "types"
	FieldType             = "type"
	FieldExports          = "exports"
	FieldWorkspaces       = "workspaces"
	FieldDependencies     = "dependencies"
	FieldDevDependencies  = "devDependencies"
	FieldPeerDependencies = "peerDependencies"
)

// ErrInvalidManifest is returned when a manifest is not a JSON object.
var ErrInvalidManifest = errors.New("invalid package manifest")

// NameSet is an order-insignificant set of package names.
type NameSet map[string]struct{}

// NewNameSet builds a set from the given names.
func NewNameSet(names ...string) NameSet {
	set := make(NameSet, len(names))

	for _, name := range names {
		set[name] = struct{}{}
	}

	return set
}

// Has reports whether name is in the set. Safe on a nil set.
func (s NameSet) Has(name string) bool {
	_, ok := s[name]

	return ok
}

// Sorted returns the names in ordinal order.
func (s NameSet) Sorted() []string {
	names := make([]string, 0, len(s))

	for name := range s {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Manifest is a parsed package manifest.
type Manifest struct {
	Name    string
	Version string

	Dependencies     NameSet
	DevDependencies  NameSet
	PeerDependencies NameSet

	raw []byte
}

// Parse decodes a manifest document.
func Parse(data []byte) (Manifest, error) {
	if !gjson.ValidBytes(data) {
		return Manifest{}, fmt.Errorf("%w: malformed JSON", ErrInvalidManifest)
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return Manifest{}, fmt.Errorf("%w: top-level value is not an object", ErrInvalidManifest)
	}

	return Manifest{
		Name:             doc.Get(FieldName).String(),
		Version:          doc.Get(FieldVersion).String(),
		Dependencies:     keysOf(doc.Get(FieldDependencies)),
		DevDependencies:  keysOf(doc.Get(FieldDevDependencies)),
		PeerDependencies: keysOf(doc.Get(FieldPeerDependencies)),
		raw:              slices.Clone(data),
	}, nil
}

// Read loads and parses the manifest at path.
func Read(fsys afero.Fs, path string) (Manifest, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	return m, nil
}

func keysOf(group gjson.Result) NameSet {
	set := NameSet{}

	if !group.IsObject() {
		return set
	}

	group.ForEach(func(key, _ gjson.Result) bool {
		set[key.String()] = struct{}{}

		return true
	})

	return set
}

// Field returns a top-level string field. The second result is false when
// the field is absent, empty or not a string.
func (m Manifest) Field(name string) (string, bool) {
	value := m.lookup(name)
	if value.Type != gjson.String || value.Str == "" {
		return "", false
	}

	return value.Str, true
}

// Main returns the declared primary entry point.
func (m Manifest) Main() (string, bool) { return m.Field(FieldMain) }

// Browser returns the declared browser entry point.
func (m Manifest) Browser() (string, bool) { return m.Field(FieldBrowser) }

// ReactNative returns the declared react-native entry point.
func (m Manifest) ReactNative() (string, bool) { return m.Field(FieldReactNative) }

// Has reports whether a top-level field exists.
func (m Manifest) Has(name string) bool {
	return m.lookup(name).Exists()
}

// RawField returns the raw JSON of a top-level field, or nil when absent.
func (m Manifest) RawField(name string) []byte {
	value := m.lookup(name)
	if !value.Exists() {
		return nil
	}

	return []byte(value.Raw)
}

// Raw returns a copy of the underlying document.
func (m Manifest) Raw() []byte {
	return slices.Clone(m.raw)
}

// lookup finds a top-level key without interpreting gjson path syntax, so
// names containing dots or wildcards are matched literally.
func (m Manifest) lookup(name string) gjson.Result {
	var found gjson.Result

	gjson.ParseBytes(m.raw).ForEach(func(key, value gjson.Result) bool {
		if key.String() == name {
			found = value

			return false
		}

		return true
	})

	return found
}

// Condition is one key of a structured exports entry, kept as raw JSON.
type Condition struct {
	Key string
	Raw []byte
}

// ExportConditions returns the ordered conditions of an existing structured
// exports entry. Plain (string) entries and missing keys yield nil.
func (m Manifest) ExportConditions(key string) []Condition {
	exports := m.lookup(FieldExports)
	if !exports.IsObject() {
		return nil
	}

	var conds []Condition

	exports.ForEach(func(k, v gjson.Result) bool {
		if k.String() != key {
			return true
		}

		if v.IsObject() {
			v.ForEach(func(ck, cv gjson.Result) bool {
				conds = append(conds, Condition{Key: ck.String(), Raw: []byte(cv.Raw)})

				return true
			})
		}

		return false
	})

	return conds
}

// Workspaces returns the workspace globs declared by a root manifest. Both
// the array form and the {"packages": [...]} form are accepted.
func (m Manifest) Workspaces() []string {
	value := m.lookup(FieldWorkspaces)
	if value.IsObject() {
		value = value.Get("packages")
	}

	if !value.IsArray() {
		return nil
	}

	var globs []string

	for _, item := range value.Array() {
		if item.Type == gjson.String && item.Str != "" {
			globs = append(globs, item.Str)
		}
	}

	return globs
}
