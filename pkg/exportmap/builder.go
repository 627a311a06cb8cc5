package exportmap

import (
	"encoding/json"
	"log/slog"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/monokit/pkg/manifest"
	"github.com/Sumatoshi-tech/monokit/pkg/outtree"
)

// Condition keys written by the builder.
const (
	KeyTypes       = "types"
	KeyDefault     = "default"
	KeyBrowser     = "browser"
	KeyNode        = "node"
	KeyReactNative = "react-native"

	rootKey = "."
)

// Builder turns a walk result into an export map and rewrites the manifest.
type Builder struct {
	layout outtree.Layout
	logger *slog.Logger
}

// NewBuilder creates a builder for packages built with layout.
func NewBuilder(layout outtree.Layout, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Builder{layout: layout, logger: logger}
}

// Build returns a new manifest whose "exports" and "type" fields describe
// entries, together with the export map itself. It never fails: a manifest
// that cannot be updated is returned unchanged and the problem is logged.
func (b *Builder) Build(m manifest.Manifest, entries []outtree.Entry) (manifest.Manifest, Map) {
	exports := b.Map(m, entries)

	doc, err := json.Marshal(exports)
	if err != nil {
		b.logger.Error("could not encode exports", "package", m.Name, "error", err)

		return m, exports
	}

	updated, err := m.Apply(
		manifest.SetRaw(manifest.FieldExports, doc),
		manifest.SetString(manifest.FieldType, b.layout.ModuleType),
	)
	if err != nil {
		b.logger.Error("could not update manifest", "package", m.Name, "error", err)

		return m, exports
	}

	return updated, exports
}

// Map computes the sorted, deduplicated export map without touching the
// manifest.
func (b *Builder) Map(m manifest.Manifest, entries []outtree.Entry) Map {
	candidates := make(Map, 0, len(entries)+1)

	for _, entry := range entries {
		candidates = append(candidates, b.candidate(entry))
	}

	if !slices.ContainsFunc(candidates, func(e Entry) bool { return e.Key == rootKey }) {
		if root, ok := b.syntheticRoot(m, entries); ok {
			candidates = append(candidates, root)
		}
	}

	for i, e := range candidates {
		if e.Value.IsStructured() {
			candidates[i].Value = mergeExisting(m.ExportConditions(e.Key), e.Value)
		}
	}

	out := dedup(candidates)

	slices.SortStableFunc(out, func(x, y Entry) int {
		return strings.Compare(x.Key, y.Key)
	})

	return out
}

// candidate maps one walk entry to an export entry.
func (b *Builder) candidate(entry outtree.Entry) Entry {
	ref := entry.Ref
	public := outtree.Ref(entry.Path)

	if !strings.HasSuffix(ref, b.layout.PrimaryExt) {
		return Entry{Key: public, Value: Plain(ref)}
	}

	var conds []Condition

	if entry.Types != "" {
		conds = append(conds, Condition{Key: KeyTypes, Value: Plain(entry.Types)})
	}

	if entry.Decision == outtree.Paired && entry.Alternate != "" {
		conds = append(conds, Condition{Key: b.layout.AlternateCondition(), Value: Plain(entry.Alternate)})
	}

	value := Plain(ref)
	if len(conds) > 0 {
		value = Structured(append(conds, Condition{Key: KeyDefault, Value: Plain(ref)})...)
	}

	return Entry{Key: b.keyFor(public), Value: value}
}

// keyFor derives the public path of a primary-format file from its path
// inside the primary tree: an index file maps to its directory, anything
// else loses its extension.
func (b *Builder) keyFor(ref string) string {
	index := "/index" + b.layout.PrimaryExt

	if strings.HasSuffix(ref, index) {
		dir := strings.TrimSuffix(ref, index)
		if dir == "." || dir == "" {
			return rootKey
		}

		return dir
	}

	return strings.TrimSuffix(ref, b.layout.PrimaryExt)
}

// syntheticRoot assembles the "." entry from the manifest's entry-point
// fields. Absent fields are omitted.
func (b *Builder) syntheticRoot(m manifest.Manifest, entries []outtree.Entry) (Entry, bool) {
	var conds []Condition

	main, hasMain := m.Main()

	if hasMain {
		ref := outtree.Ref(main)
		if strings.HasSuffix(ref, b.layout.PrimaryExt) {
			conds = append(conds, Condition{
				Key:   KeyTypes,
				Value: Plain(strings.TrimSuffix(ref, b.layout.PrimaryExt) + b.layout.DeclExt),
			})
		}
	}

	if browser, ok := m.Browser(); ok {
		conds = append(conds, Condition{Key: KeyBrowser, Value: b.envValue(browser, entries)})
	}

	if hasMain {
		conds = append(conds, Condition{Key: KeyNode, Value: b.envValue(main, entries)})
	}

	if native, ok := m.ReactNative(); ok {
		conds = append(conds, Condition{Key: KeyReactNative, Value: b.envValue(native, entries)})
	}

	if len(conds) == 0 {
		b.logger.Warn("no root export could be derived", "package", m.Name)

		return Entry{}, false
	}

	return Entry{Key: rootKey, Value: Structured(conds...)}, true
}

// envValue resolves an entry-point field. A file that has an alternate-format
// counterpart becomes a structured value without declarations.
func (b *Builder) envValue(field string, entries []outtree.Entry) Value {
	ref := outtree.Ref(field)

	idx := slices.IndexFunc(entries, func(e outtree.Entry) bool { return e.Ref == ref })
	if idx < 0 || entries[idx].Decision != outtree.Paired || entries[idx].Alternate == "" {
		return Plain(ref)
	}

	return Structured(
		Condition{Key: b.layout.AlternateCondition(), Value: Plain(entries[idx].Alternate)},
		Condition{Key: KeyDefault, Value: Plain(ref)},
	)
}

// dedup drops plain entries whose file is referenced inside a structured
// entry, then resolves key collisions in favour of structured entries.
func dedup(candidates Map) Map {
	referenced := make(map[string]struct{})

	for _, e := range candidates {
		if !e.Value.IsStructured() {
			continue
		}

		for _, leaf := range e.Value.Leaves() {
			referenced[leaf] = struct{}{}
		}
	}

	out := make(Map, 0, len(candidates))
	byKey := make(map[string]int, len(candidates))

	for _, e := range candidates {
		if !e.Value.IsStructured() {
			if _, ok := referenced[e.Value.Ref]; ok {
				continue
			}
		}

		prev, seen := byKey[e.Key]
		if !seen {
			byKey[e.Key] = len(out)
			out = append(out, e)

			continue
		}

		if !out[prev].Value.IsStructured() && e.Value.IsStructured() {
			out[prev] = e
		}
	}

	return out
}

// mergeExisting lays fresh conditions over the ones already in the manifest:
// existing keys keep their position, fresh keys are appended, and "types"
// always comes first.
func mergeExisting(existing []manifest.Condition, fresh Value) Value {
	merged := make([]Condition, 0, len(existing)+len(fresh.Conditions))

	for _, cond := range existing {
		if v, ok := fresh.Lookup(cond.Key); ok {
			merged = append(merged, Condition{Key: cond.Key, Value: v})

			continue
		}

		merged = append(merged, Condition{Key: cond.Key, Value: Value{Raw: json.RawMessage(cond.Raw)}})
	}

	for _, cond := range fresh.Conditions {
		if !slices.ContainsFunc(existing, func(c manifest.Condition) bool { return c.Key == cond.Key }) {
			merged = append(merged, cond)
		}
	}

	if idx := slices.IndexFunc(merged, func(c Condition) bool { return c.Key == KeyTypes }); idx > 0 {
		types := merged[idx]
		merged = slices.Delete(merged, idx, idx+1)
		merged = slices.Insert(merged, 0, types)
	}

	return Structured(merged...)
}
