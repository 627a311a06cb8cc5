package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// manifestPerm is the file mode used when persisting a manifest.
const manifestPerm os.FileMode = 0o644

// prettyOptions mirror JSON.stringify(pkg, null, 2): two-space indent, key
// order untouched, one array element per line.
var prettyOptions = &pretty.Options{
	Width:    1,
	Prefix:   "",
	Indent:   "  ",
	SortKeys: false,
}

// Update transforms a manifest document.
type Update func(doc []byte) ([]byte, error)

// SetRaw replaces (or appends) a top-level field with raw JSON.
func SetRaw(field string, value []byte) Update {
	return func(doc []byte) ([]byte, error) {
		if !json.Valid(value) {
			return nil, fmt.Errorf("%w: value for %q is not valid JSON", ErrInvalidManifest, field)
		}

		out, err := sjson.SetRawBytes(doc, escapePath(field), value)
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", field, err)
		}

		return out, nil
	}
}

// SetString replaces (or appends) a top-level string field.
func SetString(field, value string) Update {
	return func(doc []byte) ([]byte, error) {
		out, err := sjson.SetBytes(doc, escapePath(field), value)
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", field, err)
		}

		return out, nil
	}
}

// Apply returns a new Manifest with the updates applied in order.
// The receiver is not modified.
func (m Manifest) Apply(updates ...Update) (Manifest, error) {
	doc := m.Raw()

	for _, update := range updates {
		next, err := update(doc)
		if err != nil {
			return Manifest{}, err
		}

		doc = next
	}

	return Parse(doc)
}

// Marshal renders the document with two-space indentation.
func (m Manifest) Marshal() []byte {
	return pretty.PrettyOptions(m.raw, prettyOptions)
}

// Write persists the manifest at path.
func Write(fsys afero.Fs, path string, m Manifest) error {
	err := afero.WriteFile(fsys, path, m.Marshal(), manifestPerm)
	if err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}

	return nil
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	".", `\.`,
	"*", `\*`,
	"?", `\?`,
)

// escapePath makes a top-level key safe for sjson path syntax.
func escapePath(field string) string {
	return pathEscaper.Replace(field)
}
