package manifest_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/Sumatoshi-tech/monokit/pkg/manifest"
)

const sampleManifest = `{
  "name": "@acme/util",
  "version": "1.2.3",
  "main": "index.js",
  "react-native": "index.native.js",
  "dependencies": {"left-pad": "^1.0.0", "tslib": "^2.0.0"},
  "peerDependencies": {"react": "*"},
  "exports": {
    ".": {"types": "./index.d.ts", "custom": "./custom.js", "default": "./index.js"},
    "./plain": "./plain.js"
  }
}`

func TestParse_NormalizesDependencyGroups(t *testing.T) {
	t.Parallel()

	m, err := manifest.Parse([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "@acme/util", m.Name)
	assert.Equal(t, "1.2.3", m.Version)
	assert.Equal(t, []string{"left-pad", "tslib"}, m.Dependencies.Sorted())
	assert.Empty(t, m.DevDependencies)
	assert.True(t, m.PeerDependencies.Has("react"))
	assert.False(t, m.PeerDependencies.Has("react-dom"))
}

func TestParse_RejectsNonObject(t *testing.T) {
	t.Parallel()

	_, err := manifest.Parse([]byte(`[1, 2]`))
	require.ErrorIs(t, err, manifest.ErrInvalidManifest)

	_, err = manifest.Parse([]byte(`{"name": `))
	require.ErrorIs(t, err, manifest.ErrInvalidManifest)
}

func TestField_AbsentAndPresent(t *testing.T) {
	t.Parallel()

	m, err := manifest.Parse([]byte(sampleManifest))
	require.NoError(t, err)

	main, ok := m.Main()
	assert.True(t, ok)
	assert.Equal(t, "index.js", main)

	rn, ok := m.ReactNative()
	assert.True(t, ok)
	assert.Equal(t, "index.native.js", rn)

	_, ok = m.Browser()
	assert.False(t, ok)
}

func TestExportConditions_PreservesOrder(t *testing.T) {
	t.Parallel()

	m, err := manifest.Parse([]byte(sampleManifest))
	require.NoError(t, err)

	conds := m.ExportConditions(".")
	require.Len(t, conds, 3)
	assert.Equal(t, "types", conds[0].Key)
	assert.Equal(t, "custom", conds[1].Key)
	assert.JSONEq(t, `"./custom.js"`, string(conds[1].Raw))

	assert.Nil(t, m.ExportConditions("./plain"))
	assert.Nil(t, m.ExportConditions("./missing"))
}

func TestApply_ReturnsNewValue(t *testing.T) {
	t.Parallel()

	original, err := manifest.Parse([]byte(sampleManifest))
	require.NoError(t, err)

	updated, err := original.Apply(
		manifest.SetRaw(manifest.FieldExports, []byte(`{"./a":"./a.js"}`)),
		manifest.SetString(manifest.FieldType, "commonjs"),
	)
	require.NoError(t, err)

	assert.Equal(t, `{"./a":"./a.js"}`, string(updated.RawField(manifest.FieldExports)))

	typ, ok := updated.Field(manifest.FieldType)
	assert.True(t, ok)
	assert.Equal(t, "commonjs", typ)

	// The original is untouched.
	assert.False(t, original.Has(manifest.FieldType))
	assert.Len(t, original.ExportConditions("."), 3)
}

func TestApply_InvalidRaw(t *testing.T) {
	t.Parallel()

	m, err := manifest.Parse([]byte(`{"name":"x"}`))
	require.NoError(t, err)

	_, err = m.Apply(manifest.SetRaw(manifest.FieldExports, []byte(`{`)))
	require.ErrorIs(t, err, manifest.ErrInvalidManifest)
}

func TestMarshal_PreservesKeyOrder(t *testing.T) {
	t.Parallel()

	m, err := manifest.Parse([]byte(`{"name":"x","version":"1.0.0","files":["a","b"]}`))
	require.NoError(t, err)

	m, err = m.Apply(manifest.SetString(manifest.FieldType, "module"))
	require.NoError(t, err)

	out := string(m.Marshal())
	assert.Less(t, indexOf(out, `"name"`), indexOf(out, `"version"`))
	assert.Less(t, indexOf(out, `"files"`), indexOf(out, `"type"`))
	assert.Contains(t, out, "\n  \"name\": \"x\"")
}

func TestReadWrite_RoundTrip(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/pkg/package.json", []byte(sampleManifest), 0o644))

	m, err := manifest.Read(fsys, "/pkg/package.json")
	require.NoError(t, err)

	m, err = m.Apply(manifest.SetString(manifest.FieldType, "commonjs"))
	require.NoError(t, err)
	require.NoError(t, manifest.Write(fsys, "/pkg/package.json", m))

	data, err := afero.ReadFile(fsys, "/pkg/package.json")
	require.NoError(t, err)
	assert.Equal(t, "commonjs", gjson.GetBytes(data, "type").String())
	assert.Equal(t, "@acme/util", gjson.GetBytes(data, "name").String())
}

func TestRead_Missing(t *testing.T) {
	t.Parallel()

	_, err := manifest.Read(afero.NewMemMapFs(), "/nope/package.json")
	require.Error(t, err)
}

func TestWorkspaces_BothForms(t *testing.T) {
	t.Parallel()

	arr, err := manifest.Parse([]byte(`{"workspaces":["packages/*","tools/*"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"packages/*", "tools/*"}, arr.Workspaces())

	obj, err := manifest.Parse([]byte(`{"workspaces":{"packages":["libs/*"]}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"libs/*"}, obj.Workspaces())

	none, err := manifest.Parse([]byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, none.Workspaces())
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}

	return -1
}
