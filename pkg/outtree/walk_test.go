package outtree_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/monokit/pkg/outtree"
)

func buildTree(t *testing.T, root string, files ...string) afero.Fs {
	t.Helper()

	fsys := afero.NewMemMapFs()
	for _, name := range files {
		require.NoError(t, afero.WriteFile(fsys, root+"/"+name, []byte("x"), 0o644))
	}

	return fsys
}

func refs(entries []outtree.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Ref
	}

	return out
}

func TestWalk_SingleTree(t *testing.T) {
	t.Parallel()

	fsys := buildTree(t, "/build",
		"README.md", "data.json",
		"foo.spec.js", "foo.spec.mjs",
		"index.d.ts", "index.js", "index.mjs",
		"only.mjs", "orphan.d.ts",
		"sub/index.js", "sub/index.mjs",
		"test/helper.js",
		"util.d.ts", "util.js",
		"x.d.js", "x.d.mjs",
		"check.manual.js",
	)

	res, err := outtree.NewWalker(fsys, outtree.DefaultLayout("/build", "")).Walk()
	require.NoError(t, err)

	assert.Equal(t, []outtree.Entry{
		{Path: "data.json", Ref: "./data.json", Decision: outtree.Singular},
		{Path: "index.d.ts", Ref: "./index.d.ts", Decision: outtree.Singular},
		{Path: "index.js", Ref: "./index.js", Decision: outtree.Paired, Alternate: "./index.mjs", Types: "./index.d.ts"},
		{Path: "only.mjs", Ref: "./only.mjs", Decision: outtree.Singular},
		{Path: "sub/index.js", Ref: "./sub/index.js", Decision: outtree.Paired, Alternate: "./sub/index.mjs"},
		{Path: "util.d.ts", Ref: "./util.d.ts", Decision: outtree.Singular},
		{Path: "util.js", Ref: "./util.js", Decision: outtree.Singular, Types: "./util.d.ts"},
	}, res.Entries)

	assert.Equal(t, []string{
		"./check.manual.js",
		"./foo.spec.js",
		"./foo.spec.mjs",
		"./orphan.d.ts",
		"./test/helper.js",
		"./x.d.js",
		"./x.d.mjs",
	}, refs(res.Deleted))

	for _, gone := range res.Deleted {
		exists, err := afero.Exists(fsys, "/build/"+gone.Path)
		require.NoError(t, err)
		assert.False(t, exists, gone.Path)
		assert.Equal(t, outtree.Delete, gone.Decision)
	}

	// Excluded files are neither classified nor removed.
	exists, err := afero.Exists(fsys, "/build/README.md")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWalk_StraySpecIsDeletedAndAbsent(t *testing.T) {
	t.Parallel()

	fsys := buildTree(t, "/build", "foo.spec.js", "foo.js")

	res, err := outtree.NewWalker(fsys, outtree.DefaultLayout("/build", "")).Walk()
	require.NoError(t, err)

	assert.Equal(t, []string{"./foo.js"}, refs(res.Entries))
	assert.Equal(t, []string{"./foo.spec.js"}, refs(res.Deleted))

	exists, err := afero.Exists(fsys, "/build/foo.spec.js")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWalk_SeparateTrees(t *testing.T) {
	t.Parallel()

	fsys := buildTree(t, "/build",
		"cjs/index.js", "cjs/index.d.ts", "cjs/a.spec.js",
		"esm/index.mjs", "esm/a.spec.mjs", "esm/stray.test.mjs", "esm/lonely.mjs",
	)

	layout := outtree.DefaultLayout("/build", "")
	layout.PrimaryDir = "cjs"
	layout.AlternateDir = "esm"

	res, err := outtree.NewWalker(fsys, layout).Walk()
	require.NoError(t, err)

	assert.Equal(t, []outtree.Entry{
		{Path: "index.d.ts", Ref: "./cjs/index.d.ts", Decision: outtree.Singular},
		{Path: "index.js", Ref: "./cjs/index.js", Decision: outtree.Paired, Alternate: "./esm/index.mjs", Types: "./cjs/index.d.ts"},
	}, res.Entries)

	assert.Equal(t, []string{"./cjs/a.spec.js", "./esm/a.spec.mjs", "./esm/stray.test.mjs"}, refs(res.Deleted))

	exists, err := afero.Exists(fsys, "/build/esm/lonely.mjs")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWalk_AlternateTreeNestedInPrimary(t *testing.T) {
	t.Parallel()

	fsys := buildTree(t, "/build", "index.js", "esm/index.mjs")

	layout := outtree.DefaultLayout("/build", "")
	layout.AlternateDir = "esm"

	res, err := outtree.NewWalker(fsys, layout).Walk()
	require.NoError(t, err)

	assert.Equal(t, []outtree.Entry{
		{Path: "index.js", Ref: "./index.js", Decision: outtree.Paired, Alternate: "./esm/index.mjs"},
	}, res.Entries)
	assert.Empty(t, res.Deleted)
}

func TestWalk_ModuleLayoutPairsWithCJS(t *testing.T) {
	t.Parallel()

	fsys := buildTree(t, "/build", "index.js", "index.cjs", "index.mjs")

	layout := outtree.DefaultLayout("/build", outtree.ModuleTypeModule)
	assert.Equal(t, outtree.ConditionRequire, layout.AlternateCondition())

	res, err := outtree.NewWalker(fsys, layout).Walk()
	require.NoError(t, err)

	assert.Equal(t, []outtree.Entry{
		{Path: "index.js", Ref: "./index.js", Decision: outtree.Paired, Alternate: "./index.cjs"},
		{Path: "index.mjs", Ref: "./index.mjs", Decision: outtree.Singular},
	}, res.Entries)
}

func TestWalk_CustomExcludeAndReserved(t *testing.T) {
	t.Parallel()

	fsys := buildTree(t, "/build", "NOTICE", "fixtures/a.js", "test/b.js")

	res, err := outtree.NewWalker(fsys, outtree.DefaultLayout("/build", ""),
		outtree.WithExclude([]string{"NOTICE"}),
		outtree.WithReserved([]string{"fixtures"}),
	).Walk()
	require.NoError(t, err)

	assert.Equal(t, []string{"./test/b.js"}, refs(res.Entries))
	assert.Equal(t, []string{"./fixtures/a.js"}, refs(res.Deleted))
}

func TestWalk_MissingRoot(t *testing.T) {
	t.Parallel()

	_, err := outtree.NewWalker(afero.NewMemMapFs(), outtree.DefaultLayout("/missing", "")).Walk()
	require.Error(t, err)
}

func TestRef(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "./index.js", outtree.Ref("index.js"))
	assert.Equal(t, "./index.js", outtree.Ref("./index.js"))
	assert.Equal(t, "./a/b.js", outtree.Ref("a//b.js"))
	assert.Empty(t, outtree.Ref(""))
}

func TestDecision_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "delete", outtree.Delete.String())
	assert.Equal(t, "paired", outtree.Paired.String())
	assert.Equal(t, "singular", outtree.Singular.String())
}

func TestWalk_DryRunKeepsFiles(t *testing.T) {
	t.Parallel()

	fsys := buildTree(t, "/build", "foo.spec.js", "foo.js", "test/a.js")

	res, err := outtree.NewWalker(fsys, outtree.DefaultLayout("/build", ""), outtree.WithDryRun(true)).Walk()
	require.NoError(t, err)

	assert.Equal(t, []string{"./foo.js"}, refs(res.Entries))
	assert.Equal(t, []string{"./foo.spec.js", "./test/a.js"}, refs(res.Deleted))

	for _, name := range []string{"foo.spec.js", "test/a.js"} {
		exists, err := afero.Exists(fsys, "/build/"+name)
		require.NoError(t, err)
		assert.True(t, exists, name)
	}
}
