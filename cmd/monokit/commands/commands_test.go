package commands_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/Sumatoshi-tech/monokit/cmd/monokit/commands"
	"github.com/Sumatoshi-tech/monokit/pkg/report"
	"github.com/Sumatoshi-tech/monokit/pkg/version"
)

// newWorkspace lays out a two-package monorepo and an empty config file
// next to it, so the user's own .monokit.yaml is never picked up.
func newWorkspace(t *testing.T, config string) (root, cfgPath string) {
	t.Helper()

	dir := t.TempDir()
	root = filepath.Join(dir, "repo")
	cfgPath = filepath.Join(dir, "monokit.yaml")

	for name, content := range map[string]string{
		"package.json":                   `{"private":true,"workspaces":["packages/*"]}`,
		"packages/a/package.json":        `{"name":"a","dependencies":{"lodash":"4"}}`,
		"packages/a/src/index.ts":        "import pad from 'left-pad'\nimport get from 'lodash/get'\nimport type { T } from 'types'\n",
		"packages/a/src/index.test.ts":   "import { render } from 'testing-library'\n",
		"packages/a/build/package.json":  `{"name":"a"}`,
		"packages/a/build/index.js":      "module.exports = {}\n",
		"packages/a/build/index.mjs":     "export {}\n",
		"packages/a/build/index.d.ts":    "export {}\n",
		"packages/a/build/index.test.js": "test()\n",
		"packages/b/package.json":        `{"name":"b"}`,
		"packages/b/src/index.js":        "const fs = require('fs')\n",
		"packages/b/.skip-build":         "",
	} {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}

	require.NoError(t, os.WriteFile(cfgPath, []byte(config), 0o600))

	return root, cfgPath
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	cmd := commands.NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())

	return stdout.String(), stderr.String(), err
}

func TestLintDeps_ReportsDrift(t *testing.T) {
	t.Parallel()

	root, cfg := newWorkspace(t, "")

	stdout, _, err := execute(t, "lint-deps", "--config", cfg, "--root", root, "--no-color")
	require.ErrorIs(t, err, commands.ErrDependencyDrift)

	assert.Contains(t, stdout,
		`[monokit] ERR The package "left-pad" is used in the files "packages/a/src/index.ts" `+
			"but it is missing from the dependencies in package.json.\n")
	assert.NotContains(t, stdout, "testing-library")
	assert.NotContains(t, stdout, `"types"`)
	assert.Contains(t, stdout, "2 packages")
}

func TestLintDeps_JSON(t *testing.T) {
	t.Parallel()

	root, cfg := newWorkspace(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(root, "packages/a/package.json"),
		[]byte(`{"name":"a","dependencies":{"lodash":"4","left-pad":"1"}}`), 0o600))

	stdout, _, err := execute(t, "lint-deps", "--config", cfg, "--root", root, "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"errors":[],"warns":[]}`, stdout)
}

func TestLintDeps_WarnUnused(t *testing.T) {
	t.Parallel()

	root, cfg := newWorkspace(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(root, "packages/b/package.json"),
		[]byte(`{"name":"b","dependencies":{"chalk":"5"}}`), 0o600))

	stdout, _, err := execute(t, "lint-deps", "--config", cfg, "--root", root, "--format", "yaml", "--warn-unused")
	require.ErrorIs(t, err, commands.ErrDependencyDrift)
	assert.Contains(t, stdout, "chalk")
}

func TestLintDeps_Fix(t *testing.T) {
	t.Parallel()

	root, cfg := newWorkspace(t, "lint:\n  fix_command: 'echo \"$1\" >> added.txt'\n")

	stdout, _, err := execute(t, "lint-deps", "--config", cfg, "--root", root, "--fix", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"errors":[],"warns":[]}`, stdout)

	added, err := os.ReadFile(filepath.Join(root, "packages/a/added.txt"))
	require.NoError(t, err)
	assert.Equal(t, "left-pad\n", string(added))
}

func TestLintDeps_BadFormat(t *testing.T) {
	t.Parallel()

	root, cfg := newWorkspace(t, "")

	_, _, err := execute(t, "lint-deps", "--config", cfg, "--root", root, "--format", "xml")
	require.ErrorIs(t, err, report.ErrUnknownFormat)
}

func TestLintDeps_BadConfig(t *testing.T) {
	t.Parallel()

	root, cfg := newWorkspace(t, "lint:\n  concurrency: 0\n")

	_, _, err := execute(t, "lint-deps", "--config", cfg, "--root", root)
	require.Error(t, err)

	_, _, err = execute(t, "lint-deps", "--config", cfg, "--root", root, "--log-level", "chatty")
	require.Error(t, err)
}

func TestBuildExports_DryRun(t *testing.T) {
	t.Parallel()

	root, cfg := newWorkspace(t, "")

	stdout, _, err := execute(t, "build-exports", "--config", cfg, "--root", root, "--dry-run", "--no-color")
	require.NoError(t, err)

	assert.Contains(t, stdout, "--- packages/a/build/package.json\n")
	assert.Contains(t, stdout, `"./index.mjs"`)
	assert.Contains(t, stdout, "skipped")

	doc, err := os.ReadFile(filepath.Join(root, "packages/a/build/package.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a"}`, string(doc))
	assert.FileExists(t, filepath.Join(root, "packages/a/build/index.test.js"))
}

func TestBuildExports_Writes(t *testing.T) {
	t.Parallel()

	root, cfg := newWorkspace(t, "")

	stdout, _, err := execute(t, "build-exports", "--config", cfg, "--root", root, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, "./index.test.js", gjson.Get(stdout, "packages.0.deleted.0").String())
	assert.True(t, gjson.Get(stdout, "packages.1.skipped").Bool())

	doc, err := os.ReadFile(filepath.Join(root, "packages/a/build/package.json"))
	require.NoError(t, err)
	assert.Equal(t, "./index.mjs", gjson.GetBytes(doc, `exports.\..import`).String())
	assert.NoFileExists(t, filepath.Join(root, "packages/a/build/index.test.js"))
}

func TestBuildExports_FailedPackage(t *testing.T) {
	t.Parallel()

	root, cfg := newWorkspace(t, "")
	require.NoError(t, os.Remove(filepath.Join(root, "packages/b/.skip-build")))

	stdout, _, err := execute(t, "build-exports", "--config", cfg, "--root", root, "--no-color")
	require.ErrorIs(t, err, commands.ErrPackagesFailed)
	assert.Contains(t, stdout, "[monokit] ERR packages/b:")
}

func TestPackagesAndClean(t *testing.T) {
	t.Parallel()

	root, cfg := newWorkspace(t, "")

	stdout, _, err := execute(t, "packages", "--config", cfg, "--root", root, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, `["packages/a","packages/b"]`, gjson.Get(stdout, "#.rel").Raw)
	assert.True(t, gjson.Get(stdout, "1.skip_build").Bool())

	stdout, _, err = execute(t, "clean", "--config", cfg, "--root", root, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "packages/a/build"), gjson.Get(stdout, "removed.0").String())
	assert.NoDirExists(t, filepath.Join(root, "packages/a/build"))
	assert.FileExists(t, filepath.Join(root, "packages/a/src/index.ts"))
}

func TestVersion(t *testing.T) {
	t.Parallel()

	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.String()+"\n", stdout)
}

func TestRoot_UnknownCommand(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "deploy")
	require.Error(t, err)
}
