package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/monokit/pkg/config"
	"github.com/Sumatoshi-tech/monokit/pkg/depcheck"
	"github.com/Sumatoshi-tech/monokit/pkg/outtree"
	"github.com/Sumatoshi-tech/monokit/pkg/scan"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), ".monokit.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	return cfgPath
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultWorkspaceRoot, cfg.Workspace.Root)
	assert.Empty(t, cfg.Workspace.Globs)
	assert.Equal(t, scan.DefaultPatterns(), cfg.Patterns())
	assert.Equal(t, depcheck.DefaultIgnore, cfg.Lint.Ignore)
	assert.Equal(t, config.DefaultLintConcurrency, cfg.Lint.Concurrency)
	assert.Equal(t, config.DefaultLintFixCommand, cfg.Lint.FixCommand)
	assert.Equal(t, config.DefaultLintCacheSize, cfg.Lint.CacheSize)
	assert.False(t, cfg.Lint.WarnUnused)
	assert.Equal(t, config.DefaultBuildDir, cfg.Build.Dir)
	assert.Equal(t, config.DefaultBuildModuleType, cfg.Build.ModuleType)
	assert.Equal(t, outtree.DefaultExclude, cfg.Build.Exclude)
	assert.Equal(t, outtree.DefaultReserved, cfg.Build.Reserved)
	assert.Equal(t, config.DefaultWatchDebounce, cfg.Watch.Debounce)
	assert.Equal(t, config.DefaultWatchIgnore, cfg.Watch.Ignore)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, `workspace:
  root: ../repo
  globs: ["libs/*"]
lint:
  source_dir: lib
  ignore: [fs]
  exclude: ["generated/**"]
  concurrency: 8
  warn_unused: true
  fix_command: pnpm add "$1"
build:
  dir: dist
  alternate_dir: esm
  module_type: module
logging:
  level: debug
  json: true
telemetry:
  sample_ratio: 0.5
  metrics_file: /tmp/monokit.prom
watch:
  debounce: 1s
`)

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "../repo", cfg.Workspace.Root)
	assert.Equal(t, []string{"libs/*"}, cfg.Workspace.Globs)
	assert.Equal(t, "lib", cfg.Patterns().SourceDir)
	assert.Equal(t, []string{"fs"}, cfg.Lint.Ignore)
	assert.Equal(t, []string{"generated/**"}, cfg.Patterns().Exclude)
	assert.Equal(t, 8, cfg.Lint.Concurrency)
	assert.True(t, cfg.Lint.WarnUnused)
	assert.Equal(t, `pnpm add "$1"`, cfg.Lint.FixCommand)
	assert.Equal(t, "dist", cfg.Build.Dir)
	assert.Equal(t, "esm", cfg.Build.AlternateDir)
	assert.Equal(t, "module", cfg.Build.ModuleType)
	assert.True(t, cfg.Logging.JSON)
	assert.InDelta(t, 0.5, cfg.Telemetry.SampleRatio, 0.001)
	assert.Equal(t, "/tmp/monokit.prom", cfg.Telemetry.MetricsFile)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("MONOKIT_LINT_CONCURRENCY", "3")
	t.Setenv("MONOKIT_BUILD_MODULE_TYPE", "module")
	t.Setenv("MONOKIT_TELEMETRY_OTLP_ENDPOINT", "localhost:4317")

	cfg, err := config.LoadConfig(writeConfig(t, "lint:\n  concurrency: 9\n"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Lint.Concurrency)
	assert.Equal(t, "module", cfg.Build.ModuleType)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"concurrency", "lint:\n  concurrency: 0\n", config.ErrInvalidConcurrency},
		{"cache size", "lint:\n  cache_size: -1\n", config.ErrInvalidCacheSize},
		{"module type", "build:\n  module_type: umd\n", config.ErrInvalidModuleType},
		{"build dir", "build:\n  dir: \"\"\n", config.ErrInvalidBuildDir},
		{"log level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"sample ratio", "telemetry:\n  sample_ratio: 2\n", config.ErrInvalidSampleRatio},
		{"debounce", "watch:\n  debounce: -1s\n", config.ErrInvalidDebounce},
		{"watch glob", "watch:\n  ignore: [\"[\"]\n", config.ErrInvalidWatchIgnore},
		{"source glob", "lint:\n  source_patterns: [\"[\"]\n", scan.ErrInvalidPattern},
		{"exclude glob", "lint:\n  exclude: [\"[\"]\n", scan.ErrInvalidPattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "lint: [unterminated"))
	require.Error(t, err)

	_, err = config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
