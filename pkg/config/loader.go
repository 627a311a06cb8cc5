package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/monokit/pkg/depcheck"
	"github.com/Sumatoshi-tech/monokit/pkg/outtree"
	"github.com/Sumatoshi-tech/monokit/pkg/scan"
)

const (
	configName       = ".monokit"
	configType       = "yaml"
	envPrefix        = "MONOKIT"
	envKeySeparator  = "_"
	nestedKeyDivider = "."
)

// LoadConfig loads configuration from file, environment, and defaults.
// A non-empty configPath is read explicitly and must exist; otherwise
// .monokit.yaml is looked up in the working directory and then $HOME, and
// a missing file means defaults.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(nestedKeyDivider, envKeySeparator))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	patterns := scan.DefaultPatterns()

	v.SetDefault("workspace.root", DefaultWorkspaceRoot)
	v.SetDefault("workspace.globs", []string{})

	v.SetDefault("lint.source_dir", DefaultLintSourceDir)
	v.SetDefault("lint.source_patterns", patterns.Source)
	v.SetDefault("lint.test_patterns", patterns.Test)
	v.SetDefault("lint.exclude", patterns.Exclude)
	v.SetDefault("lint.ignore", depcheck.DefaultIgnore)
	v.SetDefault("lint.concurrency", DefaultLintConcurrency)
	v.SetDefault("lint.warn_unused", DefaultLintWarnUnused)
	v.SetDefault("lint.fix_command", DefaultLintFixCommand)
	v.SetDefault("lint.cache_size", DefaultLintCacheSize)

	v.SetDefault("build.dir", DefaultBuildDir)
	v.SetDefault("build.primary_dir", "")
	v.SetDefault("build.alternate_dir", "")
	v.SetDefault("build.module_type", DefaultBuildModuleType)
	v.SetDefault("build.exclude", outtree.DefaultExclude)
	v.SetDefault("build.reserved", outtree.DefaultReserved)

	v.SetDefault("logging.level", DefaultLoggingLevel)
	v.SetDefault("logging.json", DefaultLoggingJSON)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_headers", "")
	v.SetDefault("telemetry.otlp_insecure", DefaultTelemetryInsecure)
	v.SetDefault("telemetry.debug_trace", DefaultTelemetryDebugTrace)
	v.SetDefault("telemetry.sample_ratio", DefaultTelemetrySampleRatio)
	v.SetDefault("telemetry.environment", "")
	v.SetDefault("telemetry.metrics_file", "")

	v.SetDefault("watch.debounce", DefaultWatchDebounce)
	v.SetDefault("watch.ignore", DefaultWatchIgnore)
}
