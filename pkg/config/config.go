package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Sumatoshi-tech/monokit/pkg/scan"
)

// Config is the top-level configuration. Field tags use mapstructure for
// viper unmarshalling.
type Config struct {
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Lint      LintConfig      `mapstructure:"lint"`
	Build     BuildConfig     `mapstructure:"build"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Watch     WatchConfig     `mapstructure:"watch"`
}

// WorkspaceConfig locates the monorepo.
type WorkspaceConfig struct {
	Root string `mapstructure:"root"`
	// Globs override the root manifest's "workspaces" field.
	Globs []string `mapstructure:"globs"`
}

// LintConfig drives the dependency audit.
type LintConfig struct {
	SourceDir      string   `mapstructure:"source_dir"`
	SourcePatterns []string `mapstructure:"source_patterns"`
	TestPatterns   []string `mapstructure:"test_patterns"`
	Exclude        []string `mapstructure:"exclude"`
	Ignore         []string `mapstructure:"ignore"`
	Concurrency    int      `mapstructure:"concurrency"`
	WarnUnused     bool     `mapstructure:"warn_unused"`
	FixCommand     string   `mapstructure:"fix_command"`
	CacheSize      int      `mapstructure:"cache_size"`
}

// BuildConfig drives the export-map build.
type BuildConfig struct {
	Dir          string   `mapstructure:"dir"`
	PrimaryDir   string   `mapstructure:"primary_dir"`
	AlternateDir string   `mapstructure:"alternate_dir"`
	ModuleType   string   `mapstructure:"module_type"`
	Exclude      []string `mapstructure:"exclude"`
	Reserved     []string `mapstructure:"reserved"`
}

// LoggingConfig controls stderr logging.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	DebugTrace   bool    `mapstructure:"debug_trace"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	Environment  string  `mapstructure:"environment"`
	MetricsFile  string  `mapstructure:"metrics_file"`
}

// WatchConfig controls the lint-deps watch loop.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Ignore   []string      `mapstructure:"ignore"`
}

// Sentinel validation errors.
var (
	// ErrInvalidConcurrency indicates a non-positive lint concurrency.
	ErrInvalidConcurrency = errors.New("lint.concurrency must be positive")
	// ErrInvalidCacheSize indicates a negative parse cache size.
	ErrInvalidCacheSize = errors.New("lint.cache_size must be non-negative")
	// ErrInvalidModuleType indicates a module type other than commonjs or module.
	ErrInvalidModuleType = errors.New("build.module_type must be commonjs or module")
	// ErrInvalidBuildDir indicates an empty build directory.
	ErrInvalidBuildDir = errors.New("build.dir must not be empty")
	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("logging.level must be debug, info, warn or error")
	// ErrInvalidSampleRatio indicates a sample ratio outside [0, 1].
	ErrInvalidSampleRatio = errors.New("telemetry.sample_ratio must be between 0 and 1")
	// ErrInvalidDebounce indicates a negative watch debounce.
	ErrInvalidDebounce = errors.New("watch.debounce must be non-negative")
	// ErrInvalidWatchIgnore indicates a malformed watch ignore glob.
	ErrInvalidWatchIgnore = errors.New("watch.ignore has an invalid glob")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if err := c.validateLint(); err != nil {
		return err
	}

	if err := c.validateBuild(); err != nil {
		return err
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return ErrInvalidSampleRatio
	}

	return c.validateWatch()
}

func (c *Config) validateLint() error {
	if c.Lint.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.Lint.CacheSize < 0 {
		return ErrInvalidCacheSize
	}

	return c.Patterns().Validate()
}

func (c *Config) validateBuild() error {
	if c.Build.Dir == "" {
		return ErrInvalidBuildDir
	}

	switch c.Build.ModuleType {
	case "commonjs", "module":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidModuleType, c.Build.ModuleType)
	}
}

func (c *Config) validateWatch() error {
	if c.Watch.Debounce < 0 {
		return ErrInvalidDebounce
	}

	for _, glob := range c.Watch.Ignore {
		if !doublestar.ValidatePattern(glob) {
			return fmt.Errorf("%w: %q", ErrInvalidWatchIgnore, glob)
		}
	}

	return nil
}

// Patterns returns the scanner patterns described by the lint section.
func (c *Config) Patterns() scan.Patterns {
	return scan.Patterns{
		SourceDir: c.Lint.SourceDir,
		Source:    c.Lint.SourcePatterns,
		Test:      c.Lint.TestPatterns,
		Exclude:   c.Lint.Exclude,
	}
}

// LogLevel parses logging.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level

	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	return level, nil
}
