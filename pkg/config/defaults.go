// Package config provides YAML-based project configuration for monokit.
package config

import "time"

// Workspace defaults.
const (
	DefaultWorkspaceRoot = "."
)

// Lint defaults.
const (
	DefaultLintSourceDir   = "src"
	DefaultLintConcurrency = 50
	DefaultLintWarnUnused  = false
	DefaultLintFixCommand  = `yarn add "$1"`
	DefaultLintCacheSize   = 4096
)

// Build defaults.
const (
	DefaultBuildDir        = "build"
	DefaultBuildModuleType = "commonjs"
)

// Logging defaults.
const (
	DefaultLoggingLevel = "info"
	DefaultLoggingJSON  = false
)

// Telemetry defaults.
const (
	DefaultTelemetryInsecure    = false
	DefaultTelemetryDebugTrace  = false
	DefaultTelemetrySampleRatio = 0.0
)

// Watch defaults.
const (
	DefaultWatchDebounce = 300 * time.Millisecond
)

// DefaultWatchIgnore keeps dependency and output trees out of the watch loop.
var DefaultWatchIgnore = []string{
	"**/node_modules/**",
	"**/build/**",
	"**/.git/**",
}
