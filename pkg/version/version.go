// Package version holds build metadata injected through -ldflags.
package version

import "runtime/debug"

// Build metadata. Release builds set these with
// -ldflags "-X github.com/Sumatoshi-tech/monokit/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// InitBinaryVersion fills in metadata from the embedded build info when the
// binary was built without ldflags, e.g. by go install.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	apply(info)
}

func apply(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "none" && setting.Value != "" {
				Commit = shortRevision(setting.Value)
			}
		case "vcs.time":
			if Date == "unknown" && setting.Value != "" {
				Date = setting.Value
			}
		}
	}
}

func shortRevision(rev string) string {
	const short = 12

	if len(rev) > short {
		return rev[:short]
	}

	return rev
}

// String formats the metadata for the version command.
func String() string {
	return "monokit " + Version + " (commit: " + Commit + ", built: " + Date + ")"
}
