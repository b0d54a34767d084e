// Package version reports build information for the ginja binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time with -ldflags "-X .../internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// Short returns a one-line version string.
func Short() string {
	v := resolved()
	if c := commit(); c != "unknown" && len(c) >= 7 {
		return fmt.Sprintf("%s (%s)", v, c[:7])
	}
	return v
}

// Detailed returns the full multi-line version report.
func Detailed() string {
	return fmt.Sprintf("Version: %s\nCommit: %s\nGo: %s\nPlatform: %s/%s",
		resolved(), commit(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func resolved() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

func commit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
