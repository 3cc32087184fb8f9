// Package version holds build metadata stamped in with -ldflags, e.g.
//
//	-X slidescope/internal/version.Version=1.2.0
package version

import "fmt"

var (
	// Version is the release of the viewer and its tools.
	Version = "0.1.0"

	// BuildTime is the UTC time of the build.
	BuildTime = "unknown"

	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"
)

// String formats the build metadata for --version output.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime)
}
