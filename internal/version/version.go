// Package version carries build metadata injected with -ldflags.
package version

import "fmt"

// Set via ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String formats the build metadata for `genrelay version`.
func String() string {
	return fmt.Sprintf("genrelay %s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
}
