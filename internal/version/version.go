// Package version carries build metadata injected through ldflags, e.g.
//
//	-X github.com/MeKo-Tech/stereorect/internal/version.Version=v0.3.0
package version

import "fmt"

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String formats the build metadata for --version output.
func String() string {
	return fmt.Sprintf("stereorect %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
