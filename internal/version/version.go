// Package version holds build identification, injected via -ldflags.
package version

import "fmt"

// Set at build time:
//
//	go build -ldflags "-X .../internal/version.Version=v0.2.0 -X .../internal/version.Commit=abc1234"
var (
	Version = "dev"
	Commit  = "unknown"
)

// Info returns the full version string for the version subcommand.
func Info() string {
	return fmt.Sprintf("drivewatch %s (commit %s)", Version, Commit)
}

// Short returns just the version tag.
func Short() string {
	return Version
}
