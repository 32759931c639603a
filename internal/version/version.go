// Package version carries build metadata set with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/banshee-data/wayfinder/internal/version.Version=0.3.0"
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for `wayfinder version`.
func String() string {
	return fmt.Sprintf("wayfinder %s (%s, built %s)", Version, GitSHA, BuildTime)
}
