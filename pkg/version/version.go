// Package version holds build information injected at link time.
package version

import "runtime"

// Set with -ldflags "-X github.com/NERVsystems/osmosemcp/pkg/version.BuildVersion=..."
var (
	BuildVersion = "0.1.0"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

// Info returns the build information as a flat map.
func Info() map[string]string {
	return map[string]string{
		"version":    BuildVersion,
		"commit":     BuildCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}

// UserAgent returns the default User-Agent sent to remote APIs.
func UserAgent() string {
	return "osmosemcp/" + BuildVersion
}
