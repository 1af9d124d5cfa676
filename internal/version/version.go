package version

import "runtime"

// Build information. These variables are set at build time via -ldflags
var (
	// Version is the semantic version of docchat
	Version = "v0.1.0"

	// Commit is the git commit hash
	Commit = "unknown"

	// BuiltAt is the build timestamp
	BuiltAt = "unknown"
)

// Info returns formatted version information
func Info() string {
	return Version
}

// FullInfo returns complete build information
func FullInfo() string {
	return "version=" + Version + " commit=" + Commit + " built_at=" + BuiltAt + " go=" + runtime.Version()
}

// Build is the JSON form served by the daemon.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	BuiltAt string `json:"built_at"`
	Go      string `json:"go"`
}

// Current returns the running build.
func Current() Build {
	return Build{Version: Version, Commit: Commit, BuiltAt: BuiltAt, Go: runtime.Version()}
}
