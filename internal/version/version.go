// Package version contains build version information.
package version

// Version is the current application version.
// Set at build time via ldflags.
var Version = "0.1.0"

// GitCommit is the git commit hash.
// This value is set at build time via ldflags.
var GitCommit = "unknown"

// BuildDate is the build date.
// This value is set at build time via ldflags.
var BuildDate = "unknown"

// Info returns the build metadata served on /version and printed by the CLI.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
	}
}
