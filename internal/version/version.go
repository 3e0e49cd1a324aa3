// Package version exposes build metadata stamped via -ldflags.
package version

import "runtime"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the one-line version banner printed by `storybook version`.
func String() string {
	return "storybook " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// UserAgent identifies storybook in outbound HTTP requests.
func UserAgent() string {
	return "storybook/" + Version
}
