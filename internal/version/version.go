package version

var (
	// Version is the current application version.
	// It is populated by the build system (ldflags).
	Version = "v0.4.2"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// ClientTag is the value reported to the OVP backend and appended to playback URLs.
func ClientTag() string {
	return "playkit-go:" + Version
}
