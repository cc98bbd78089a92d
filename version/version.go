// Package version holds build-time metadata, populated via linker flags
// (-X) in release builds; the zero values below are used for local/dev
// builds and tests.
package version

var (
	name    = "auralis"
	ver     = "dev"
	commit  = "none"
)

// Name returns the application's display name.
func Name() string {
	return name
}

// Version returns the build version string.
func Version() string {
	return ver
}

// Commit returns the build's source commit hash.
func Commit() string {
	return commit
}
