// Package build holds build-time metadata injected via ldflags.
package build

var (
	// Version is set at build time.
	Version = "dev"
	// AppName is the binary name used in logs and lock files.
	AppName = "dayrun"
)
