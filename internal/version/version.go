// Package version exposes the server version string reported in the
// `connected` welcome event and on /health and /version.
package version

// Version may be overridden at build time via
// -ldflags "-X .../internal/version.Version=v1.2.3".
var Version = "dev"

func String() string {
	return Version
}
