// Package version holds the build version of the range binary.
// Set at build time with -ldflags '-X github.com/Micca1978/scadarange/internal/version.Version=1.2.3'.
package version

// Version is set at build time; default for local builds.
var Version = "0.1.0"
