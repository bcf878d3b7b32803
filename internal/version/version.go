// Package version holds the build version, set with
// -ldflags "-X filegate/internal/version.Version=...".
package version

var Version = "dev"
