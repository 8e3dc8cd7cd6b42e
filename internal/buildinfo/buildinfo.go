// Package buildinfo provides build version and metadata information.
package buildinfo

import "runtime/debug"

// Version metadata is injected at build time via ldflags.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Summary returns a human-readable version summary string.
func Summary() string {
	version := Version
	if version == "" || version == "dev" {
		version = moduleVersion()
	}
	parts := version
	if Commit != "" {
		parts += " (" + Commit
		if Date != "" {
			parts += " " + Date
		}
		parts += ")"
	} else if Date != "" {
		parts += " (" + Date + ")"
	}
	return parts
}

// moduleVersion reports the main module version recorded by `go install`,
// which is "(devel)" for local builds.
func moduleVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}
