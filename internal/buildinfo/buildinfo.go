// Package buildinfo reports the version stamped into the binary.
package buildinfo

import "runtime/debug"

// Version is set with -ldflags "-X swarmorch/internal/buildinfo.Version=...".
var Version = ""

// String returns Version, falling back to the module version recorded by
// the go tool and finally to "dev".
func String() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
