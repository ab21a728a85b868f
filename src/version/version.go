// Package version carries build metadata, set with -ldflags at release time:
//
//	-X incus-snapper/src/version.Version=v1.2.0 -X incus-snapper/src/version.Commit=abc123
package version

// Version is the released version.
var Version = "0.1.0-dev"

// Commit is the source revision, if known.
var Commit = ""

// String returns Version, followed by the commit when set.
func String() string {
	if Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
