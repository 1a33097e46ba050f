// Package adblink identifies this module: its version and an
// environment-controlled process-wide debug flag, in the style of the teacher
// repository's own root identity package.
package adblink

import "fmt"

const (
	// VersionMajor is the current major version.
	VersionMajor = 0
	// VersionMinor is the current minor version.
	VersionMinor = 1
	// VersionPatch is the current patch version.
	VersionPatch = 0
)

// Version is the dotted version string for this build.
var Version = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
