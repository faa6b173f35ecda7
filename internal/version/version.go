// Package version exposes the build metadata stamped in at link time
// via -ldflags "-X github.com/tabmarks/tabmarks/internal/version.Version=...".
// Unstamped binaries report the dev placeholders.
package version

import (
	"runtime"
	"time"
)

var (
	// Version is the release tag, ex: v1.2.0.
	Version = "dev"

	// Commit is the short git hash of the build, ex: 3f1c9aa.
	Commit = "none"

	// BuildDate is the build timestamp in RFC 3339. Defaults to the
	// process start so dev builds still report something plausible.
	BuildDate = time.Now().UTC().Format(time.RFC3339)

	// GoVersion is the toolchain that produced the binary.
	GoVersion = runtime.Version()
)
