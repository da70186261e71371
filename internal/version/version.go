// Package version provides build-time version information for xrdcal.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time with
// -ldflags "-X xrd-calib/internal/version.Version=..."
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GoInfo describes the toolchain and platform of the running binary.
var GoInfo = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)

// String returns a one-line summary.
func String() string {
	return fmt.Sprintf("xrdcal %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
