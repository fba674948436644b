package version

import (
	"fmt"
	"runtime"
)

// Overridden at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a one-line human-readable form of the build info.
func (b BuildInfo) String() string {
	return fmt.Sprintf("flowline %s (%s) %s %s", b.Version, b.Commit, b.GoVersion, b.Platform)
}
