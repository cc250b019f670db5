// Package version carries build-time identification for the
// tabsync-agent binary, set via ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	// CommitHash is the git commit hash the binary was built from.
	CommitHash = "dev"

	// BuildTime is when the binary was built.
	BuildTime = "unknown"

	// Version is the semantic version, if tagged.
	Version = "dev"
)

// Info is the structured view of build metadata.
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current build information.
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String renders a human-readable version line.
func (i Info) String() string {
	if i.Version != "dev" {
		return fmt.Sprintf("tabsync-agent %s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildTime)
	}
	return fmt.Sprintf("tabsync-agent dev (commit %s, built %s)", i.CommitHash, i.BuildTime)
}
