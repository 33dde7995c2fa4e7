// Package version exposes build-time version information for chanarr.
//
// Version, Commit, and Date are stamped by the build via ldflags, for
// example:
//
//	go build -ldflags "-X github.com/chanarr/chanarr/internal/version.Version=x.y.z \
//	                   -X github.com/chanarr/chanarr/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/chanarr/chanarr/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// ApplicationName is the canonical name of this application.
const ApplicationName = "chanarr"

var (
	// Version follows SemVer 2.0.0. Releases look like "1.2.3";
	// snapshot builds look like "1.2.3-SNAPSHOT.abc1234".
	Version = "dev"
	// Commit is the full git commit SHA.
	Commit = "unknown"
	// Date is the build timestamp in RFC3339.
	Date = "unknown"
)

// GoVersion is the Go runtime this binary was built with.
var GoVersion = runtime.Version()

// Info is the structured form of the build information.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"` // build timestamp, not release date

	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"` // GOOS/GOARCH
}

// GetInfo collects the build information into an Info.
func GetInfo() Info {
	return Info{
		Version: Version, Commit: Commit, Date: Date,
		GoVersion: GoVersion,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// shortCommit returns the truncated SHA, or "" when the commit is unknown.
func shortCommit() string {
	if Commit == "unknown" || len(Commit) < 8 {
		return ""
	}
	return Commit[:8]
}

// String renders the full human-readable version line.
func String() string {
	info := GetInfo()
	if sha := shortCommit(); sha != "" {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s)",
			ApplicationName, info.Version, sha, info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, info.Version, info.GoVersion, info.Platform)
}

// Short renders the compact form used for --version output.
func Short() string {
	if sha := shortCommit(); sha != "" {
		return fmt.Sprintf("%s %s (%s)", ApplicationName, Version, sha)
	}
	return ApplicationName + " " + Version
}

// UserAgent renders the User-Agent value for outbound HTTP requests.
func UserAgent() string {
	return ApplicationName + "/" + Version
}

// IsSnapshot reports whether this is a dev or snapshot build.
func IsSnapshot() bool {
	return Version == "dev" || strings.Contains(Version, "-SNAPSHOT")
}

// IsRelease reports whether this is a tagged release build.
func IsRelease() bool {
	return !IsSnapshot() && Version != "dev"
}
