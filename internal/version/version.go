package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the released version of embedcore.
// Override at build time:
//
//	go build -ldflags "-X github.com/hrygo/embedcore/internal/version.Version=0.3.0"
var Version = "0.1.0"

// DevVersion is reported in dev and demo modes.
var DevVersion = Version + "-dev"

// GitCommit is the git commit hash at build time.
var GitCommit = "unknown"

// BuildTime is the build timestamp in RFC3339 format.
var BuildTime = "unknown"

func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}

// IsValid reports whether version is a semantic version without the "v" prefix.
func IsValid(version string) bool {
	return semver.IsValid(canonical(version))
}

func canonical(version string) string {
	return "v" + strings.TrimPrefix(version, "v")
}

// String returns the version string with the short commit hash, if known.
func String() string {
	if commit := shortCommit(); commit != "" {
		return fmt.Sprintf("%s-%s", Version, commit)
	}
	return Version
}

// StringFull returns the complete version information including build metadata.
func StringFull() string {
	parts := []string{fmt.Sprintf("Version=%s", Version)}
	if commit := shortCommit(); commit != "" {
		parts = append(parts, fmt.Sprintf("Commit=%s", commit))
	}
	if BuildTime != "" && BuildTime != "unknown" {
		parts = append(parts, fmt.Sprintf("BuildTime=%s", BuildTime))
	}
	return strings.Join(parts, " ")
}

func shortCommit() string {
	if GitCommit == "" || GitCommit == "unknown" {
		return ""
	}
	if len(GitCommit) > 8 {
		return GitCommit[:8]
	}
	return GitCommit
}
