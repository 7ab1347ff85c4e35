// Package version reports build information for crossguard. VCS metadata is read from the build info embedded by the
// Go toolchain unless it was set explicitly through ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// These variables can be set via ldflags at build time.
var (
	// Version is the semantic version of the build.
	Version = "0.1.0"
	// GitCommit is the git commit hash.
	GitCommit = ""
	// GitCommitTime is the RFC 3339 timestamp of the git commit.
	GitCommitTime = ""
	// GitTreeDirty is "true" if the tree had uncommitted changes at build time.
	GitTreeDirty = ""
)

// Info describes a build.
type Info struct {
	Version       string
	GitCommit     string
	GitCommitTime string
	GitTreeDirty  bool
	GoVersion     string
}

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	settings := make(map[string]string, len(info.Settings))
	for _, kv := range info.Settings {
		settings[kv.Key] = kv.Value
	}
	GitCommit = firstNonEmpty(GitCommit, settings["vcs.revision"])
	GitCommitTime = firstNonEmpty(GitCommitTime, settings["vcs.time"])
	GitTreeDirty = firstNonEmpty(GitTreeDirty, settings["vcs.modified"])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetInfo returns the information of the running build.
func GetInfo() Info {
	return Info{
		Version:       Version,
		GitCommit:     GitCommit,
		GitCommitTime: GitCommitTime,
		GitTreeDirty:  GitTreeDirty == "true",
		GoVersion:     runtime.Version(),
	}
}

// ShortCommit returns the first 7 characters of the commit hash.
func (i Info) ShortCommit() string {
	if len(i.GitCommit) > 7 {
		return i.GitCommit[:7]
	}
	return i.GitCommit
}

// commit returns the short commit hash, suffixed with "-dirty" for modified trees.
func (i Info) commit() string {
	if i.GitTreeDirty {
		return i.ShortCommit() + "-dirty"
	}
	return i.ShortCommit()
}

// FormattedTime returns the commit time in a human-readable format.
func (i Info) FormattedTime() string {
	if i.GitCommitTime == "" {
		return "unknown"
	}
	t, err := time.Parse(time.RFC3339, i.GitCommitTime)
	if err != nil {
		return i.GitCommitTime
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

// String returns a multi-line description of the build.
func (i Info) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "crossguard version %s\n", i.Version)
	if i.GitCommit != "" {
		fmt.Fprintf(&sb, "  Commit:     %s\n", i.commit())
	}
	if i.GitCommitTime != "" {
		fmt.Fprintf(&sb, "  Built:      %s\n", i.FormattedTime())
	}
	fmt.Fprintf(&sb, "  Go version: %s\n", i.GoVersion)
	return sb.String()
}

// Short returns a single-line version string used by --version.
func (i Info) Short() string {
	if i.GitCommit == "" {
		return i.Version
	}
	return i.Version + "+" + i.commit()
}
