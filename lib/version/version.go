// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/bureau-foundation/quenyan/lib/version.Release=...".
var (
	// Release is the tool's own semantic version, unrelated to the
	// archive protocol version in [Current].
	Release = "0.1.0-dev"

	// GitCommit is the short SHA the binary was built from. When left
	// empty it is taken from the VCS stamp the go tool embeds.
	GitCommit = ""

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// Short returns the release alone.
func Short() string { return Release }

// Commit returns the build's commit, suffixed with "-dirty" when the
// tree had uncommitted changes. It is "unknown" when neither ldflags
// nor the embedded VCS stamp provide one.
func Commit() string {
	if GitCommit != "" {
		return GitCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	var revision, modified string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value
		}
	}
	if revision == "" {
		return "unknown"
	}
	revision = revision[:min(len(revision), 12)]
	if modified == "true" {
		revision += "-dirty"
	}
	return revision
}

// Full is the multi-line text printed by "qyn version".
func Full() string {
	var b strings.Builder
	fmt.Fprintf(&b, "qyn %s (%s, built %s)\n", Release, Commit(), BuildTime)
	fmt.Fprintf(&b, "  protocol   %s (reads %s..%s)\n", Current, Minimum, Current)
	fmt.Fprintf(&b, "  toolchain  %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return b.String()
}
