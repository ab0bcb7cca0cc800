// Package utils provides bespoke, one off utils that don't make sense to be
// their own package
package utils

import (
	"fmt"
	"runtime/debug"
)

// Stamped at link time with
// -ldflags "-X github.com/vincenthz/ThinkMate/pkg/utils.Version=v0.3.0 ...".
var (
	Version   = "dev"
	Sha       = ""
	Buildtime = ""
)

// Build describes the running binary.
type Build struct {
	Version   string
	Sha       string
	Buildtime string
	Modified  bool
}

// BuildInfo returns the stamped build metadata. Fields the linker did not
// stamp are taken from the VCS settings go install records.
func BuildInfo() Build {
	b := Build{Version: Version, Sha: Sha, Buildtime: Buildtime}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b.orUnknown()
	}
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Sha == "" {
				b.Sha = s.Value
			}
		case "vcs.time":
			if b.Buildtime == "" {
				b.Buildtime = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b.orUnknown()
}

func (b Build) orUnknown() Build {
	if b.Sha == "" {
		b.Sha = "HEAD"
	}
	if b.Buildtime == "" {
		b.Buildtime = "unknown"
	}
	return b
}

// ShortSha is the first twelve characters of the commit.
func (b Build) ShortSha() string {
	if len(b.Sha) > 12 {
		return b.Sha[:12]
	}
	return b.Sha
}

// String is the one line form used in logs and the chat banner.
func (b Build) String() string {
	s := fmt.Sprintf("thinkmate %s (%s", b.Version, b.ShortSha())
	if b.Modified {
		s += ", modified"
	}
	return s + ")"
}
