package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Set at link time with -ldflags "-X".
var (
	Version = "0.1.0"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
}

func (i Info) String() string {
	var details []string
	if i.Commit != "" {
		details = append(details, i.Commit)
	}
	if i.Date != "" {
		details = append(details, i.Date)
	}
	if i.GoVersion != "" {
		details = append(details, i.GoVersion)
	}
	if len(details) == 0 {
		return i.Version
	}
	return fmt.Sprintf("%s (%s)", i.Version, strings.Join(details, ", "))
}

// Resolve returns the version string shown by the CLI.
func Resolve() string {
	return Get().String()
}

// Get combines the link-time variables with the VCS stamp Go embeds in
// binaries built from a checkout.
func Get() Info {
	return resolve(Version, Commit, Date, debug.ReadBuildInfo)
}

func resolve(base, commit, date string, read func() (*debug.BuildInfo, bool)) Info {
	if base == "" {
		base = "0.0.0"
	}
	info := Info{Version: base, Commit: commit, Date: date}

	bi, ok := read()
	if !ok || bi == nil {
		return info
	}
	info.GoVersion = bi.GoVersion

	if v := strings.TrimPrefix(bi.Main.Version, "v"); v != "" && v != "(devel)" && commit == "" {
		info.Version = v
	}

	var revision, vcsTime string
	dirty := false
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			vcsTime = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if info.Commit == "" && revision != "" {
		if len(revision) > 12 {
			revision = revision[:12]
		}
		info.Commit = revision
		if dirty {
			info.Commit += "-dirty"
		}
	}
	if info.Date == "" {
		info.Date = vcsTime
	}
	return info
}
