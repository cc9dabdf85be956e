package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildInfo(mainVersion string, settings ...debug.BuildSetting) func() (*debug.BuildInfo, bool) {
	return func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			GoVersion: "go1.26.0",
			Main:      debug.Module{Path: "github.com/fmueller/voxnote", Version: mainVersion},
			Settings:  settings,
		}, true
	}
}

func noBuildInfo() (*debug.BuildInfo, bool) {
	return nil, false
}

func TestResolve_LinkTimeValuesWin(t *testing.T) {
	t.Parallel()
	got := resolve("1.2.0", "abc123", "2025-01-02", buildInfo("v9.9.9",
		debug.BuildSetting{Key: "vcs.revision", Value: "ffffffffffffffff"},
	))
	require.Equal(t, "1.2.0", got.Version)
	require.Equal(t, "abc123", got.Commit)
	require.Equal(t, "2025-01-02", got.Date)
	require.Equal(t, "1.2.0 (abc123, 2025-01-02, go1.26.0)", got.String())
}

func TestResolve_VCSStamp(t *testing.T) {
	t.Parallel()
	got := resolve("0.1.0", "", "", buildInfo("(devel)",
		debug.BuildSetting{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		debug.BuildSetting{Key: "vcs.time", Value: "2025-03-01T10:00:00Z"},
		debug.BuildSetting{Key: "vcs.modified", Value: "true"},
	))
	require.Equal(t, "0.1.0", got.Version)
	require.Equal(t, "0123456789ab-dirty", got.Commit)
	require.Equal(t, "2025-03-01T10:00:00Z", got.Date)
}

func TestResolve_ModuleVersionFromGoInstall(t *testing.T) {
	t.Parallel()
	got := resolve("0.1.0", "", "", buildInfo("v0.3.1"))
	require.Equal(t, "0.3.1", got.Version)
}

func TestResolve_NoBuildInfo(t *testing.T) {
	t.Parallel()
	got := resolve("0.1.0", "", "", noBuildInfo)
	require.Equal(t, "0.1.0", got.String())
}

func TestResolve_EmptyBaseFallsBackToZero(t *testing.T) {
	t.Parallel()
	got := resolve("", "", "", noBuildInfo)
	require.Equal(t, "0.0.0", got.Version)
}
