package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirsForLinuxWithXDG(t *testing.T) {
	t.Parallel()

	dirs, err := DirsFor("linux", "/home/dev", "/tmp/xdg-data", "/tmp/xdg-config")
	require.NoError(t, err)
	require.Equal(t, "/tmp/xdg-data/voxnote", dirs.Data)
	require.Equal(t, "/tmp/xdg-config/voxnote", dirs.Config)
}

func TestDirsForLinuxWithoutXDG(t *testing.T) {
	t.Parallel()

	dirs, err := DirsFor("linux", "/home/dev", "", "")
	require.NoError(t, err)
	require.Equal(t, "/home/dev/.local/share/voxnote", dirs.Data)
	require.Equal(t, "/home/dev/.config/voxnote", dirs.Config)
}

func TestDirsForMacOS(t *testing.T) {
	t.Parallel()

	dirs, err := DirsFor("darwin", "/Users/dev", "/ignored", "")
	require.NoError(t, err)
	require.Equal(t, "/Users/dev/Library/Application Support/voxnote", dirs.Data)
	require.Equal(t, dirs.Data, dirs.Config)
}

func TestDirsForUnsupportedOS(t *testing.T) {
	t.Parallel()

	_, err := DirsFor("plan9", "/usr/dev", "", "")
	require.Error(t, err)

	_, err = DirsFor("linux", "", "", "")
	require.Error(t, err)
}

func TestResolveOverrides(t *testing.T) {
	t.Parallel()

	path, err := ResolveLedgerPath("/tmp/x/../ledger.json")
	require.NoError(t, err)
	require.Equal(t, "/tmp/ledger.json", path)

	path, err = ResolveConfigPath("/etc/voxnote.yaml")
	require.NoError(t, err)
	require.Equal(t, "/etc/voxnote.yaml", path)
}

func TestNormalizeArch(t *testing.T) {
	t.Parallel()

	require.Equal(t, "amd64", NormalizeArch("x86_64"))
	require.Equal(t, "arm64", NormalizeArch("aarch64"))
	require.Equal(t, "riscv64", NormalizeArch("riscv64"))
}
