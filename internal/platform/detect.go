package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "voxnote"

type Runtime struct {
	OS   string
	Arch string
}

func CurrentRuntime() Runtime {
	return Runtime{
		OS:   runtime.GOOS,
		Arch: NormalizeArch(runtime.GOARCH),
	}
}

func NormalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}

// Dirs are the per-user locations voxnote reads and writes.
type Dirs struct {
	Data   string
	Config string
}

func DirsFor(goos, homeDir, xdgDataHome, xdgConfigHome string) (Dirs, error) {
	if homeDir == "" {
		return Dirs{}, errors.New("home directory is empty")
	}

	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		d := Dirs{
			Data:   filepath.Join(homeDir, ".local", "share", appName),
			Config: filepath.Join(homeDir, ".config", appName),
		}
		if xdgDataHome != "" {
			d.Data = filepath.Join(xdgDataHome, appName)
		}
		if xdgConfigHome != "" {
			d.Config = filepath.Join(xdgConfigHome, appName)
		}
		return d, nil
	case "darwin":
		base := filepath.Join(homeDir, "Library", "Application Support", appName)
		return Dirs{Data: base, Config: base}, nil
	default:
		return Dirs{}, fmt.Errorf("unsupported OS: %s", goos)
	}
}

func ResolveDirs() (Dirs, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Dirs{}, fmt.Errorf("resolve user home: %w", err)
	}
	return DirsFor(runtime.GOOS, homeDir, os.Getenv("XDG_DATA_HOME"), os.Getenv("XDG_CONFIG_HOME"))
}

// ResolveLedgerPath returns override when set, else the ledger in the user
// data directory.
func ResolveLedgerPath(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}
	dirs, err := ResolveDirs()
	if err != nil {
		return "", err
	}
	return filepath.Join(dirs.Data, "ledger.json"), nil
}

// ResolveConfigPath returns override when set, else config.yaml in the user
// config directory.
func ResolveConfigPath(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}
	dirs, err := ResolveDirs()
	if err != nil {
		return "", err
	}
	return filepath.Join(dirs.Config, "config.yaml"), nil
}
