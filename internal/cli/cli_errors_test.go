package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCLIErrorCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		args        []string
		errContains string
	}{
		{
			name:        "unknown command",
			args:        []string{"badcmd"},
			errContains: "unknown command",
		},
		{
			name:        "unknown root flag",
			args:        []string{"--badflag"},
			errContains: "unknown flag",
		},
		{
			name:        "unknown subcommand flag",
			args:        []string{"transcribe", "--bogus", "f.wav"},
			errContains: "unknown flag",
		},
		{
			name:        "transcribe missing arg",
			args:        []string{"transcribe"},
			errContains: "accepts 1 arg(s)",
		},
		{
			name:        "transcribe too many args",
			args:        []string{"transcribe", "a.wav", "b.wav"},
			errContains: "accepts 1 arg(s)",
		},
		{
			name:        "transcribe nonexistent file",
			args:        []string{"transcribe", "/no/such/file.wav"},
			errContains: "audio file not found",
		},
		{
			name:        "watch missing arg",
			args:        []string{"watch"},
			errContains: "accepts 1 arg(s)",
		},
		{
			name:        "watch nonexistent folder",
			args:        []string{"watch", "/no/such/vault"},
			errContains: "watch folder not found",
		},
		{
			name:        "ledger forget missing arg",
			args:        []string{"ledger", "forget"},
			errContains: "accepts 1 arg(s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := runCommand(t, tt.args)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestUnknownProviderIsRejected(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, &fakeBackend{})
	_, err := runApp(t, app, "--provider", "whisper.cpp", "config", "show")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown provider")
}

func TestExplicitConfigFileMustExist(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, &fakeBackend{})
	_, err := runApp(t, app, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "config", "show")
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config")
}

func TestVersionFlagOutput(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"--version"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "voxnote v"), "expected version prefix, got: %s", stdout)
}

func TestVersionCommandOutput(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"version"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "voxnote v"), "expected version prefix, got: %s", stdout)
}
