package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigShowMasksKeys(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil)
	out, err := runApp(t, app, "--api-key", "AIzaSyExampleKey1234", "config", "show")
	require.NoError(t, err)
	require.Contains(t, out, "provider: gemini")
	require.Contains(t, out, "AIza...1234")
	require.NotContains(t, out, "AIzaSyExampleKey1234")
}

func TestConfigShowAppliesFileAndFlags(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: gemini\nsummary: false\n"), 0o644))

	app := newTestApp(t, nil)
	out, err := runApp(t, app, "--config", path, "--provider", "OpenAI", "config", "show")
	require.NoError(t, err)
	require.Contains(t, out, "provider: openai")
	require.Contains(t, out, "summary: false")
	require.False(t, app.cfg.Summary)
}

func TestConfigPathCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	app := newTestApp(t, nil)
	app.configPath = filepath.Join(dir, "voxnote.yaml")

	out, err := runApp(t, app, "config", "path")
	require.NoError(t, err)
	require.Contains(t, out, "config: "+filepath.Join(dir, "voxnote.yaml"))
}
