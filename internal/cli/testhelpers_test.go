package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fmueller/voxnote/internal/audio"
	"github.com/fmueller/voxnote/internal/backend"
	"github.com/fmueller/voxnote/internal/config"
	"github.com/fmueller/voxnote/internal/transcribe"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := NewRootCmd()
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

// runApp executes args against app. Config and dotenv lookups point at
// files that do not exist so the user's environment never leaks in.
func runApp(t *testing.T, app *appState, args ...string) (string, error) {
	t.Helper()
	return runAppContext(context.Background(), t, app, args...)
}

func runAppContext(ctx context.Context, t *testing.T, app *appState, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd(app)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"--no-progress"}, args...))

	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func newTestApp(t *testing.T, be backend.Backend) *appState {
	t.Helper()

	dir := t.TempDir()
	app := &appState{
		cfg:        config.Default(),
		configPath: filepath.Join(dir, "missing.yaml"),
		envFile:    filepath.Join(dir, "missing.env"),
		getenv:     func(string) string { return "" },
		now:        func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) },
	}
	app.backendFn = func(context.Context) (backend.Backend, error) { return be, nil }
	app.codecFn = func() transcribe.Codec { return fakeCodec{duration: 42 * time.Second} }
	return app
}

func writeAudio(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type fakeBackend struct {
	mu         sync.Mutex
	transcript string
	summary    string
	err        error
	calls      int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Transcribe(_ context.Context, _ backend.Audio) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.transcript, nil
}

func (f *fakeBackend) Summarize(_ context.Context, _ backend.SummaryRequest) (string, error) {
	return f.summary, nil
}

func (f *fakeBackend) transcribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCodec struct {
	duration time.Duration
}

func (c fakeCodec) Probe(_ context.Context, path string) (audio.Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return audio.Info{}, err
	}
	return audio.Info{Format: "wav", Duration: c.duration, Size: st.Size()}, nil
}

func (c fakeCodec) DecodePCM(context.Context, string, int) (audio.PCM, error) {
	return audio.PCM{}, nil
}

func (c fakeCodec) Extract(_ context.Context, path string, _, _ time.Duration) (audio.Clip, error) {
	return audio.Clip{Data: []byte("clip"), MIMEType: audio.MIMEType(path)}, nil
}
