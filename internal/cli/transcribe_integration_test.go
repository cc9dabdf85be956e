//go:build integration

package cli

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fmueller/voxnote/internal/audio/audiotest"
	"github.com/stretchr/testify/require"
)

// Runs the real ffmpeg codec and energy VAD against a synthetic recording
// with two long pauses; only the backend is faked.
func TestTranscribeSplitsLongRecordingWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	dir := t.TempDir()
	audioPath := filepath.Join(dir, "lecture.wav")
	samples := audiotest.Speech(16000, 50, 2, 50, 2, 46)
	require.NoError(t, os.WriteFile(audioPath, audiotest.PCM16WAV(samples, 16000, 1), 0o644))

	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
summary: false
vad:
  enabled: true
  min_length: 60s
  threshold: 0.5
  min_silence: 500ms
  speech_pad: 30ms
segment:
  max_length: 60s
  search_window: 20s
  min_tail: 5s
`), 0o644))

	be := &fakeBackend{transcript: "part"}
	app := newTestApp(t, be)
	app.codecFn = app.newCodec

	out, err := runApp(t, app, "--config", configPath, "transcribe", "--db-path", filepath.Join(dir, "ledger.json"), audioPath)
	require.NoError(t, err)
	require.Equal(t, 3, be.transcribeCalls())
	require.Equal(t, 3, strings.Count(out, "part"))
}
