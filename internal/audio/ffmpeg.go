package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrFFmpegMissing = errors.New("ffmpeg not found")

// Info is what the codec reports about an input file.
type Info struct {
	Format   string
	Duration time.Duration
	Size     int64
}

// Clip is an encoded slice of a recording ready to be uploaded.
type Clip struct {
	Data     []byte
	MIMEType string
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// FFmpeg delegates decoding, probing and cutting to the ffmpeg and ffprobe
// executables. VOXNOTE_FFMPEG_PATH and VOXNOTE_FFPROBE_PATH override the
// lookup on PATH.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	Logger      *zap.Logger

	run runFunc
}

func NewFFmpeg(logger *zap.Logger) *FFmpeg {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpeg{
		FFmpegPath:  resolveTool("VOXNOTE_FFMPEG_PATH", "ffmpeg"),
		FFprobePath: resolveTool("VOXNOTE_FFPROBE_PATH", "ffprobe"),
		Logger:      logger,
		run:         runCommand,
	}
}

func resolveTool(envKey, name string) string {
	if override := strings.TrimSpace(os.Getenv(envKey)); override != "" {
		return override
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return ""
}

// EnsureAvailable reports a missing ffmpeg with an install hint for the
// current platform.
func (f *FFmpeg) EnsureAvailable() error {
	if f.FFmpegPath == "" {
		return fmt.Errorf("%w; %s", ErrFFmpegMissing, installHint(runtime.GOOS))
	}
	return nil
}

func installHint(goos string) string {
	switch goos {
	case "darwin":
		return "install it with `brew install ffmpeg`"
	case "linux":
		return "install it with your package manager, e.g. `sudo apt install ffmpeg`"
	case "windows":
		return "install it with `winget install ffmpeg` or from https://ffmpeg.org/download.html"
	default:
		return "install it from https://ffmpeg.org/download.html"
	}
}

// Probe reads duration and container format. WAV headers are parsed in
// process; everything else goes through ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("audio file not found: %w", err)
	}

	if IsWAV(path) {
		header, err := ReadWAVHeader(path)
		if err == nil {
			return Info{Format: "wav", Duration: header.Duration(), Size: stat.Size()}, nil
		}
		f.log().Debug("wav header unreadable; falling back to ffprobe", zap.String("audio", path), zap.Error(err))
	}

	if f.FFprobePath == "" {
		return Info{}, fmt.Errorf("ffprobe not found; %s", installHint(runtime.GOOS))
	}

	out, err := f.runner()(ctx, f.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration,format_name",
		"-of", "json",
		path,
	)
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	info, err := parseProbe(out)
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	info.Size = stat.Size()
	return info, nil
}

func parseProbe(out []byte) (Info, error) {
	var probe struct {
		Format struct {
			FormatName string `json:"format_name"`
			Duration   string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return Info{}, fmt.Errorf("decode probe output: %w", err)
	}
	if probe.Format.Duration == "" || probe.Format.Duration == "N/A" {
		return Info{}, errors.New("duration not reported")
	}
	seconds, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return Info{}, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
	}
	return Info{
		Format:   probe.Format.FormatName,
		Duration: time.Duration(seconds * float64(time.Second)),
	}, nil
}

// DecodePCM decodes the whole file to mono samples at sampleRate.
func (f *FFmpeg) DecodePCM(ctx context.Context, path string, sampleRate int) (PCM, error) {
	if IsWAV(path) {
		if header, err := ReadWAVHeader(path); err == nil && header.SampleRate == sampleRate && header.Channels == 1 {
			file, err := os.Open(path)
			if err != nil {
				return PCM{}, fmt.Errorf("open wav: %w", err)
			}
			defer file.Close()
			return DecodeWAV(file)
		}
	}

	if err := f.EnsureAvailable(); err != nil {
		return PCM{}, err
	}

	started := time.Now()
	out, err := f.runner()(ctx, f.FFmpegPath,
		"-nostdin",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-loglevel", "error",
		"pipe:1",
	)
	if err != nil {
		return PCM{}, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}
	samples := make([]float32, len(out)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(out[i*2:i*2+2]))) / 32768.0
	}

	f.log().Debug("decoded audio",
		zap.String("audio", path),
		zap.Int("samples", len(samples)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return PCM{SampleRate: sampleRate, Samples: samples}, nil
}

// Extract cuts [start, end) out of the recording as mono 16 kHz FLAC.
func (f *FFmpeg) Extract(ctx context.Context, path string, start, end time.Duration) (Clip, error) {
	if end <= start {
		return Clip{}, fmt.Errorf("invalid clip range %s-%s", start, end)
	}
	if err := f.EnsureAvailable(); err != nil {
		return Clip{}, err
	}

	out, err := f.runner()(ctx, f.FFmpegPath,
		"-nostdin",
		"-ss", formatSeconds(start),
		"-i", path,
		"-t", formatSeconds(end-start),
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "flac",
		"-f", "flac",
		"-loglevel", "error",
		"pipe:1",
	)
	if err != nil {
		return Clip{}, fmt.Errorf("ffmpeg extract %s [%s-%s]: %w", path, start, end, err)
	}
	if len(out) == 0 {
		return Clip{}, fmt.Errorf("ffmpeg extract %s [%s-%s]: empty output", path, start, end)
	}
	return Clip{Data: out, MIMEType: "audio/flac"}, nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func (f *FFmpeg) runner() runFunc {
	if f.run == nil {
		return runCommand
	}
	return f.run
}

func (f *FFmpeg) log() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		errText := strings.TrimSpace(stderr.String())
		if errText == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%w (%s)", err, errText)
	}
	return stdout.Bytes(), nil
}
