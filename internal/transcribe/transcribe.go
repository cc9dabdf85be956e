// Package transcribe drives one audio file from hashing to a ledger entry:
// it plans segments, transcribes them in order through a retrying backend,
// merges and optionally summarises the text, publishes the result and
// records the outcome.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fmueller/voxnote/internal/audio"
	"github.com/fmueller/voxnote/internal/backend"
	"github.com/fmueller/voxnote/internal/fileio"
	"github.com/fmueller/voxnote/internal/ledger"
	"github.com/fmueller/voxnote/internal/retry"
	"github.com/fmueller/voxnote/internal/segment"
)

// DefaultVADThreshold is the duration above which a file is split at
// detected silence.
const DefaultVADThreshold = 600 * time.Second

const (
	segmentSeparator   = "\n\n"
	missingSegmentText = "[transcription unavailable for %s]"
)

var (
	// ErrLedger is returned when the outcome of a file could not be
	// recorded. It is fatal for the caller.
	ErrLedger            = errors.New("ledger write failed")
	ErrCancelled         = errors.New("processing cancelled")
	ErrAllSegmentsFailed = errors.New("no segment could be transcribed")
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Codec is the audio work the orchestrator delegates.
type Codec interface {
	Probe(ctx context.Context, path string) (audio.Info, error)
	DecodePCM(ctx context.Context, path string, sampleRate int) (audio.PCM, error)
	Extract(ctx context.Context, path string, start, end time.Duration) (audio.Clip, error)
}

type Detector interface {
	Detect(samples []float32, sampleRate int) ([]segment.Interval, error)
}

type Ledger interface {
	Lookup(hash string) (ledger.Entry, bool)
	Record(r ledger.Record) (ledger.Entry, error)
}

// Document is what a Sink publishes for a completed file.
type Document struct {
	AudioPath   string
	Hash        string
	Info        audio.Info
	Segments    []segment.Segment
	Transcript  string
	Summary     string
	ProcessedAt time.Time
}

// Sink writes the output documents of a completed file and reports where
// they went.
type Sink interface {
	Publish(ctx context.Context, doc Document) (ledger.Outputs, error)
}

type Config struct {
	Backend  backend.Backend
	Codec    Codec
	Detector Detector
	Ledger   Ledger
	Sink     Sink

	// Policy is used as given; its zero value makes a single attempt with
	// no timeout. Use retry.DefaultPolicy for the standard schedule.
	Policy       retry.Policy
	Segment      segment.Options
	VADThreshold time.Duration
	SampleRate   int

	Logger *zap.Logger
	Now    func() time.Time
}

type Options struct {
	UseVAD    bool
	Summarize bool
	// Force reprocesses files whose content is already recorded as
	// completed.
	Force bool
	// AllowPartial keeps a file whose segments partly failed, with a
	// placeholder line for each missing segment.
	AllowPartial bool
	// Context is passed to the summary prompt.
	Context string

	OnSegment func(done, total int)
}

type Result struct {
	RunID      string
	Path       string
	Hash       string
	Status     Status
	Info       audio.Info
	Segments   []segment.Segment
	Stats      segment.Stats
	Transcript string
	Summary    string
	Outputs    ledger.Outputs
	Entry      ledger.Entry

	// FailedSegments lists segments replaced by a placeholder.
	FailedSegments []int
	SummaryErr     error
	Err            error
	Elapsed        time.Duration
}

type Orchestrator struct {
	cfg Config
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Backend == nil {
		return nil, errors.New("transcribe: backend is required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("transcribe: codec is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("transcribe: ledger is required")
	}
	if cfg.VADThreshold <= 0 {
		cfg.VADThreshold = DefaultVADThreshold
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Segment == (segment.Options{}) {
		cfg.Segment = segment.DefaultOptions()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{cfg: cfg}, nil
}

// Process runs one file to completion. A failed file is recorded in the
// ledger and its cause returned; the error wraps ErrLedger only when the
// ledger itself could not be written.
func (o *Orchestrator) Process(ctx context.Context, path string, opts Options) (Result, error) {
	start := o.cfg.Now()
	res := Result{RunID: uuid.NewString(), Path: path}
	logger := o.cfg.Logger.With(zap.String("run_id", res.RunID), zap.String("audio", path))

	hash, size, err := fileio.HashFile(path)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res, fmt.Errorf("audio file not readable: %w", err)
	}
	res.Hash = hash
	res.Info.Size = size

	if entry, ok := o.cfg.Ledger.Lookup(hash); ok && entry.Status == ledger.StatusCompleted && !opts.Force {
		logger.Info("already processed, skipping", zap.String("recorded_as", entry.Path))
		res.Status = StatusSkipped
		res.Entry = entry
		res.Outputs = entry.Outputs
		return res, nil
	}

	// Calls that reach the backend are not interrupted once started.
	callCtx := context.WithoutCancel(ctx)

	info, err := o.cfg.Codec.Probe(ctx, path)
	if err != nil {
		return o.fail(logger, res, start, cancelled(ctx, fmt.Errorf("probe audio: %w", err)))
	}
	if info.Size == 0 {
		info.Size = size
	}
	res.Info = info
	logger.Info("processing audio", zap.Duration("duration", info.Duration), zap.Int64("bytes", info.Size))

	segs, stats, err := o.plan(ctx, path, info.Duration, opts.UseVAD, logger)
	if err != nil {
		return o.fail(logger, res, start, cancelled(ctx, err))
	}
	res.Segments, res.Stats = segs, stats

	texts := make([]string, len(segs))
	for i, seg := range segs {
		if err := ctx.Err(); err != nil {
			return o.fail(logger, res, start, fmt.Errorf("%w before segment %d: %w", ErrCancelled, seg.Index, err))
		}

		text, err := o.transcribeSegment(callCtx, path, info.Size, seg, len(segs), logger)
		switch {
		case err == nil:
			texts[i] = text
		case opts.AllowPartial && len(segs) > 1:
			logger.Warn("segment failed, keeping placeholder", zap.Int("segment", seg.Index), zap.Error(err))
			texts[i] = fmt.Sprintf(missingSegmentText, seg)
			res.FailedSegments = append(res.FailedSegments, seg.Index)
		default:
			return o.fail(logger, res, start, fmt.Errorf("segment %d (%s): %w", seg.Index, seg, err))
		}
		if opts.OnSegment != nil {
			opts.OnSegment(i+1, len(segs))
		}
	}
	if len(res.FailedSegments) == len(segs) {
		return o.fail(logger, res, start, ErrAllSegmentsFailed)
	}
	res.Transcript = strings.Join(texts, segmentSeparator)

	if opts.Summarize && strings.TrimSpace(res.Transcript) != "" {
		summary, err := retry.Do(callCtx, o.policy(logger), "summarize", func(ctx context.Context) (string, error) {
			return o.cfg.Backend.Summarize(ctx, backend.SummaryRequest{Transcript: res.Transcript, Context: opts.Context})
		})
		if err != nil {
			logger.Warn("summary failed, keeping transcript", zap.Error(err))
			res.SummaryErr = err
		} else {
			res.Summary = summary
		}
	}

	if o.cfg.Sink != nil {
		outputs, err := o.cfg.Sink.Publish(callCtx, Document{
			AudioPath:   path,
			Hash:        hash,
			Info:        info,
			Segments:    segs,
			Transcript:  res.Transcript,
			Summary:     res.Summary,
			ProcessedAt: o.cfg.Now(),
		})
		if err != nil {
			return o.fail(logger, res, start, fmt.Errorf("publish outputs: %w", err))
		}
		res.Outputs = outputs
	}

	entry, err := o.cfg.Ledger.Record(ledger.Record{
		Path:     path,
		Hash:     hash,
		Status:   ledger.StatusCompleted,
		Outputs:  res.Outputs,
		Metadata: ledger.NewMetadata(info.Duration, info.Size),
	})
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res, fmt.Errorf("%w: %w", ErrLedger, err)
	}

	res.Status = StatusCompleted
	res.Entry = entry
	res.Elapsed = o.cfg.Now().Sub(start)
	logger.Info("processing complete",
		zap.Int("segments", len(segs)),
		zap.Int("characters", len([]rune(res.Transcript))),
		zap.Bool("summary", res.Summary != ""),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (o *Orchestrator) plan(ctx context.Context, path string, duration time.Duration, useVAD bool, logger *zap.Logger) ([]segment.Segment, segment.Stats, error) {
	if !useVAD || duration <= o.cfg.VADThreshold || o.cfg.Detector == nil {
		segs, err := segment.Single(duration)
		if err != nil {
			return nil, segment.Stats{}, fmt.Errorf("plan segments: %w", err)
		}
		return segs, segment.Stats{}, nil
	}

	pcm, err := o.cfg.Codec.DecodePCM(ctx, path, o.cfg.SampleRate)
	if err != nil {
		return nil, segment.Stats{}, fmt.Errorf("decode audio for voice detection: %w", err)
	}
	intervals, err := o.cfg.Detector.Detect(pcm.Samples, pcm.SampleRate)
	if err != nil {
		return nil, segment.Stats{}, fmt.Errorf("detect speech: %w", err)
	}
	segs, stats, err := segment.PlanWithStats(duration, intervals, o.cfg.Segment)
	if err != nil {
		return nil, segment.Stats{}, fmt.Errorf("plan segments: %w", err)
	}
	logger.Info("split audio at silence",
		zap.Int("segments", len(segs)),
		zap.Int("speech_intervals", len(intervals)),
		zap.Int("silence_cuts", stats.SilenceCuts),
		zap.Int("hard_cuts", stats.HardCuts),
	)
	return segs, stats, nil
}

func (o *Orchestrator) transcribeSegment(ctx context.Context, path string, size int64, seg segment.Segment, total int, logger *zap.Logger) (string, error) {
	a := backend.Audio{
		Name:  filepath.Base(path),
		Index: seg.Index,
		Total: total,
		Start: seg.Start,
		End:   seg.End,
	}
	limit := backend.UploadLimit(o.cfg.Backend)
	if total == 1 && (limit <= 0 || size <= limit) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read audio: %w", err)
		}
		a.Data, a.MIMEType = data, audio.MIMEType(path)
	} else {
		if total == 1 {
			logger.Info("file exceeds upload limit, sending compressed copy",
				zap.Int64("bytes", size), zap.Int64("limit", limit))
		}
		clip, err := o.cfg.Codec.Extract(ctx, path, seg.Start, seg.End)
		if err != nil {
			return "", err
		}
		a.Data, a.MIMEType = clip.Data, clip.MIMEType
	}

	logger.Debug("transcribing segment", zap.Int("segment", seg.Index), zap.Stringer("range", seg), zap.Int("bytes", len(a.Data)))
	return retry.Do(ctx, o.policy(logger), fmt.Sprintf("transcribe segment %d", seg.Index), func(ctx context.Context) (string, error) {
		return o.cfg.Backend.Transcribe(ctx, a)
	})
}

// cancelled marks err as ErrCancelled when ctx ended while the failing
// step ran, so an interrupted subprocess is not reported as a bad file.
func cancelled(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrCancelled) {
		return fmt.Errorf("%w: %w: %w", ErrCancelled, ctxErr, err)
	}
	return err
}

func (o *Orchestrator) policy(logger *zap.Logger) retry.Policy {
	p := o.cfg.Policy
	p.Logger = logger
	return p
}

func (o *Orchestrator) fail(logger *zap.Logger, res Result, start time.Time, cause error) (Result, error) {
	res.Status = StatusFailed
	res.Err = cause
	res.Elapsed = o.cfg.Now().Sub(start)
	logger.Error("processing failed", zap.Error(cause), zap.Duration("elapsed", res.Elapsed))

	entry, err := o.cfg.Ledger.Record(ledger.Record{
		Path:     res.Path,
		Hash:     res.Hash,
		Status:   ledger.StatusFailed,
		Metadata: ledger.NewMetadata(res.Info.Duration, res.Info.Size),
		Err:      cause.Error(),
	})
	if err != nil {
		return res, errors.Join(cause, fmt.Errorf("%w: %w", ErrLedger, err))
	}
	res.Entry = entry
	return res, cause
}
