package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fmueller/voxnote/internal/audio"
	"github.com/fmueller/voxnote/internal/backend"
	"github.com/fmueller/voxnote/internal/note"
	"github.com/fmueller/voxnote/internal/platform"
	"github.com/fmueller/voxnote/internal/transcribe"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type transcribeOptions struct {
	output       string
	note         bool
	noVAD        bool
	noSummary    bool
	force        bool
	allowPartial bool
	dbPath       string
	context      string
}

func newTranscribeCmd(app *appState) *cobra.Command {
	var opts transcribeOptions

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file",
		Long: `Transcribe an audio file, splitting long recordings at pauses.

Without --output or --note the transcript (and summary) is printed to stdout.
Files already recorded as completed in the ledger are skipped unless --force
is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runTranscribe(cmd.Context(), args[0], opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the transcript to this file (summary goes to <name>_summary.md)")
	cmd.Flags().BoolVar(&opts.note, "note", false, "Write Markdown notes next to the audio file")
	cmd.Flags().BoolVar(&opts.noVAD, "no-vad", false, "Send the whole file in one request without splitting")
	cmd.Flags().BoolVar(&opts.noSummary, "no-summary", false, "Skip the summary")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Transcribe again even if the ledger has a completed entry")
	cmd.Flags().BoolVar(&opts.allowPartial, "allow-partial", false, "Keep the transcript when some segments fail")
	cmd.Flags().StringVar(&opts.dbPath, "db-path", "", "Ledger file (default <data dir>/voxnote/ledger.json)")
	cmd.Flags().StringVar(&opts.context, "context", "", "Extra context for the summary prompt")
	cmd.MarkFlagsMutuallyExclusive("output", "note")
	return cmd
}

func (a *appState) runTranscribe(ctx context.Context, audioPath string, opts transcribeOptions, out io.Writer) error {
	audioPath = absPath(audioPath)
	info, err := os.Stat(audioPath)
	if err != nil {
		return fmt.Errorf("audio file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory; use `voxnote watch %s` to process folders", audioPath, audioPath)
	}
	if !audio.IsAudioFile(audioPath) {
		return fmt.Errorf("unsupported audio format %q (supported: %s)", filepath.Ext(audioPath), strings.Join(audio.Extensions(), ", "))
	}

	ledgerPath, err := platform.ResolveLedgerPath(firstNonEmpty(opts.dbPath, a.cfg.LedgerPath))
	if err != nil {
		return err
	}

	p, err := a.newPipeline(ctx, ledgerPath, func(be backend.Backend) transcribe.Sink {
		switch {
		case opts.output != "":
			return &note.TextSink{Path: opts.output}
		case opts.note:
			return &note.VaultSink{Renderer: a.renderer(filepath.Dir(audioPath), be), Logger: a.log()}
		default:
			return nil
		}
	})
	if err != nil {
		return err
	}

	a.log().Info("transcribing...",
		zap.String("audio", audioPath),
		zap.String("backend", p.backend.Name()),
		zap.String("ledger", ledgerPath),
	)
	onSegment, stop := startSegmentProgress(a.progressEnabled(), "Transcribing")
	res, err := p.orchestrator.Process(ctx, audioPath, transcribe.Options{
		UseVAD:       a.cfg.VAD.Enabled && !opts.noVAD,
		Summarize:    a.cfg.Summary && !opts.noSummary,
		Force:        opts.force,
		AllowPartial: opts.allowPartial,
		Context:      firstNonEmpty(opts.context, a.cfg.Context),
		OnSegment:    onSegment,
	})
	stop()
	if err != nil {
		a.log().Warn("transcription failed", zap.Duration("elapsed", res.Elapsed), zap.Error(err))
		return err
	}

	if res.Status == transcribe.StatusSkipped {
		a.log().Info("already transcribed; use --force to run again",
			zap.String("audio", audioPath),
			zap.String("transcription", res.Entry.Outputs.Transcription),
		)
		return nil
	}

	if len(res.FailedSegments) > 0 {
		a.log().Warn("some segments could not be transcribed", zap.Ints("segments", res.FailedSegments))
	}
	if res.SummaryErr != nil {
		a.log().Warn("summary failed; transcript kept", zap.Error(res.SummaryErr))
	}
	if isBlankTranscript(res.Transcript) {
		a.log().Warn(noSpeechHint(audioPath))
	}

	if opts.output == "" && !opts.note {
		writeTranscript(out, res.Transcript, res.Summary)
	}
	a.log().Info("transcription finished",
		zap.Duration("elapsed", res.Elapsed),
		zap.Int("segments", len(res.Segments)),
		zap.String("transcription", res.Outputs.Transcription),
		zap.String("summary", res.Outputs.Summary),
	)
	return nil
}

// absPath keeps ledger keys stable no matter where voxnote is started.
func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
