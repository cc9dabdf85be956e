package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fmueller/voxnote/internal/backend"
	"github.com/fmueller/voxnote/internal/ledger"
	"github.com/fmueller/voxnote/internal/note"
	"github.com/fmueller/voxnote/internal/transcribe"
	"github.com/fmueller/voxnote/internal/watch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type watchOptions struct {
	scanExisting bool
	cleanup      bool
	noVAD        bool
	noSummary    bool
	allowPartial bool
	dbPath       string
}

func newWatchCmd(app *appState) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch <folder>",
		Short: "Watch a notes vault and transcribe new recordings",
		Long: `Watch a folder and every non-hidden folder below it. Audio files that
stop changing are transcribed one at a time, and Markdown notes are written
next to them. Press Ctrl+C to stop.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runWatch(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.scanExisting, "scan-existing", false, "Also process audio files already in the folder")
	cmd.Flags().BoolVar(&opts.cleanup, "cleanup", false, "Remove ledger entries for files no longer in the folder before watching")
	cmd.Flags().BoolVar(&opts.noVAD, "no-vad", false, "Send the whole file in one request without splitting")
	cmd.Flags().BoolVar(&opts.noSummary, "no-summary", false, "Skip summaries")
	cmd.Flags().BoolVar(&opts.allowPartial, "allow-partial", false, "Keep transcripts when some segments fail")
	cmd.Flags().StringVar(&opts.dbPath, "db-path", "", "Ledger file (default inside the vault)")
	return cmd
}

func (a *appState) runWatch(ctx context.Context, folder string, opts watchOptions) error {
	folder = absPath(folder)
	info, err := os.Stat(folder)
	if err != nil {
		return fmt.Errorf("watch folder not found: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", folder)
	}

	ledgerPath := opts.dbPath
	if ledgerPath == "" {
		ledgerPath = ledger.PathForVault(folder)
	}

	p, err := a.newPipeline(ctx, ledgerPath, func(be backend.Backend) transcribe.Sink {
		return &note.VaultSink{Renderer: a.renderer(folder, be), Logger: a.log()}
	})
	if err != nil {
		return err
	}

	if opts.cleanup || a.cfg.Watch.Cleanup {
		if err := sweepVault(p.ledger, folder, a.log()); err != nil {
			return err
		}
	}

	w, err := watch.New(folder, watch.Options{SettleDelay: a.cfg.Watch.SettleDelay.Std(), Logger: a.log()})
	if err != nil {
		return err
	}

	if opts.scanExisting || a.cfg.Watch.ScanExisting {
		queued, err := enqueueExisting(w, p.ledger, folder)
		if err != nil {
			_ = w.Close()
			return err
		}
		a.log().Info("queued existing audio files", zap.Int("count", queued))
	}

	procOpts := transcribe.Options{
		UseVAD:       a.cfg.VAD.Enabled && !opts.noVAD,
		Summarize:    a.cfg.Summary && !opts.noSummary,
		AllowPartial: opts.allowPartial,
		Context:      a.cfg.Context,
	}
	err = w.Run(ctx, func(ctx context.Context, path string) error {
		return a.handleWatched(ctx, p.orchestrator, path, procOpts)
	})

	report := p.ledger.Report()
	a.log().Info("ledger totals",
		zap.Int("files", report.TotalFiles),
		zap.Int("completed", report.StatusBreakdown[ledger.StatusCompleted]),
		zap.Int("failed", report.StatusBreakdown[ledger.StatusFailed]),
		zap.Float64("hours", report.TotalHours),
	)
	return err
}

// handleWatched processes one settled file. Only a ledger failure stops the
// watcher; every other failure is already recorded and logged.
func (a *appState) handleWatched(ctx context.Context, orch *transcribe.Orchestrator, path string, opts transcribe.Options) error {
	res, err := orch.Process(ctx, path, opts)
	switch {
	case errors.Is(err, transcribe.ErrLedger):
		return err
	case errors.Is(err, transcribe.ErrCancelled):
		a.log().Info("processing interrupted", zap.String("audio", path))
		return nil
	case err != nil:
		a.log().Error("processing failed", zap.String("audio", path), zap.Error(err))
		return nil
	}

	switch res.Status {
	case transcribe.StatusSkipped:
		a.log().Info("already processed", zap.String("audio", path))
	default:
		if res.SummaryErr != nil {
			a.log().Warn("summary failed; transcript kept", zap.String("audio", path), zap.Error(res.SummaryErr))
		}
		a.log().Info("processed",
			zap.String("audio", path),
			zap.Int("segments", len(res.Segments)),
			zap.Duration("elapsed", res.Elapsed),
			zap.String("transcription", res.Outputs.Transcription),
		)
	}
	return nil
}

func enqueueExisting(w *watch.Watcher, led *ledger.Ledger, folder string) (int, error) {
	files, err := watch.Scan(folder)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, path := range files {
		// Completed paths need no hashing on startup.
		if e, ok := led.LookupPath(path); ok && e.Status == ledger.StatusCompleted {
			continue
		}
		if w.Enqueue(path) {
			queued++
		}
	}
	return queued, nil
}

func sweepVault(led *ledger.Ledger, folder string, logger *zap.Logger) error {
	files, err := watch.Scan(folder)
	if err != nil {
		return err
	}
	removed, err := led.SweepOrphans(files)
	if err != nil {
		return fmt.Errorf("%w: %w", transcribe.ErrLedger, err)
	}
	logger.Info("ledger cleanup finished", zap.Int("removed", len(removed)))
	return nil
}
