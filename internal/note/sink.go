package note

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fmueller/voxnote/internal/fileio"
	"github.com/fmueller/voxnote/internal/ledger"
	"github.com/fmueller/voxnote/internal/transcribe"
)

const notePerm = 0o644

// VaultSink writes the transcript note, and the summary note when there is a
// summary, next to the audio file.
type VaultSink struct {
	Renderer Renderer
	Logger   *zap.Logger
}

func (s *VaultSink) Publish(_ context.Context, doc transcribe.Document) (ledger.Outputs, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	meta := Meta{AudioPath: doc.AudioPath, Info: doc.Info, Created: doc.ProcessedAt}

	var out ledger.Outputs
	data, err := s.Renderer.Transcription(meta, doc.Transcript)
	if err != nil {
		return out, err
	}
	path := TranscriptionPath(doc.AudioPath)
	if err := fileio.WriteAtomic(path, data, notePerm); err != nil {
		return out, fmt.Errorf("write transcription note: %w", err)
	}
	logger.Info("saved note", zap.String("path", path))
	out.Transcription = path

	if strings.TrimSpace(doc.Summary) == "" {
		return out, nil
	}
	data, err = s.Renderer.Summary(meta, doc.Transcript, doc.Summary)
	if err != nil {
		return out, err
	}
	path = SummaryPath(doc.AudioPath)
	if err := fileio.WriteAtomic(path, data, notePerm); err != nil {
		return out, fmt.Errorf("write summary note: %w", err)
	}
	logger.Info("saved note", zap.String("path", path))
	out.Summary = path
	return out, nil
}

// TextSink writes the plain transcript to Path and the summary, if any, to
// a sibling Markdown file.
type TextSink struct {
	Path string
}

func (s *TextSink) Publish(_ context.Context, doc transcribe.Document) (ledger.Outputs, error) {
	var out ledger.Outputs
	if err := fileio.WriteAtomic(s.Path, []byte(strings.TrimSpace(doc.Transcript)+"\n"), notePerm); err != nil {
		return out, fmt.Errorf("write transcript: %w", err)
	}
	out.Transcription = s.Path

	if strings.TrimSpace(doc.Summary) == "" {
		return out, nil
	}
	ext := filepath.Ext(s.Path)
	summaryPath := strings.TrimSuffix(s.Path, ext) + SummarySuffix + ".md"
	if err := fileio.WriteAtomic(summaryPath, []byte(strings.TrimSpace(doc.Summary)+"\n"), notePerm); err != nil {
		return out, fmt.Errorf("write summary: %w", err)
	}
	out.Summary = summaryPath
	return out, nil
}
