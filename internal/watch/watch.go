// Package watch turns file system activity under a folder into a stream of
// audio files that are ready to process, one at a time.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fmueller/voxnote/internal/audio"
)

const DefaultSettleDelay = 2 * time.Second

// Handler processes one settled file. A returned error stops the watcher.
type Handler func(ctx context.Context, path string) error

type Options struct {
	// SettleDelay is how long a file must stay quiet before it is queued.
	SettleDelay time.Duration
	Logger      *zap.Logger
}

type Watcher struct {
	root    string
	opts    Options
	fsw     *fsnotify.Watcher
	queue   *Queue
	settler *settler
}

// New watches root and every directory below it that is not hidden.
func New(root string, opts Options) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch folder not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch folder %s is not a directory", root)
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	w := &Watcher{
		root:  root,
		opts:  opts,
		fsw:   fsw,
		queue: NewQueue(),
	}
	w.settler = newSettler(opts.SettleDelay, w.settled)

	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Enqueue schedules path for processing without waiting for it to settle.
func (w *Watcher) Enqueue(path string) bool {
	return w.queue.Push(path)
}

// Close releases a watcher that will not be run.
func (w *Watcher) Close() error {
	w.settler.stop()
	return w.fsw.Close()
}

// Run delivers queued files to handle, strictly one after another, until
// ctx is cancelled or handle fails.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	defer w.settler.stop()
	defer w.fsw.Close()

	go w.loop(ctx)

	w.opts.Logger.Info("watching for audio files",
		zap.String("folder", w.root),
		zap.Strings("formats", audio.Extensions()),
	)
	for {
		path, err := w.queue.Pop(ctx)
		if err != nil {
			w.opts.Logger.Info("watcher stopped")
			return nil
		}
		if _, err := os.Stat(path); err != nil {
			w.opts.Logger.Debug("queued file disappeared", zap.String("path", path))
			continue
		}
		if err := handle(ctx, path); err != nil {
			return err
		}
	}
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.opts.Logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if ev.Has(fsnotify.Create) && !hidden(filepath.Base(ev.Name)) {
			if err := w.addTree(ev.Name); err != nil {
				w.opts.Logger.Warn("cannot watch new folder", zap.String("path", ev.Name), zap.Error(err))
			}
			// Files may have landed before the watch was in place.
			existing, _ := Scan(ev.Name)
			for _, p := range existing {
				w.settler.touch(p)
			}
		}
		return
	}
	if !audio.IsAudioFile(ev.Name) {
		return
	}
	w.opts.Logger.Debug("audio file activity", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
	w.settler.touch(ev.Name)
}

func (w *Watcher) settled(path string) {
	if w.queue.Push(path) {
		w.opts.Logger.Info("audio file detected", zap.String("path", path))
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Scan lists the audio files below root in lexical order, skipping hidden
// directories.
func Scan(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) && path != root {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != root && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && audio.IsAudioFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	slices.Sort(files)
	return files, nil
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
