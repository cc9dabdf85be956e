// Package ledger persists which audio files have been processed, keyed by
// path and deduplicated by content hash, in a single JSON document that is
// replaced atomically on every change.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fmueller/voxnote/internal/fileio"
	"go.uber.org/zap"
)

const SchemaVersion = "1.0.0"

var (
	ErrCorrupt           = errors.New("corrupt ledger")
	ErrUnsupportedSchema = errors.New("unsupported ledger schema version")
	ErrInvalidRecord     = errors.New("invalid ledger record")
)

type document struct {
	Version     string           `json:"version"`
	CreatedAt   time.Time        `json:"created_at"`
	LastUpdated time.Time        `json:"last_updated"`
	Statistics  Statistics       `json:"statistics"`
	Files       map[string]Entry `json:"files"`
}

type state struct {
	doc    document
	byHash map[string]string
}

func (s state) clone() state {
	c := state{doc: s.doc}
	c.doc.Files = maps.Clone(s.doc.Files)
	c.byHash = maps.Clone(s.byHash)
	return c
}

func (s *state) reindex() {
	s.byHash = make(map[string]string, len(s.doc.Files))
	for path, e := range s.doc.Files {
		if e.Hash != "" {
			s.byHash[e.Hash] = path
		}
	}
}

func (s *state) put(path string, e Entry) {
	e.Path = ""
	s.doc.Files[path] = e
	s.doc.Statistics = s.doc.Statistics.add(contribution(e))
	if e.Hash != "" {
		s.byHash[e.Hash] = path
	}
}

func (s *state) remove(path string) (Entry, bool) {
	e, ok := s.doc.Files[path]
	if !ok {
		return Entry{}, false
	}
	delete(s.doc.Files, path)
	s.doc.Statistics = s.doc.Statistics.sub(contribution(e))
	if e.Hash != "" && s.byHash[e.Hash] == path {
		delete(s.byHash, e.Hash)
	}
	e.Path = path
	return e, true
}

type Options struct {
	Now    func() time.Time
	Logger *zap.Logger
}

// Ledger is safe for concurrent use. Every mutating call is flushed to disk
// before it returns; when the flush fails the in-memory state is unchanged.
type Ledger struct {
	path   string
	now    func() time.Time
	logger *zap.Logger

	mu    sync.Mutex
	state state
}

// Open loads the ledger at path, starting an empty one when the file does
// not exist yet.
func Open(path string, opts Options) (*Ledger, error) {
	l := &Ledger{
		path:   filepath.Clean(path),
		now:    opts.Now,
		logger: opts.Logger,
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}

	data, err := os.ReadFile(l.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		now := l.now()
		l.state = state{doc: document{
			Version:     SchemaVersion,
			CreatedAt:   now,
			LastUpdated: now,
			Files:       map[string]Entry{},
		}}
		l.state.reindex()
		l.logger.Debug("ledger does not exist yet", zap.String("path", l.path))
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("read ledger %s: %w", l.path, err)
	}

	doc, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", l.path, err)
	}
	l.state = state{doc: doc}
	l.state.reindex()
	l.logger.Debug("ledger loaded", zap.String("path", l.path), zap.Int("files", len(doc.Files)))
	return l, nil
}

func decode(data []byte) (document, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		if errors.Is(err, ErrCorrupt) {
			return document{}, err
		}
		return document{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Version == "" {
		return document{}, fmt.Errorf("%w: missing version", ErrCorrupt)
	}
	if doc.Version != SchemaVersion {
		return document{}, fmt.Errorf("%w: %s", ErrUnsupportedSchema, doc.Version)
	}
	if doc.Files == nil {
		doc.Files = map[string]Entry{}
	}
	return doc, nil
}

func (l *Ledger) Path() string {
	return l.path
}

// Lookup returns the entry holding the given content hash.
func (l *Ledger) Lookup(hash string) (Entry, bool) {
	if hash == "" {
		return Entry{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	path, ok := l.state.byHash[hash]
	if !ok {
		return Entry{}, false
	}
	e := l.state.doc.Files[path]
	e.Path = path
	return e, true
}

func (l *Ledger) LookupPath(path string) (Entry, bool) {
	path = filepath.Clean(path)
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.state.doc.Files[path]
	if !ok {
		return Entry{}, false
	}
	e.Path = path
	return e, true
}

// Entries lists entries sorted by path. With no statuses given every entry
// is returned.
func (l *Ledger) Entries(statuses ...Status) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	paths := slices.Sorted(maps.Keys(l.state.doc.Files))
	out := make([]Entry, 0, len(paths))
	for _, path := range paths {
		e := l.state.doc.Files[path]
		if len(statuses) > 0 && !slices.Contains(statuses, e.Status) {
			continue
		}
		e.Path = path
		out = append(out, e)
	}
	return out
}

// Record is the outcome of processing one file.
type Record struct {
	Path     string
	Hash     string
	Status   Status
	Outputs  Outputs
	Metadata Metadata
	Err      string
}

// Record creates or updates the entry for r.Path. An entry for the same
// content under another path moves to r.Path, so a hash is held by at most
// one entry. ProcessedAt is set on the first success and kept afterwards.
func (l *Ledger) Record(r Record) (Entry, error) {
	if r.Path == "" {
		return Entry{}, fmt.Errorf("%w: empty path", ErrInvalidRecord)
	}
	if !r.Status.Valid() {
		return Entry{}, fmt.Errorf("%w: status %q", ErrInvalidRecord, r.Status)
	}
	path := filepath.Clean(r.Path)

	var recorded Entry
	err := l.mutate(func(s *state, now time.Time) error {
		var processedAt *time.Time
		if old, ok := s.remove(path); ok && old.Hash == r.Hash {
			processedAt = old.ProcessedAt
		}
		if r.Hash != "" {
			if other, ok := s.byHash[r.Hash]; ok {
				moved, _ := s.remove(other)
				if processedAt == nil {
					processedAt = moved.ProcessedAt
				}
				l.logger.Debug("ledger entry moved", zap.String("from", other), zap.String("to", path))
			}
		}
		if processedAt == nil && r.Status == StatusCompleted {
			t := now
			processedAt = &t
		}

		e := Entry{
			Hash:        r.Hash,
			Status:      r.Status,
			ProcessedAt: processedAt,
			UpdatedAt:   now,
			Outputs:     r.Outputs,
			Metadata:    r.Metadata,
			Error:       r.Err,
		}
		if r.Status == StatusCompleted {
			e.Error = ""
		}
		s.put(path, e)

		recorded = e
		recorded.Path = path
		return nil
	})
	if err != nil {
		return Entry{}, err
	}

	l.logger.Debug("ledger entry recorded", zap.String("path", path), zap.String("status", string(r.Status)))
	return recorded, nil
}

// Forget removes the entry stored under path.
func (l *Ledger) Forget(path string) (bool, error) {
	path = filepath.Clean(path)
	removed := false
	err := l.mutate(func(s *state, _ time.Time) error {
		_, removed = s.remove(path)
		if !removed {
			return errNoChange
		}
		return nil
	})
	return removed, err
}

// SweepOrphans removes every entry whose path is not in existing and
// returns the removed entries.
func (l *Ledger) SweepOrphans(existing []string) ([]Entry, error) {
	keep := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		keep[filepath.Clean(p)] = struct{}{}
	}

	var removed []Entry
	err := l.mutate(func(s *state, _ time.Time) error {
		for _, path := range slices.Sorted(maps.Keys(s.doc.Files)) {
			if _, ok := keep[path]; ok {
				continue
			}
			e, _ := s.remove(path)
			removed = append(removed, e)
		}
		if len(removed) == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, e := range removed {
		l.logger.Info("removed orphaned ledger entry", zap.String("path", e.Path))
	}
	return removed, nil
}

// SweepMissing removes entries whose files are gone from disk.
func (l *Ledger) SweepMissing() ([]Entry, error) {
	var existing []string
	for _, e := range l.Entries() {
		if _, err := os.Stat(e.Path); err == nil {
			existing = append(existing, e.Path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			existing = append(existing, e.Path)
			l.logger.Warn("cannot stat ledger entry; keeping it", zap.String("path", e.Path), zap.Error(err))
		}
	}
	return l.SweepOrphans(existing)
}

func (l *Ledger) Stats() Statistics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.doc.Statistics
}

// Repair recomputes the statistics from the entries and stores the result.
func (l *Ledger) Repair() (Statistics, error) {
	var stats Statistics
	err := l.mutate(func(s *state, _ time.Time) error {
		var fresh Statistics
		for _, e := range s.doc.Files {
			fresh = fresh.add(contribution(e))
		}
		s.doc.Statistics = fresh
		stats = fresh
		return nil
	})
	return stats, err
}

var errNoChange = errors.New("no change")

// mutate applies fn to a copy of the state, writes it, and only then makes
// it current.
func (l *Ledger) mutate(fn func(s *state, now time.Time) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.state.clone()
	now := l.now()
	if err := fn(&next, now); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	next.doc.LastUpdated = now

	data, err := json.MarshalIndent(next.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := fileio.WriteAtomic(l.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}

	l.state = next
	return nil
}
