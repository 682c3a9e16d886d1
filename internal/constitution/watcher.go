package constitution

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize governance watcher")

// TamperEvent reports that the governance document no longer matches the
// hash recorded at intake.
type TamperEvent struct {
	Path      string
	Result    Result
	Timestamp time.Time
}

// Watcher raises TamperEvents while a run is active so a tampered
// document is surfaced immediately instead of at the next gate. Gates
// still call Verify; the watcher only shortens the feedback loop.
type Watcher struct {
	doc      Document
	expected string
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	events   chan TamperEvent
	stop     chan struct{}
	once     sync.Once
}

// NewWatcher creates a watcher for doc against the expected hash.
func NewWatcher(doc Document, expected string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Watcher{
		doc:      doc,
		expected: expected,
		logger:   logger,
		watcher:  w,
		events:   make(chan TamperEvent, 4),
		stop:     make(chan struct{}),
	}, nil
}

// Start watches the document's directory. Editors commonly replace files
// by rename, so the directory is watched rather than the file.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.doc.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	go w.loop(ctx)
	return nil
}

// Stop releases the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
	})
}

// Events delivers tamper events. The channel is buffered; events are
// dropped when the consumer falls behind.
func (w *Watcher) Events() <-chan TamperEvent {
	return w.events
}

func (w *Watcher) loop(ctx context.Context) {
	target := filepath.Clean(w.doc.Path())
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.check()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("governance watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) check() {
	res := w.doc.Verify(w.expected)
	if res.Valid {
		return
	}
	w.logger.Error("governance document changed during run",
		zap.String("path", w.doc.File),
		zap.String("reason", res.Reason))
	select {
	case w.events <- TamperEvent{Path: w.doc.Path(), Result: res, Timestamp: time.Now().UTC()}:
	default:
	}
}
