// Package watcher notices template source changes on disk and reports
// them, debounced, so the preview server can recompile and push updates.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ginja-dev/ginja/internal/errors"
)

// DefaultDebounce is how long the watcher waits after the last change
// before reporting a batch. Editors tend to write files several times in
// quick succession.
const DefaultDebounce = 250 * time.Millisecond

// Op classifies a reported change.
type Op int

const (
	OpCreated Op = iota
	OpModified
	OpDeleted
	OpRenamed
)

func (o Op) String() string {
	switch o {
	case OpCreated:
		return "created"
	case OpModified:
		return "modified"
	case OpDeleted:
		return "deleted"
	case OpRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Change is one debounced file change.
type Change struct {
	Op   Op
	Path string
}

// Handler receives a deduplicated batch of changes.
type Handler func(changes []Change)

// Watcher watches template directories recursively and calls its
// handlers with debounced change batches.
type Watcher struct {
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration
	exts     map[string]bool

	mu       sync.Mutex
	handlers []Handler
	pending  map[string]Change
	timer    *time.Timer
	closed   bool
}

// New returns a watcher reporting only files with the given extensions
// (empty means all files). Extensions may be given with or without the
// leading dot.
func New(logger *slog.Logger, debounce time.Duration, extensions ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewIO("starting file watcher", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		fsw:      fsw,
		logger:   logger,
		debounce: debounce,
		pending:  make(map[string]Change),
	}
	if len(extensions) > 0 {
		w.exts = make(map[string]bool, len(extensions))
		for _, ext := range extensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			w.exts[strings.ToLower(ext)] = true
		}
	}
	return w, nil
}

// OnChange registers a handler for debounced change batches.
func (w *Watcher) OnChange(h Handler) {
	w.mu.Lock()
	w.handlers = append(w.handlers, h)
	w.mu.Unlock()
}

// Add watches a directory and all its subdirectories.
func (w *Watcher) Add(root string) error {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return errors.NewIO("watching "+root, err)
	}
	if !info.IsDir() {
		return w.fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Run processes events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(evt)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(evt fsnotify.Event) {
	// New subdirectories need their own watch.
	if evt.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(evt.Name); err != nil {
				w.logger.Warn("cannot watch new directory",
					slog.String("path", evt.Name),
					slog.String("error", err.Error()))
			}
			return
		}
	}
	if !w.wanted(evt.Name) {
		return
	}
	var op Op
	switch {
	case evt.Op.Has(fsnotify.Create):
		op = OpCreated
	case evt.Op.Has(fsnotify.Remove):
		op = OpDeleted
	case evt.Op.Has(fsnotify.Rename):
		op = OpRenamed
	default:
		op = OpModified
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending[evt.Name] = Change{Op: op, Path: evt.Name}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
	} else {
		w.timer.Reset(w.debounce)
	}
}

func (w *Watcher) wanted(path string) bool {
	if w.exts == nil {
		return true
	}
	return w.exts[strings.ToLower(filepath.Ext(path))]
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 || w.closed {
		w.mu.Unlock()
		return
	}
	changes := make([]Change, 0, len(w.pending))
	for _, c := range w.pending {
		changes = append(changes, c)
	}
	w.pending = make(map[string]Change)
	handlers := w.handlers
	w.mu.Unlock()

	for _, h := range handlers {
		h(changes)
	}
}

// Close stops watching. Run returns once the event channels close.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
