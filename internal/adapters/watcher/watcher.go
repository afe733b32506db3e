// Package watcher reports location list files dropped into watched directories.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jobrunner/sceneport/internal/ports/output"
)

// Event represents a file system event.
type Event struct {
	Path      string
	Operation Operation
}

// Operation represents the type of file operation.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler is called when a relevant file event occurs.
type Handler func(ctx context.Context, event Event) error

// pendingEvent holds a debounced event with its operation.
type pendingEvent struct {
	timestamp time.Time
	op        Operation
}

// Watcher watches inbox directories for location list changes. Bursts of
// events for one file are collapsed into a single event after the debounce
// delay.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	cfg       Config

	mu      sync.Mutex
	pending map[string]*pendingEvent

	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// Config holds watcher configuration.
type Config struct {
	Paths    []string
	Debounce time.Duration

	// Recursive also watches subdirectories, including ones created later.
	Recursive bool

	// ReportDeletes passes removals to the handler. Otherwise a removal only
	// cancels a pending create or modify of the same file.
	ReportDeletes bool
}

// New creates a new file watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce == 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		cfg:       cfg,
		pending:   make(map[string]*pendingEvent),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start starts watching the configured paths. Paths that cannot be watched
// are logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	for _, path := range w.cfg.Paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			w.logger.Warn("invalid watch path", "path", path, "error", err)
			continue
		}

		if err := w.watchTree(absPath, false); err != nil {
			w.logger.Warn("failed to watch path", "path", absPath, "error", err)
			continue
		}

		w.logger.Info("watching directory", "path", absPath, "recursive", w.cfg.Recursive)
	}

	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop closes the watcher and waits for in-flight handlers.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.stopErr = w.fsWatcher.Close()
	})
	w.wg.Wait()
	return w.stopErr
}

// Watched returns the directories currently watched.
func (w *Watcher) Watched() []string {
	return w.fsWatcher.WatchList()
}

// watchTree adds dir and, when recursive, every non-hidden subdirectory.
// With queueExisting, location files already present are reported as
// created; this covers directories moved into the inbox in one piece.
func (w *Watcher) watchTree(dir string, queueExisting bool) error {
	if !w.cfg.Recursive {
		return w.fsWatcher.Add(dir)
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return w.fsWatcher.Add(path)
		}
		if queueExisting && output.IsLocationFile(path) {
			w.queue(path, OpCreate)
		}
		return nil
	})
}

// eventLoop processes fsnotify events.
func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handleFsEvent processes a single fsnotify event.
func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	if w.cfg.Recursive && event.Op.Has(fsnotify.Create) && isDir(event.Name) {
		if err := w.watchTree(event.Name, true); err != nil {
			w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
		}
		return
	}

	if !output.IsLocationFile(event.Name) {
		return
	}

	w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())
	w.queue(event.Name, fsnotifyOpToOperation(event.Op))
}

// queue records an event for debouncing.
func (w *Watcher) queue(path string, op Operation) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if op == OpDelete && !w.cfg.ReportDeletes {
		delete(w.pending, path)
		return
	}

	existing, exists := w.pending[path]
	if !exists {
		w.pending[path] = &pendingEvent{
			timestamp: time.Now(),
			op:        op,
		}
		return
	}

	w.updatePendingEvent(existing, op)
}

// updatePendingEvent updates an existing pending event based on the new operation.
func (w *Watcher) updatePendingEvent(existing *pendingEvent, newOp Operation) {
	existing.timestamp = time.Now()

	switch {
	case existing.op == OpDelete && newOp == OpCreate:
		// deleted then recreated
		existing.op = OpCreate
	case newOp == OpDelete:
		existing.op = OpDelete
	}
}

// debounceLoop processes debounced events.
func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case <-ticker.C:
			w.processPending(ctx, time.Now())
		}
	}
}

// processPending dispatches every pending event older than the debounce
// delay. Handlers run outside the lock so they may take as long as an
// enqueue needs.
func (w *Watcher) processPending(ctx context.Context, now time.Time) {
	var ready []Event

	w.mu.Lock()
	for path, pending := range w.pending {
		if now.Sub(pending.timestamp) < w.cfg.Debounce {
			continue
		}
		delete(w.pending, path)
		ready = append(ready, Event{Path: path, Operation: pending.op})
	}
	w.mu.Unlock()

	for _, event := range ready {
		w.logger.Info("processing file event",
			"path", event.Path,
			"operation", event.Operation.String(),
		)

		w.wg.Add(1)
		go func(e Event) {
			defer w.wg.Done()
			if err := w.handler(ctx, e); err != nil {
				w.logger.Error("handler error",
					"path", e.Path,
					"operation", e.Operation.String(),
					"error", err,
				)
			}
		}(event)
	}
}

// fsnotifyOpToOperation converts fsnotify.Op to our Operation type.
// A rename is reported at the old name, so the file is gone from there.
func fsnotifyOpToOperation(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpModify
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
