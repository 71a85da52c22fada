package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirWatcher watches a directory tree and emits debounced event batches.
type DirWatcher struct {
	opts      Options
	logger    *slog.Logger
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	root      string

	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

// New returns a watcher using fsnotify, or polling when fsnotify cannot be
// initialised or opts.ForcePolling is set.
func New(opts Options, logger *slog.Logger) (*DirWatcher, error) {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	w := &DirWatcher{
		opts:      opts,
		logger:    logger,
		debouncer: NewDebouncer(opts.DebounceWindow, opts.EventBufferSize, logger),
		ready:     make(chan struct{}),
		stopCh:    make(chan struct{}),
	}
	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			logger.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
		} else {
			w.fsw = fsw
		}
	}
	return w, nil
}

// Mode returns "fsnotify" or "polling".
func (w *DirWatcher) Mode() string {
	if w.fsw != nil {
		return "fsnotify"
	}
	return "polling"
}

// Start watches root until Stop is called or ctx is done. It blocks.
func (w *DirWatcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.root = abs
	w.logger.Info("watch_started", slog.String("root", abs), slog.String("mode", w.Mode()))

	if w.fsw != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

// Ready is closed once the initial directory registration or scan is done.
func (w *DirWatcher) Ready() <-chan struct{} {
	return w.ready
}

// Events returns the debounced batches. Closed by Stop.
func (w *DirWatcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

func (w *DirWatcher) markReady() {
	w.readyOnce.Do(func() { close(w.ready) })
}

func (w *DirWatcher) runFsnotify(ctx context.Context) error {
	if err := w.addTree(w.root, false); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	w.markReady()

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *DirWatcher) runPolling(ctx context.Context) error {
	p := newPoller(w.root, w.opts.IgnorePatterns)
	w.markReady()

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			for _, ev := range p.poll() {
				w.debouncer.Add(ev)
			}
		}
	}
}

// handle converts one fsnotify event.
func (w *DirWatcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}
	if ignored(rel, w.opts.IgnorePatterns) {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			// files may land in a new directory before it is watched
			if err := w.addTree(ev.Name, true); err != nil {
				w.logger.Warn("watch_add_failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
		}
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}
	w.debouncer.Add(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// addTree watches dir and its subdirectories. With announce set, files
// already present are reported as created.
func (w *DirWatcher) addTree(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(w.root, p)
		if rel != "." && ignored(rel, w.opts.IgnorePatterns) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.fsw.Add(p)
		}
		if announce {
			w.debouncer.Add(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
		}
		return nil
	})
}

// Stop ends watching and closes the event channel. Safe to call twice.
func (w *DirWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}
