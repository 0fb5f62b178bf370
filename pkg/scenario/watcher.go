package scenario

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces editor write bursts into one reload per file.
const watchDebounce = 200 * time.Millisecond

// Watcher reloads the store index when scenario files change on disk, so
// operators can drop JSON files into the directory without restarting.
type Watcher struct {
	dir   string
	store *Store
	fsw   *fsnotify.Watcher

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// NewWatcher registers dir with fsnotify. Start must be called before any
// events are processed.
func NewWatcher(dir string, store *Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		dir:     dir,
		store:   store,
		fsw:     fsw,
		pending: make(map[string]struct{}),
	}, nil
}

// Start launches the event loop.
func (w *Watcher) Start(ctx context.Context) {
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go w.run(ctx)

	slog.Info("Scenario watcher started", "dir", w.dir)
}

// Stop shuts the event loop down and releases the inotify handle.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.fsw.Close()
	slog.Info("Scenario watcher stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("Scenario watcher error", "error", err)
		}
	}
}

// handleEvent queues a JSON file for reload and (re)arms the debounce
// timer. Non-JSON files and chmod-only events are ignored.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".json") {
		return
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watchDebounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for name := range batch {
		if err := w.store.Reload(name); err != nil {
			slog.Warn("Scenario reload failed", "file", name, "error", err)
			continue
		}
		slog.Info("Scenario file reloaded", "file", name)
	}
}
