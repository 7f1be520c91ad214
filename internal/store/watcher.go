package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the state file when another process changes it, e.g.
// `kontrol update dismiss` while the shell is running.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	file     *StateFile
	logger   *slog.Logger
	onChange func(*State)
	done     chan struct{}
	stopped  chan struct{}
	running  bool
}

// NewWatcher creates a Watcher for file.
func NewWatcher(file *StateFile, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher: watcher,
		file:    file,
		logger:  logger,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// SetChangeCallback sets the callback invoked with the reloaded state.
func (w *Watcher) SetChangeCallback(fn func(*State)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start begins watching. The watch goroutine exits when ctx is done or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	// Watch the directory containing the file (more reliable for atomic renames)
	dir := filepath.Dir(w.file.Path())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	w.running = true
	go w.watch(ctx)
	w.logger.Debug("state watcher started", "path", w.file.Path())
	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stopped)
	filename := filepath.Base(w.file.Path())

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.reload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("state watcher error", "error", err)

		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	state, err := w.file.Load()
	if err != nil {
		w.logger.Warn("failed to reload state", "error", err)
		return
	}
	w.logger.Debug("state file changed", "path", w.file.Path(), "dismissed", state.DismissedVersion)

	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// Stop stops the watcher and waits for the watch goroutine to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	close(w.done)
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.stopped
	w.logger.Debug("state watcher stopped")
	return err
}
