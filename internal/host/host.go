package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/kontrol/internal/config"
)

type hostState int32

const (
	stateBuilding hostState = iota
	stateBuilt
	stateRunning
	stateClosed
)

type initializedPlugin struct {
	name   string
	handle Handle
}

// Host owns all windows and initialized plugins and runs the event loop.
type Host struct {
	id                     ulid.ULID
	cfg                    *config.AppConfig
	backend                Backend
	logger                 *slog.Logger
	exitOnLastWindowClosed bool

	mu        sync.RWMutex
	windows   map[string]*Window
	plugins   []initializedPlugin
	observers []func(Event)

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

func newHost(cfg *config.AppConfig, backend Backend, logger *slog.Logger, exitOnLast bool) *Host {
	return &Host{
		id:                     ulid.Make(),
		cfg:                    cfg,
		backend:                backend,
		logger:                 logger,
		exitOnLastWindowClosed: exitOnLast,
		windows:                make(map[string]*Window),
	}
}

// ID returns the Host's unique identifier.
func (h *Host) ID() ulid.ULID {
	return h.id
}

// Config returns the Host's configuration snapshot. Callers must not modify it.
func (h *Host) Config() *config.AppConfig {
	return h.cfg
}

// Window looks up a window by label.
func (h *Host) Window(label string) (*Window, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	w, ok := h.windows[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrWindowNotFound, label)
	}
	return w, nil
}

// Windows returns the labels of all open windows, sorted.
func (h *Host) Windows() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	labels := make([]string, 0, len(h.windows))
	for label := range h.windows {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Plugin returns the handle of an initialized plugin.
func (h *Host) Plugin(name string) (Handle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, p := range h.plugins {
		if p.name == name {
			return p.handle, true
		}
	}
	return nil, false
}

// Plugins returns the names of initialized plugins in initialization order.
func (h *Host) Plugins() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, len(h.plugins))
	for i, p := range h.plugins {
		names[i] = p.name
	}
	return names
}

// OnEvent registers an observer called for every dispatched event on the
// loop thread. Register observers before Run.
func (h *Host) OnEvent(fn func(Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, fn)
}

// Emit posts an event onto the event loop.
func (h *Host) Emit(ev Event) {
	h.backend.Post(ev.stamp())
}

// Quit asks the run loop to shut down gracefully.
func (h *Host) Quit() {
	h.Emit(Event{Kind: EventQuit})
}

// Run starts plugin background work and blocks in the backend's event loop
// until shutdown. It returns nil on graceful shutdown (quit event, last
// window closed, or ctx cancelled) and a *RuntimeError otherwise. The Host
// is consumed: its plugins and windows are released before Run returns.
func (h *Host) Run(ctx context.Context) error {
	if !h.state.CompareAndSwap(int32(stateBuilt), int32(stateRunning)) {
		return &RuntimeError{Reason: "run called on a consumed host", Err: ErrHostConsumed}
	}
	defer func() { _ = h.Close() }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.logger.Info("host starting",
		"id", h.id,
		"backend", h.backend.Name(),
		"windows", len(h.Windows()),
		"plugins", h.Plugins())

	for _, p := range h.plugins {
		s, ok := p.handle.(Starter)
		if !ok {
			continue
		}
		if err := s.Start(runCtx); err != nil {
			return &RuntimeError{Reason: fmt.Sprintf("plugin %q failed to start", p.name), Err: err}
		}
	}

	var fatal error
	err := h.backend.Run(runCtx, func(ev Event) bool {
		stop, ferr := h.dispatch(ev)
		if ferr != nil {
			fatal = ferr
		}
		return stop
	})
	if err != nil {
		return &RuntimeError{Reason: "event source failed", Err: err}
	}
	if fatal != nil {
		return &RuntimeError{Reason: "fatal event", Err: fatal}
	}

	h.logger.Info("host stopped", "id", h.id)
	return nil
}

// dispatch handles one event on the loop thread.
func (h *Host) dispatch(ev Event) (bool, error) {
	ev = ev.stamp()

	h.mu.RLock()
	observers := h.observers
	h.mu.RUnlock()
	for _, fn := range observers {
		fn(ev)
	}

	switch ev.Kind {
	case EventQuit:
		h.logger.Debug("quit requested", "event", ev.ID)
		return true, nil

	case EventFatal:
		err := ev.Err
		if err == nil {
			err = errors.New("unspecified fatal event")
		}
		return true, err

	case EventWindowClosed:
		remaining := h.removeWindow(ev.Window)
		h.logger.Debug("window closed", "window", ev.Window, "remaining", remaining)
		if remaining == 0 && h.exitOnLastWindowClosed {
			h.logger.Info("last window closed, shutting down")
			return true, nil
		}

	case EventPlugin:
		h.logger.Debug("plugin event", "plugin", ev.Plugin, "name", ev.Name, "event", ev.ID)
	}

	return false, nil
}

func (h *Host) addWindow(w *Window) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.windows[w.Label()] = w
}

func (h *Host) removeWindow(label string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.windows, label)
	return len(h.windows)
}

// Close releases plugin handles in reverse initialization order and destroys
// all windows. Run calls it on return; it only needs to be called directly
// for a Host that is never run.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		h.state.Store(int32(stateClosed))

		h.mu.Lock()
		plugins := h.plugins
		windows := h.windows
		h.plugins = nil
		h.windows = make(map[string]*Window)
		h.mu.Unlock()

		var errs []error
		for i := len(plugins) - 1; i >= 0; i-- {
			if err := plugins[i].handle.Close(); err != nil {
				h.logger.Warn("failed to close plugin", "plugin", plugins[i].name, "error", err)
				errs = append(errs, fmt.Errorf("plugin %q: %w", plugins[i].name, err))
			}
		}
		for _, w := range windows {
			if w.native != nil {
				w.native.Destroy()
			}
		}
		h.closeErr = errors.Join(errs...)
	})
	return h.closeErr
}
