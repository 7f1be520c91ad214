//go:build linux && cgo

package gtkshell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/diamondburned/gotk4-adwaita/pkg/adw"
	"github.com/diamondburned/gotk4/pkg/glib/v2"

	"github.com/jmylchreest/kontrol/internal/config"
	"github.com/jmylchreest/kontrol/internal/host"
)

// Backend is a host.Backend driving a libadwaita application.
type Backend struct {
	appID  string
	logger *slog.Logger

	mu       sync.Mutex
	app      *adw.Application
	windows  []*Window
	queue    []host.Event
	running  bool
	held     bool
	dispatch host.Dispatcher
	stopped  bool
	fatal    error
}

// New creates a GTK backend for the application with the given reverse-DNS
// identifier.
func New(appID string, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{appID: appID, logger: logger}
}

// Name implements host.Backend.
func (b *Backend) Name() string { return "gtk" }

// CreateWindow implements host.Backend. GTK widgets can only be created
// once the application is activated, so the window is recorded here and
// realized when Run activates the application. Until then the returned
// window has no widget: setup hooks see only its declaration.
func (b *Backend) CreateWindow(cfg config.WindowConfig) (host.NativeWindow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil, fmt.Errorf("window %q: windows must be declared before the loop starts", cfg.Label)
	}
	w := &Window{cfg: cfg, backend: b}
	b.windows = append(b.windows, w)
	return w, nil
}

// Post implements host.Backend.
func (b *Backend) Post(ev host.Event) {
	b.mu.Lock()
	b.queue = append(b.queue, ev)
	running := b.running
	b.mu.Unlock()

	if running {
		glib.IdleAdd(b.drain)
	}
}

// Run implements host.Backend. It must be called from the main goroutine.
func (b *Backend) Run(ctx context.Context, dispatch host.Dispatcher) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	app := adw.NewApplication(b.appID, 0)

	b.mu.Lock()
	b.app = app
	b.dispatch = dispatch
	b.mu.Unlock()

	app.ConnectActivate(func() {
		b.mu.Lock()
		if b.running {
			b.mu.Unlock()
			b.presentAll()
			return
		}
		b.running = true
		b.held = true
		windows := append([]*Window(nil), b.windows...)
		b.mu.Unlock()

		// Keep the application alive when every window is closed; the host
		// decides when the loop ends.
		app.Hold()
		b.applyCSS()

		for _, w := range windows {
			w.realize(&app.Application)
		}
		b.logger.Debug("gtk application activated", "windows", len(windows))

		// Deliver events posted before the loop started.
		glib.IdleAdd(b.drain)
	})

	go func() {
		<-ctx.Done()
		glib.IdleAdd(func() { b.stop(nil) })
	}()

	status := app.Run(os.Args[:1])

	// Still on the locked GTK thread; Host.Close runs after Run returns and
	// must not touch widgets.
	b.destroyWindows()

	b.mu.Lock()
	fatal := b.fatal
	b.running = false
	b.mu.Unlock()

	if fatal != nil {
		return fatal
	}
	if status != 0 {
		return fmt.Errorf("gtk application exited with status %d", status)
	}
	return nil
}

// Fail stops the loop with err. Safe to call from any goroutine.
func (b *Backend) Fail(err error) {
	if err == nil {
		err = errors.New("unspecified backend failure")
	}
	glib.IdleAdd(func() { b.stop(err) })
}

// drain dispatches queued events on the GTK main thread.
func (b *Backend) drain() {
	for {
		b.mu.Lock()
		if b.stopped || len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		ev := b.queue[0]
		b.queue = b.queue[1:]
		dispatch := b.dispatch
		b.mu.Unlock()

		if dispatch(ev) {
			b.stop(nil)
			return
		}
	}
}

// stop quits the application. It runs on the GTK main thread.
func (b *Backend) stop(err error) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.fatal = err
	app := b.app
	held := b.held
	b.held = false
	b.mu.Unlock()

	if app == nil {
		return
	}
	if held {
		app.Release()
	}
	app.Quit()
}

// destroyWindows destroys every realized widget. It runs on the GTK thread.
func (b *Backend) destroyWindows() {
	b.mu.Lock()
	windows := append([]*Window(nil), b.windows...)
	b.mu.Unlock()

	for _, w := range windows {
		w.unrealize()
	}
}

func (b *Backend) presentAll() {
	b.mu.Lock()
	windows := append([]*Window(nil), b.windows...)
	b.mu.Unlock()

	for _, w := range windows {
		w.present()
	}
}
