package host

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jmylchreest/kontrol/internal/config"
)

// Backend is the platform event source: it creates native windows and runs
// the event loop, calling dispatch for every event on one thread.
type Backend interface {
	Name() string
	CreateWindow(cfg config.WindowConfig) (NativeWindow, error)
	// Run blocks until dispatch reports stop, ctx is cancelled, or the
	// event source fails.
	Run(ctx context.Context, dispatch Dispatcher) error
	// Post schedules an event for dispatch on the loop thread. It must not
	// block and is safe to call from any goroutine, before or during Run.
	Post(ev Event)
}

// HeadlessBackend is a Backend without a display server. Windows are kept
// in memory and the loop runs on the goroutine that calls Run.
type HeadlessBackend struct {
	mu         sync.Mutex
	queue      []Event
	windows    map[string]*HeadlessWindow
	runs       int
	dispatched int

	wake   chan struct{}
	failCh chan error
}

// NewHeadlessBackend creates a HeadlessBackend.
func NewHeadlessBackend() *HeadlessBackend {
	return &HeadlessBackend{
		windows: make(map[string]*HeadlessWindow),
		wake:    make(chan struct{}, 1),
		failCh:  make(chan error, 1),
	}
}

// Name implements Backend.
func (b *HeadlessBackend) Name() string { return "headless" }

// CreateWindow implements Backend.
func (b *HeadlessBackend) CreateWindow(cfg config.WindowConfig) (NativeWindow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := &HeadlessWindow{cfg: cfg}
	b.windows[cfg.Label] = w
	return w, nil
}

// Run implements Backend.
func (b *HeadlessBackend) Run(ctx context.Context, dispatch Dispatcher) error {
	b.mu.Lock()
	b.runs++
	b.mu.Unlock()

	for {
		for {
			ev, ok := b.next()
			if !ok {
				break
			}
			if dispatch(ev) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case err := <-b.failCh:
			return err
		case <-b.wake:
		}
	}
}

func (b *HeadlessBackend) next() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return Event{}, false
	}
	ev := b.queue[0]
	b.queue = b.queue[1:]
	b.dispatched++
	return ev, true
}

// Post implements Backend.
func (b *HeadlessBackend) Post(ev Event) {
	b.mu.Lock()
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Fail makes a running (or the next) Run return err, simulating an
// irrecoverable failure of the event source.
func (b *HeadlessBackend) Fail(err error) {
	select {
	case b.failCh <- err:
	default:
	}
}

// CloseWindow simulates the user closing a window.
func (b *HeadlessBackend) CloseWindow(label string) {
	b.mu.Lock()
	if w, ok := b.windows[label]; ok {
		w.destroyed.Store(true)
	}
	b.mu.Unlock()
	b.Post(Event{Kind: EventWindowClosed, Window: label})
}

// Window returns the headless window with the given label.
func (b *HeadlessBackend) Window(label string) (*HeadlessWindow, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[label]
	return w, ok
}

// Runs returns how many times Run was entered.
func (b *HeadlessBackend) Runs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runs
}

// Dispatched returns how many events were handed to a dispatcher.
func (b *HeadlessBackend) Dispatched() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dispatched
}

// HeadlessWindow is the in-memory window of a HeadlessBackend.
type HeadlessWindow struct {
	cfg       config.WindowConfig
	destroyed atomic.Bool
}

// Destroy implements NativeWindow.
func (w *HeadlessWindow) Destroy() {
	w.destroyed.Store(true)
}

// Destroyed reports whether the window was destroyed or closed.
func (w *HeadlessWindow) Destroyed() bool {
	return w.destroyed.Load()
}

// Config returns the window's declaration.
func (w *HeadlessWindow) Config() config.WindowConfig {
	return w.cfg
}
