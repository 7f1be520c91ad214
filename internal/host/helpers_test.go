package host

import (
	"errors"
	"sync"

	"github.com/jmylchreest/kontrol/internal/config"
)

// testConfig returns a valid configuration declaring the given windows.
func testConfig(windows ...string) *config.AppConfig {
	cfg := config.Default()
	cfg.Windows = nil
	for _, label := range windows {
		cfg.Windows = append(cfg.Windows, config.WindowConfig{
			Label:  label,
			Title:  label,
			Width:  800,
			Height: 600,
		})
	}
	return cfg
}

// recorder collects lifecycle calls in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type recordingHandle struct {
	name string
	rec  *recorder
}

func (h *recordingHandle) Close() error {
	h.rec.add("close:" + h.name)
	return nil
}

func recordingPlugin(name string, rec *recorder, initErr error) Plugin {
	return NewPlugin(name, func(ic *InitContext) (Handle, error) {
		rec.add("init:" + name)
		if initErr != nil {
			return nil, initErr
		}
		return &recordingHandle{name: name, rec: rec}, nil
	})
}

// failingBackend refuses to create windows.
type failingBackend struct {
	*HeadlessBackend
}

func (failingBackend) CreateWindow(cfg config.WindowConfig) (NativeWindow, error) {
	return nil, errors.New("no display")
}
