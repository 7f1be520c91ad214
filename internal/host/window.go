package host

import "github.com/jmylchreest/kontrol/internal/config"

// NativeWindow is the backend's side of a window.
type NativeWindow interface {
	Destroy()
}

// Window is an entry in the Host's window registry. The Host owns it;
// callers only borrow it.
type Window struct {
	cfg    config.WindowConfig
	native NativeWindow
}

// Label returns the window's identifier, e.g. "main".
func (w *Window) Label() string {
	return w.cfg.Label
}

// Config returns the window's declaration.
func (w *Window) Config() config.WindowConfig {
	return w.cfg
}
