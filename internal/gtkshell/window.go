//go:build linux && cgo

package gtkshell

import (
	"github.com/diamondburned/gotk4/pkg/gtk/v4"

	"github.com/jmylchreest/kontrol/internal/config"
	"github.com/jmylchreest/kontrol/internal/host"
)

// Window is a declared window, realized as a gtk.ApplicationWindow once
// the application activates.
type Window struct {
	cfg     config.WindowConfig
	backend *Backend

	win       *gtk.ApplicationWindow
	destroyed bool
}

func (w *Window) realize(app *gtk.Application) {
	w.backend.mu.Lock()
	destroyed := w.destroyed
	w.backend.mu.Unlock()
	if destroyed {
		return
	}

	cfg := w.cfg
	win := gtk.NewApplicationWindow(app)
	win.SetTitle(cfg.Title)
	win.SetDefaultSize(int(cfg.Width), int(cfg.Height))
	if cfg.MinWidth > 0 || cfg.MinHeight > 0 {
		win.SetSizeRequest(int(cfg.MinWidth), int(cfg.MinHeight))
	}
	win.SetResizable(cfg.Resizable)
	win.SetDecorated(cfg.Decorations)

	if cfg.Transparent {
		win.AddCSSClass("kontrol-transparent")
	}
	if cfg.Decorations {
		win.SetTitlebar(titleBar(cfg))
	}

	label := cfg.Label
	win.ConnectCloseRequest(func() bool {
		w.win = nil
		w.backend.Post(host.Event{Kind: host.EventWindowClosed, Window: label})
		return false
	})
	win.NotifyProperty("is-active", func() {
		if win.IsActive() {
			w.backend.Post(host.Event{Kind: host.EventWindowFocused, Window: label})
		}
	})

	w.win = win
	if cfg.Fullscreen {
		win.Fullscreen()
	}
	w.present()
}

// titleBar builds the header bar for the configured title bar style.
func titleBar(cfg config.WindowConfig) *gtk.HeaderBar {
	bar := gtk.NewHeaderBar()
	bar.SetShowTitleButtons(true)

	switch cfg.TitleBarStyle {
	case "overlay":
		bar.AddCSSClass("kontrol-overlay")
		bar.AddCSSClass("flat")
	case "transparent":
		bar.AddCSSClass("kontrol-transparent")
	}
	if cfg.HiddenTitle {
		bar.SetTitleWidget(gtk.NewLabel(""))
	}
	return bar
}

func (w *Window) present() {
	if w.win != nil {
		w.win.Present()
	}
}

// Destroy implements host.NativeWindow. The widget itself is destroyed by
// Backend.Run on the GTK thread; Destroy only retires the window so a later
// activation doesn't realize it again.
func (w *Window) Destroy() {
	w.backend.mu.Lock()
	defer w.backend.mu.Unlock()
	w.destroyed = true
}

func (w *Window) unrealize() {
	if w.win != nil {
		w.win.Destroy()
		w.win = nil
	}
}
