//go:build linux && cgo

package gtkshell

import (
	_ "embed"

	"github.com/diamondburned/gotk4/pkg/gdk/v4"
	"github.com/diamondburned/gotk4/pkg/gtk/v4"
)

//go:embed kontrol.css
var defaultCSS string

// applyCSS installs the shell stylesheet on the default display.
func (b *Backend) applyCSS() {
	display := gdk.DisplayGetDefault()
	if display == nil {
		b.logger.Warn("no display available, cannot apply stylesheet")
		return
	}

	provider := gtk.NewCSSProvider()
	provider.LoadFromString(defaultCSS)
	gtk.StyleContextAddProviderForDisplay(display, provider, gtk.STYLE_PROVIDER_PRIORITY_APPLICATION)
	b.logger.Debug("applied stylesheet")
}
