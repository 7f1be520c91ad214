package host

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/kontrol/internal/config"
)

// Plugin is a capability plugin descriptor. Init is called exactly once, in
// registration order, while the Host is being built. Plugins must not
// assume any other plugin has or has not been initialized.
type Plugin interface {
	Name() string
	Init(ic *InitContext) (Handle, error)
}

// Handle is the opaque value a plugin's initializer produces. The Host owns
// it and closes it, in reverse registration order, when the Host is dropped.
type Handle interface {
	Close() error
}

// Starter is implemented by handles that run background work. Start is
// called once when the run loop begins; ctx is cancelled when Run returns.
type Starter interface {
	Start(ctx context.Context) error
}

// SetupHook runs once after the Host's windows exist and before the run loop.
// Windows are registry entries at that point; a backend may not create the
// native widgets until its loop starts, so hooks should work from each
// window's declaration.
type SetupHook func(h *Host) error

// InitFunc is a plugin initialization closure.
type InitFunc func(ic *InitContext) (Handle, error)

type funcPlugin struct {
	name string
	init InitFunc
}

// NewPlugin returns a Plugin from a name and an initialization closure.
func NewPlugin(name string, init InitFunc) Plugin {
	return &funcPlugin{name: name, init: init}
}

func (p *funcPlugin) Name() string { return p.name }

func (p *funcPlugin) Init(ic *InitContext) (Handle, error) {
	if p.init == nil {
		return NopHandle{}, nil
	}
	return p.init(ic)
}

// NopHandle is a Handle with nothing to release.
type NopHandle struct{}

// Close implements Handle.
func (NopHandle) Close() error { return nil }

// InitContext is passed to a plugin's initializer.
type InitContext struct {
	Logger *slog.Logger
	App    config.AppInfo
	Config *config.AppConfig // read-only snapshot
	HostID ulid.ULID

	plugin string
	host   *Host
}

// Emit posts a plugin event onto the Host's event loop. Events emitted
// before Run are delivered once the loop starts.
func (ic *InitContext) Emit(name string, payload any) {
	ic.host.Emit(Event{Kind: EventPlugin, Plugin: ic.plugin, Name: name, Payload: payload})
}

// Window looks up a window in the Host's registry.
func (ic *InitContext) Window(label string) (*Window, error) {
	return ic.host.Window(label)
}
