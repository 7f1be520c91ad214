package host

import (
	"errors"
	"fmt"
	"log/slog"
)

// Builder accumulates capability plugins and a setup hook, then builds a Host.
//
// WithSetupHook may be called at most once. A second registration is not
// silently replaced: Build rejects it with a SetupHookFailed StartupError
// wrapping ErrSetupHookRegistered, before any window or plugin is touched.
type Builder struct {
	logger                 *slog.Logger
	backend                Backend
	exitOnLastWindowClosed bool

	plugins   []Plugin
	hook      SetupHook
	hookCount int
	consumed  bool
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger used by the Builder and the Host.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBackend sets the window backend. Defaults to a HeadlessBackend.
func WithBackend(backend Backend) BuilderOption {
	return func(b *Builder) {
		if backend != nil {
			b.backend = backend
		}
	}
}

// WithExitOnLastWindowClosed controls whether closing the last window ends
// the run loop. Defaults to true.
func WithExitOnLastWindowClosed(exit bool) BuilderOption {
	return func(b *Builder) {
		b.exitOnLastWindowClosed = exit
	}
}

// NewBuilder creates a Builder with the given options.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		logger:                 slog.Default(),
		exitOnLastWindowClosed: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.backend == nil {
		b.backend = NewHeadlessBackend()
	}
	return b
}

// WithPlugin registers a plugin. Plugins are initialized in registration order.
func (b *Builder) WithPlugin(p Plugin) *Builder {
	b.plugins = append(b.plugins, p)
	return b
}

// WithSetupHook registers the setup hook.
func (b *Builder) WithSetupHook(hook SetupHook) *Builder {
	b.hook = hook
	b.hookCount++
	return b
}

// Build consumes the Builder and the context and constructs a Host: it
// creates the declared windows, initializes every plugin once in order and
// runs the setup hook once. On any failure the partially built Host is torn
// down and no hook or run loop is invoked.
func (b *Builder) Build(ctx *Context) (*Host, error) {
	if b.consumed {
		return nil, &StartupError{Kind: KindContextInvalid, Err: ErrBuilderConsumed}
	}
	b.consumed = true

	if b.hookCount > 1 {
		return nil, &StartupError{
			Kind: KindSetupHookFailed,
			Err:  fmt.Errorf("%w (%d registrations)", ErrSetupHookRegistered, b.hookCount),
		}
	}

	if ctx == nil || ctx.config == nil {
		return nil, &StartupError{Kind: KindContextInvalid, Err: errors.New("no configuration")}
	}
	if err := ctx.config.Validate(); err != nil {
		return nil, &StartupError{Kind: KindContextInvalid, Err: err}
	}

	seen := make(map[string]bool, len(b.plugins))
	for i, p := range b.plugins {
		if p == nil {
			return nil, &StartupError{
				Kind:   KindPluginInitFailed,
				Plugin: fmt.Sprintf("#%d", i),
				Err:    errors.New("nil plugin"),
			}
		}
		if seen[p.Name()] {
			return nil, &StartupError{Kind: KindPluginInitFailed, Plugin: p.Name(), Err: ErrDuplicatePlugin}
		}
		seen[p.Name()] = true
	}

	h := newHost(ctx.config.Clone(), b.backend, b.logger, b.exitOnLastWindowClosed)
	b.logger.Debug("building host", "id", h.id, "config", ctx.source, "backend", b.backend.Name())

	for _, wc := range h.cfg.Windows {
		native, err := b.backend.CreateWindow(wc)
		if err != nil {
			_ = h.Close()
			return nil, &StartupError{
				Kind: KindContextInvalid,
				Err:  fmt.Errorf("failed to create window %q: %w", wc.Label, err),
			}
		}
		h.addWindow(&Window{cfg: wc, native: native})
	}

	for _, p := range b.plugins {
		name := p.Name()
		ic := &InitContext{
			Logger: b.logger.With("plugin", name),
			App:    h.cfg.App,
			Config: h.cfg,
			HostID: h.id,
			plugin: name,
			host:   h,
		}

		handle, err := p.Init(ic)
		if err != nil {
			_ = h.Close()
			return nil, &StartupError{Kind: KindPluginInitFailed, Plugin: name, Err: err}
		}
		if handle == nil {
			handle = NopHandle{}
		}
		h.plugins = append(h.plugins, initializedPlugin{name: name, handle: handle})
		b.logger.Debug("plugin initialized", "plugin", name)
	}

	if b.hook != nil {
		if err := runHook(b.hook, h); err != nil {
			_ = h.Close()
			return nil, &StartupError{Kind: KindSetupHookFailed, Err: err}
		}
	}

	h.state.Store(int32(stateBuilt))
	return h, nil
}

func runHook(hook SetupHook, h *Host) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("setup hook panicked: %v", r)
		}
	}()
	return hook(h)
}
