// Package app assembles the kontrol desktop shell: it loads the declarative
// configuration, registers the capability plugins and the platform setup
// hook, builds the Host and runs it.
package app

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/kontrol/internal/config"
	"github.com/jmylchreest/kontrol/internal/host"
	"github.com/jmylchreest/kontrol/internal/platform"
	"github.com/jmylchreest/kontrol/internal/plugin/shell"
	"github.com/jmylchreest/kontrol/internal/plugin/updater"
)

// Options configures Build and Run.
type Options struct {
	// ConfigPath is the declarative configuration file. Empty uses the
	// default path, falling back to the embedded configuration.
	ConfigPath string
	// GOOS selects the platform setup strategy. Defaults to runtime.GOOS.
	GOOS    string
	Logger  *slog.Logger
	Backend host.Backend
	// NewBackend creates the backend once the configuration is known. It is
	// used when Backend is nil; without either a headless backend is used.
	NewBackend func(app config.AppInfo, logger *slog.Logger) host.Backend

	ShellOptions   []shell.Option
	UpdaterOptions []updater.Option
}

// Run builds the Host and blocks in its event loop. A nil return means
// graceful shutdown; startup failures are *host.StartupError and loop
// failures *host.RuntimeError.
func Run(ctx context.Context, opts Options) error {
	h, err := Build(opts)
	if err != nil {
		return err
	}
	return h.Run(ctx)
}

// Build loads the configuration and builds the Host without running it.
func Build(opts Options) (*host.Host, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	goos := opts.GOOS
	if goos == "" {
		goos = platform.Current()
	}

	cfg, source, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, &host.StartupError{Kind: host.KindContextInvalid, Err: err}
	}
	logger.Debug("configuration loaded", "source", source, "windows", len(cfg.Windows))

	backend := opts.Backend
	if backend == nil && opts.NewBackend != nil {
		backend = opts.NewBackend(cfg.App, logger)
	}

	policy := platform.PolicyFor(goos)
	strategy := platform.For(goos, logger)

	h, err := host.NewBuilder(
		host.WithLogger(logger),
		host.WithBackend(backend),
		host.WithExitOnLastWindowClosed(policy.ExitOnLastWindowClosed),
	).
		WithPlugin(shell.New(append([]shell.Option{shell.WithGOOS(goos)}, opts.ShellOptions...)...)).
		WithPlugin(updater.New(append([]updater.Option{updater.WithGOOS(goos)}, opts.UpdaterOptions...)...)).
		WithSetupHook(platform.SetupHook(strategy, logger)).
		Build(host.NewContext(cfg, source))
	if err != nil {
		return nil, err
	}

	h.OnEvent(routeEvents(h, logger))
	return h, nil
}

// routeEvents forwards plugin events that need another plugin: opening a
// release from an update notification goes through the shell opener.
func routeEvents(h *host.Host, logger *slog.Logger) func(host.Event) {
	return func(ev host.Event) {
		if ev.Kind != host.EventPlugin || ev.Plugin != updater.Name || ev.Name != updater.EventOpenRelease {
			return
		}
		target, _ := ev.Payload.(string)

		handle, ok := h.Plugin(shell.Name)
		if !ok {
			return
		}
		sh, ok := handle.(*shell.Handle)
		if !ok {
			return
		}
		if err := sh.Open(context.Background(), target); err != nil {
			logger.Warn("failed to open release", "url", target, "error", err)
		}
	}
}
