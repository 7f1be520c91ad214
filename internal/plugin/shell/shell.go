// Package shell is the shell-execution capability plugin. It runs commands
// from a configured allowlist and opens URLs with the platform opener.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/jmylchreest/kontrol/internal/config"
	"github.com/jmylchreest/kontrol/internal/host"
)

// Name is the plugin's registration name.
const Name = "shell"

// DefaultTimeout bounds a single Execute call.
const DefaultTimeout = 30 * time.Second

var (
	// ErrNotInScope is returned for commands not in the configured scope.
	ErrNotInScope = errors.New("command not in scope")
	// ErrOpenDisabled is returned by Open when opening is turned off.
	ErrOpenDisabled = errors.New("open is disabled")
	// ErrUnsupportedTarget is returned by Open for non-URL targets.
	ErrUnsupportedTarget = errors.New("unsupported open target")
	// ErrClosed is returned after the handle was closed.
	ErrClosed = errors.New("shell plugin closed")
)

var openSchemes = map[string]bool{"http": true, "https": true, "mailto": true}

// Output is the result of a finished command.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Success reports whether the command exited with status zero.
func (o *Output) Success() bool {
	return o.ExitCode == 0
}

// Plugin is the shell plugin descriptor.
type Plugin struct {
	timeout time.Duration
	goos    string
}

// Option configures the Plugin.
type Option func(*Plugin)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Plugin) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithGOOS selects the platform opener. Defaults to runtime.GOOS.
func WithGOOS(goos string) Option {
	return func(p *Plugin) {
		if goos != "" {
			p.goos = goos
		}
	}
}

// New creates the shell plugin.
func New(opts ...Option) *Plugin {
	p := &Plugin{timeout: DefaultTimeout, goos: runtime.GOOS}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements host.Plugin.
func (p *Plugin) Name() string { return Name }

// Init implements host.Plugin.
func (p *Plugin) Init(ic *host.InitContext) (host.Handle, error) {
	cfg := ic.Config.Plugins.Shell

	scope := make(map[string]config.ShellScope, len(cfg.Scope))
	for _, s := range cfg.Scope {
		if s.Name == "" || s.Cmd == "" {
			return nil, fmt.Errorf("scope entry %q: name and cmd are required", s.Name)
		}
		if _, dup := scope[s.Name]; dup {
			return nil, fmt.Errorf("duplicate scope entry %q", s.Name)
		}
		scope[s.Name] = s
	}

	logger := ic.Logger
	logger.Debug("shell plugin initialized", "scope", len(scope), "open", cfg.Open)

	ctx, cancel := context.WithCancel(context.Background())
	return &Handle{
		scope:   scope,
		open:    cfg.Open,
		timeout: p.timeout,
		goos:    p.goos,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Handle is the initialized shell plugin.
type Handle struct {
	scope   map[string]config.ShellScope
	open    bool
	timeout time.Duration
	goos    string
	logger  *slog.Logger

	// ctx is cancelled by Close and kills running commands.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Scopes returns the names of allowed commands, sorted.
func (h *Handle) Scopes() []string {
	names := make([]string, 0, len(h.scope))
	for name := range h.scope {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the scoped command name with its configured arguments
// followed by args. A non-zero exit status is reported in Output, not as
// an error.
func (h *Handle) Execute(ctx context.Context, name string, args ...string) (*Output, error) {
	if h.ctx.Err() != nil {
		return nil, ErrClosed
	}
	s, ok := h.scope[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotInScope, name)
	}

	h.wg.Add(1)
	defer h.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	stop := context.AfterFunc(h.ctx, cancel)
	defer stop()

	argv := append(append([]string(nil), s.Args...), args...)
	cmd := exec.CommandContext(ctx, s.Cmd, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Don't wait on grandchildren still holding the output pipes.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	out := &Output{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, fmt.Errorf("command %q aborted: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("failed to run command %q: %w", name, err)
	}

	h.logger.Debug("command finished", "name", name, "exit_code", out.ExitCode, "duration", out.Duration)
	return out, nil
}

// Open opens an http(s) or mailto URL with the platform opener. It returns
// once the opener has been started.
func (h *Handle) Open(ctx context.Context, target string) error {
	if h.ctx.Err() != nil {
		return ErrClosed
	}
	if !h.open {
		return ErrOpenDisabled
	}
	if err := validateTarget(target); err != nil {
		return err
	}

	name, args, err := OpenCommand(h.goos, target)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// The opener outlives the caller's ctx; Close kills it.
	cmd := exec.CommandContext(h.ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}

	// Reap the opener so it doesn't linger as a zombie.
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := cmd.Wait(); err != nil {
			h.logger.Warn("opener exited with error", "target", target, "error", err)
		}
	}()

	h.logger.Debug("opened", "target", target, "opener", name)
	return nil
}

// Close cancels running commands and waits for them to finish.
func (h *Handle) Close() error {
	h.cancel()
	h.wg.Wait()
	return nil
}

// OpenCommand returns the opener invocation for target on goos.
func OpenCommand(goos, target string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{target}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}, nil
	case "linux", "freebsd", "openbsd", "netbsd", "dragonfly":
		return "xdg-open", []string{target}, nil
	default:
		return "", nil, fmt.Errorf("no opener for %s", goos)
	}
}

func validateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedTarget, err)
	}
	if !openSchemes[u.Scheme] {
		return fmt.Errorf("%w: scheme %q", ErrUnsupportedTarget, u.Scheme)
	}
	return nil
}
