// Package platform selects the one-time window setup strategy and the
// window policy for a target operating system.
package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/jmylchreest/kontrol/internal/config"
	"github.com/jmylchreest/kontrol/internal/host"
)

// ErrMainWindowRequired is returned when a platform requires the main
// window and the configuration did not declare it.
var ErrMainWindowRequired = errors.New("main window is required on this platform")

// Policy is the per-platform window policy.
type Policy struct {
	// RequireMainWindow makes the setup hook fail when window "main" is absent.
	RequireMainWindow bool
	// ExitOnLastWindowClosed ends the run loop when the last window closes.
	ExitOnLastWindowClosed bool
}

// Policies is the explicit policy table, keyed by GOOS.
var Policies = map[string]Policy{
	"darwin":  {RequireMainWindow: true, ExitOnLastWindowClosed: false},
	"linux":   {RequireMainWindow: false, ExitOnLastWindowClosed: true},
	"windows": {RequireMainWindow: false, ExitOnLastWindowClosed: true},
}

// DefaultPolicy applies to targets missing from Policies.
var DefaultPolicy = Policy{RequireMainWindow: false, ExitOnLastWindowClosed: true}

// PolicyFor returns the policy for goos.
func PolicyFor(goos string) Policy {
	if p, ok := Policies[goos]; ok {
		return p
	}
	return DefaultPolicy
}

// Current returns the running target's GOOS.
func Current() string {
	return runtime.GOOS
}

// WindowLookup is the part of the Host a Strategy may use.
type WindowLookup interface {
	Window(label string) (*host.Window, error)
}

// Strategy performs OS-specific one-time window adjustments.
type Strategy interface {
	Name() string
	Setup(windows WindowLookup) error
}

// For returns the setup strategy for goos. Targets whose policy requires
// the main window always get a strategy that checks for it.
func For(goos string, logger *slog.Logger) Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	policy := PolicyFor(goos)

	switch {
	case goos == "darwin":
		return &mainWindowStrategy{name: "darwin", policy: policy, logger: logger}
	case policy.RequireMainWindow:
		return &mainWindowStrategy{name: strategyName(goos), policy: policy, logger: logger}
	default:
		return noopStrategy{goos: goos}
	}
}

func strategyName(goos string) string {
	if goos == "" {
		return "default"
	}
	return goos
}

// SetupHook adapts a Strategy into a host.SetupHook.
func SetupHook(s Strategy, logger *slog.Logger) host.SetupHook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(h *host.Host) error {
		logger.Debug("running platform setup", "strategy", s.Name())
		if err := s.Setup(h); err != nil {
			return fmt.Errorf("%s setup: %w", s.Name(), err)
		}
		return nil
	}
}

// noopStrategy is used on targets that need no window adjustment.
type noopStrategy struct {
	goos string
}

func (s noopStrategy) Name() string { return strategyName(s.goos) }

func (noopStrategy) Setup(WindowLookup) error { return nil }

// mainWindowStrategy looks up the main window on targets whose policy
// requires it, and on macOS where the chrome depends on it. Window chrome (title bar
// style, hidden title) is declared in the configuration and applied by the
// backend; the strategy checks it resolves to a usable window.
type mainWindowStrategy struct {
	name   string
	policy Policy
	logger *slog.Logger
}

func (s *mainWindowStrategy) Name() string { return s.name }

func (s *mainWindowStrategy) Setup(windows WindowLookup) error {
	w, err := windows.Window(config.MainWindowLabel)
	if err != nil {
		if s.policy.RequireMainWindow {
			return fmt.Errorf("%w: %w", ErrMainWindowRequired, err)
		}
		s.logger.Debug("main window not declared, skipping setup")
		return nil
	}

	cfg := w.Config()
	if cfg.HiddenTitle && cfg.TitleBarStyle == "visible" {
		s.logger.Warn("hidden_title has no effect with a visible title bar", "window", cfg.Label)
	}
	s.logger.Debug("main window ready",
		"window", cfg.Label,
		"title_bar_style", cfg.TitleBarStyle,
		"width", cfg.Width,
		"height", cfg.Height)
	return nil
}
