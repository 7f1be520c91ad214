package host

import (
	"errors"
	"fmt"
)

// Sentinel errors for the startup and runtime taxonomy.
var (
	ErrContextInvalid   = errors.New("host: context invalid")
	ErrPluginInitFailed = errors.New("host: plugin init failed")
	ErrSetupHookFailed  = errors.New("host: setup hook failed")
	ErrRuntimeFatal     = errors.New("host: runtime fatal")

	// ErrSetupHookRegistered is returned when WithSetupHook was called more than once.
	ErrSetupHookRegistered = errors.New("setup hook already registered")
	// ErrDuplicatePlugin is returned when two plugins share a name.
	ErrDuplicatePlugin = errors.New("plugin already registered")
	// ErrBuilderConsumed is returned by a second Build on the same Builder.
	ErrBuilderConsumed = errors.New("builder already consumed")
	// ErrHostConsumed is returned by Run on a Host that already ran.
	ErrHostConsumed = errors.New("host already consumed")
	// ErrWindowNotFound is returned by window lookups for an unknown label.
	ErrWindowNotFound = errors.New("window not found")
)

// StartupErrorKind classifies a StartupError.
type StartupErrorKind int

const (
	// KindContextInvalid means the declarative configuration was missing or malformed.
	KindContextInvalid StartupErrorKind = iota
	// KindPluginInitFailed means a named plugin's initializer failed.
	KindPluginInitFailed
	// KindSetupHookFailed means the setup hook returned an error.
	KindSetupHookFailed
)

// String returns the kind name.
func (k StartupErrorKind) String() string {
	switch k {
	case KindContextInvalid:
		return "ContextInvalid"
	case KindPluginInitFailed:
		return "PluginInitFailed"
	case KindSetupHookFailed:
		return "SetupHookFailed"
	default:
		return fmt.Sprintf("StartupErrorKind(%d)", int(k))
	}
}

func (k StartupErrorKind) sentinel() error {
	switch k {
	case KindPluginInitFailed:
		return ErrPluginInitFailed
	case KindSetupHookFailed:
		return ErrSetupHookFailed
	default:
		return ErrContextInvalid
	}
}

// StartupError is returned by Builder.Build. None of its kinds are recoverable.
type StartupError struct {
	Kind   StartupErrorKind
	Plugin string // set for KindPluginInitFailed
	Err    error
}

func (e *StartupError) Error() string {
	var msg string
	switch e.Kind {
	case KindPluginInitFailed:
		msg = fmt.Sprintf("plugin %q failed to initialize", e.Plugin)
	case KindSetupHookFailed:
		msg = "setup hook failed"
	default:
		msg = "invalid context"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *StartupError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// RuntimeError is returned by Host.Run when the event loop cannot continue.
type RuntimeError struct {
	Reason string
	Err    error
}

func (e *RuntimeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("runtime fatal: %s: %v", e.Reason, e.Err)
	}
	return "runtime fatal: " + e.Reason
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Is matches ErrRuntimeFatal.
func (e *RuntimeError) Is(target error) bool {
	return target == ErrRuntimeFatal
}
