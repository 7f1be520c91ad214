// Package notify sends desktop notifications. On Linux it talks to the
// org.freedesktop.Notifications service on the session bus; everywhere else
// (or when no notification daemon is running) notifications are logged.
package notify

import (
	"context"
	"log/slog"
	"runtime"
	"slices"
	"sync/atomic"
	"time"
)

// Urgency is the freedesktop.org urgency level of a notification.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// String returns the string representation of the urgency.
func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyNormal:
		return "normal"
	case UrgencyCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Action is a button offered on a notification.
type Action struct {
	Key   string
	Label string
}

// Notification is a desktop notification to display.
type Notification struct {
	Summary  string
	Body     string
	Icon     string
	Urgency  Urgency
	Category string
	Actions  []Action
	Timeout  time.Duration // 0 = server default, <0 = never expire
}

// ActionHandler is called when the user invokes an action on a notification.
type ActionHandler func(id uint32, key string)

// Notifier delivers desktop notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) (uint32, error)
	Close() error
}

// ServerQuerier is implemented by notifiers backed by a notification daemon.
type ServerQuerier interface {
	ServerInformation(ctx context.Context) (ServerInfo, error)
	Capabilities(ctx context.Context) ([]string, error)
}

// Withdrawer is implemented by notifiers that can take back a notification
// they already showed.
type Withdrawer interface {
	CloseNotification(ctx context.Context, id uint32) error
}

// CapabilityActions is advertised by daemons that display notification actions.
const CapabilityActions = "actions"

// SupportsActions reports whether n displays notification actions. Notifiers
// that can't be queried are assumed to support them.
func SupportsActions(ctx context.Context, n Notifier) bool {
	q, ok := n.(ServerQuerier)
	if !ok {
		return true
	}
	caps, err := q.Capabilities(ctx)
	if err != nil {
		return true
	}
	return slices.Contains(caps, CapabilityActions)
}

// New returns the best available Notifier for the current platform. It
// never fails: when the session bus is unreachable a LogNotifier is used.
func New(appName string, logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if runtime.GOOS != "linux" {
		return NewLogNotifier(logger)
	}

	n, err := NewDBusNotifier(appName, logger)
	if err != nil {
		logger.Debug("desktop notifications unavailable, logging instead", "error", err)
		return NewLogNotifier(logger)
	}
	return n
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *slog.Logger
	nextID atomic.Uint32
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (l *LogNotifier) Notify(_ context.Context, n Notification) (uint32, error) {
	id := l.nextID.Add(1)
	l.logger.Info("notification",
		"id", id,
		"summary", n.Summary,
		"body", n.Body,
		"urgency", n.Urgency.String())
	return id, nil
}

// Close implements Notifier.
func (l *LogNotifier) Close() error { return nil }
