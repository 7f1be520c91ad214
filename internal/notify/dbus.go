package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	// DBusInterface is the notification interface name.
	DBusInterface = "org.freedesktop.Notifications"
	// DBusPath is the notification object path.
	DBusPath = "/org/freedesktop/Notifications"
	// DBusBusName is the well-known name of the notification daemon.
	DBusBusName = "org.freedesktop.Notifications"
)

// CloseReason is the reason a notification was closed, as reported by the
// NotificationClosed signal.
type CloseReason uint32

const (
	CloseReasonExpired   CloseReason = 1
	CloseReasonDismissed CloseReason = 2
	CloseReasonClosed    CloseReason = 3
	CloseReasonUndefined CloseReason = 4
)

// String returns the string representation of the close reason.
func (r CloseReason) String() string {
	switch r {
	case CloseReasonExpired:
		return "expired"
	case CloseReasonDismissed:
		return "dismissed"
	case CloseReasonClosed:
		return "closed"
	case CloseReasonUndefined:
		return "undefined"
	default:
		return "unknown"
	}
}

// ServerInfo is returned by GetServerInformation.
type ServerInfo struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}

// DBusNotifier sends notifications to the running notification daemon.
type DBusNotifier struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string
	logger  *slog.Logger

	mu       sync.Mutex
	onAction ActionHandler
	signals  chan *dbus.Signal
}

// NewDBusNotifier connects to the session bus. It uses a private connection
// so Close does not tear down the process-wide shared bus.
func NewDBusNotifier(appName string, logger *slog.Logger) (*DBusNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	n := &DBusNotifier{
		conn:    conn,
		obj:     conn.Object(DBusBusName, DBusPath),
		appName: appName,
		logger:  logger,
		signals: make(chan *dbus.Signal, 16),
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(DBusInterface),
		dbus.WithMatchObjectPath(DBusPath),
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to subscribe to notification signals: %w", err)
	}
	conn.Signal(n.signals)
	go n.processSignals()

	return n, nil
}

// SetActionHandler sets the callback for ActionInvoked signals.
func (n *DBusNotifier) SetActionHandler(fn ActionHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onAction = fn
}

// Notify implements Notifier.
func (n *DBusNotifier) Notify(ctx context.Context, note Notification) (uint32, error) {
	var id uint32
	err := n.obj.CallWithContext(ctx, DBusInterface+".Notify", 0,
		n.appName,
		uint32(0),
		note.Icon,
		note.Summary,
		note.Body,
		flattenActions(note.Actions),
		buildHints(note),
		expireTimeout(note),
	).Store(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to send notification: %w", err)
	}

	n.logger.Debug("sent notification", "id", id, "summary", note.Summary)
	return id, nil
}

// CloseNotification asks the daemon to close a notification.
func (n *DBusNotifier) CloseNotification(ctx context.Context, id uint32) error {
	if err := n.obj.CallWithContext(ctx, DBusInterface+".CloseNotification", 0, id).Err; err != nil {
		return fmt.Errorf("failed to close notification %d: %w", id, err)
	}
	return nil
}

// ServerInformation queries the running notification daemon.
func (n *DBusNotifier) ServerInformation(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	err := n.obj.CallWithContext(ctx, DBusInterface+".GetServerInformation", 0).
		Store(&info.Name, &info.Vendor, &info.Version, &info.SpecVersion)
	if err != nil {
		return ServerInfo{}, fmt.Errorf("failed to get server information: %w", err)
	}
	return info, nil
}

// Capabilities returns the capabilities advertised by the daemon.
func (n *DBusNotifier) Capabilities(ctx context.Context) ([]string, error) {
	var caps []string
	if err := n.obj.CallWithContext(ctx, DBusInterface+".GetCapabilities", 0).Store(&caps); err != nil {
		return nil, fmt.Errorf("failed to get capabilities: %w", err)
	}
	return caps, nil
}

func (n *DBusNotifier) processSignals() {
	for sig := range n.signals {
		switch sig.Name {
		case DBusInterface + ".ActionInvoked":
			if len(sig.Body) < 2 {
				continue
			}
			id, _ := sig.Body[0].(uint32)
			key, _ := sig.Body[1].(string)

			n.mu.Lock()
			fn := n.onAction
			n.mu.Unlock()
			if fn != nil {
				fn(id, key)
			}

		case DBusInterface + ".NotificationClosed":
			if len(sig.Body) < 2 {
				continue
			}
			id, _ := sig.Body[0].(uint32)
			reason, _ := sig.Body[1].(uint32)
			n.logger.Debug("notification closed", "id", id, "reason", CloseReason(reason).String())
		}
	}
}

// Close implements Notifier.
func (n *DBusNotifier) Close() error {
	n.conn.RemoveSignal(n.signals)
	close(n.signals)
	return n.conn.Close()
}

// flattenActions converts actions to the alternating key/label array D-Bus expects.
func flattenActions(actions []Action) []string {
	out := make([]string, 0, len(actions)*2)
	for _, a := range actions {
		out = append(out, a.Key, a.Label)
	}
	return out
}

func buildHints(n Notification) map[string]dbus.Variant {
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(n.Urgency)),
	}
	if n.Category != "" {
		hints["category"] = dbus.MakeVariant(n.Category)
	}
	return hints
}

// expireTimeout maps Timeout to milliseconds: -1 = server default, 0 = never.
func expireTimeout(n Notification) int32 {
	switch {
	case n.Timeout == 0:
		return -1
	case n.Timeout < 0:
		return 0
	default:
		return int32(n.Timeout.Milliseconds())
	}
}
