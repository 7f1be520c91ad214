package host

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EventKind identifies what an Event carries.
type EventKind string

const (
	// EventQuit requests a graceful shutdown of the run loop.
	EventQuit EventKind = "quit"
	// EventWindowClosed reports that the window named by Event.Window was closed.
	EventWindowClosed EventKind = "window-closed"
	// EventWindowFocused reports that the window named by Event.Window gained focus.
	EventWindowFocused EventKind = "window-focused"
	// EventPlugin is a plugin-originated event.
	EventPlugin EventKind = "plugin"
	// EventFatal stops the run loop with Event.Err as an unrecoverable fault.
	EventFatal EventKind = "fatal"
)

// Event is dispatched by the Host on the event loop thread.
type Event struct {
	ID      ulid.ULID
	Time    time.Time
	Kind    EventKind
	Window  string // window label for window events
	Plugin  string // originating plugin for plugin events
	Name    string // plugin-defined event name, e.g. "update-available"
	Payload any
	Err     error
}

// stamp assigns an ID and timestamp to events that don't have one yet.
func (e Event) stamp() Event {
	if e.ID.IsZero() {
		e.ID = ulid.Make()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	return e
}

// Dispatcher handles one event on the loop thread and reports whether the
// loop should stop.
type Dispatcher func(ev Event) (stop bool)
