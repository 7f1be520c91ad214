// Package gtkshell is the GTK4/libadwaita window backend. It runs the GTK
// main loop on the calling (OS-locked) thread and marshals events posted
// from other goroutines onto it with glib.IdleAdd.
//
// The package only builds on Linux with cgo enabled.
package gtkshell
