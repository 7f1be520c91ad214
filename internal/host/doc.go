// Package host is the runtime host of the kontrol desktop shell.
// A Builder accumulates capability plugins and a single setup hook, then
// builds a Host from a generated Context: it creates the declared windows
// through a Backend, initializes plugins in registration order and runs
// the hook exactly once. Host.Run hands the calling goroutine to the
// backend's event loop until shutdown.
package host
