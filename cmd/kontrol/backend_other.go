//go:build !(linux && cgo)

package main

import (
	"log/slog"

	"github.com/jmylchreest/kontrol/internal/config"
	"github.com/jmylchreest/kontrol/internal/host"
)

// nativeBackend returns nil so the host falls back to the headless backend.
func nativeBackend(info config.AppInfo, logger *slog.Logger) host.Backend {
	logger.Warn("no native window backend in this build, running headless", "app", info.Identifier)
	return nil
}
