//go:build linux && cgo

package main

import (
	"log/slog"

	"github.com/jmylchreest/kontrol/internal/config"
	"github.com/jmylchreest/kontrol/internal/gtkshell"
	"github.com/jmylchreest/kontrol/internal/host"
)

func nativeBackend(info config.AppInfo, logger *slog.Logger) host.Backend {
	return gtkshell.New(info.Identifier, logger)
}
