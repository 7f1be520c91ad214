package host

import "github.com/jmylchreest/kontrol/internal/config"

// Context is the generated static configuration a Host is built from.
// It is consumed once by Builder.Build, which takes an immutable snapshot.
type Context struct {
	config *config.AppConfig
	source string
}

// NewContext wraps a declarative configuration. source describes where the
// configuration came from and is only used for diagnostics.
func NewContext(cfg *config.AppConfig, source string) *Context {
	return &Context{config: cfg, source: source}
}
