// Package config handles the declarative application configuration:
// app identity, window declarations and per-plugin settings.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

//go:embed kontrol.toml
var defaultConfigData []byte

// Default configuration values applied to fields left empty.
const (
	DefaultWindowWidth     = 800
	DefaultWindowHeight    = 600
	DefaultUpdaterEndpoint = "https://api.github.com"
	DefaultUpdaterInterval = Duration(30 * time.Minute)
	DefaultUpdaterTimeout  = Duration(15 * time.Second)

	// MainWindowLabel is the label of the primary application window.
	MainWindowLabel = "main"
)

// ErrInvalidConfig is returned (wrapped) by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

var identifierRe = regexp.MustCompile(`^[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)+$`)

// Format is a configuration file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding by file extension. Anything that is not
// .yaml/.yml is treated as TOML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// AppConfig is the declarative configuration the shell is generated from.
type AppConfig struct {
	App     AppInfo        `toml:"app" yaml:"app"`
	Windows []WindowConfig `toml:"windows" yaml:"windows" validate:"dive"`
	Plugins PluginsConfig  `toml:"plugins" yaml:"plugins"`
}

// AppInfo is the application identity and bundle metadata.
type AppInfo struct {
	ProductName string `toml:"product_name" yaml:"product_name" validate:"required"`
	Identifier  string `toml:"identifier" yaml:"identifier" validate:"required"`
	Version     string `toml:"version" yaml:"version" validate:"required"`
}

// WindowConfig declares one window created at build time.
type WindowConfig struct {
	Label         string  `toml:"label" yaml:"label" validate:"required"`
	Title         string  `toml:"title" yaml:"title"`
	Width         float64 `toml:"width" yaml:"width" validate:"gt=0"`
	Height        float64 `toml:"height" yaml:"height" validate:"gt=0"`
	MinWidth      float64 `toml:"min_width" yaml:"min_width" validate:"gte=0"`
	MinHeight     float64 `toml:"min_height" yaml:"min_height" validate:"gte=0"`
	Resizable     bool    `toml:"resizable" yaml:"resizable"`
	Fullscreen    bool    `toml:"fullscreen" yaml:"fullscreen"`
	Decorations   bool    `toml:"decorations" yaml:"decorations"`
	Transparent   bool    `toml:"transparent" yaml:"transparent"`
	Center        bool    `toml:"center" yaml:"center"`
	TitleBarStyle string  `toml:"title_bar_style" yaml:"title_bar_style" validate:"omitempty,oneof=visible transparent overlay"`
	HiddenTitle   bool    `toml:"hidden_title" yaml:"hidden_title"`
}

// PluginsConfig holds the per-plugin configuration blocks.
type PluginsConfig struct {
	Shell   ShellConfig   `toml:"shell" yaml:"shell"`
	Updater UpdaterConfig `toml:"updater" yaml:"updater"`
}

// ShellConfig configures the shell-execution plugin.
type ShellConfig struct {
	Open  bool         `toml:"open" yaml:"open"`   // Allow opening URLs with the system opener
	Scope []ShellScope `toml:"scope" yaml:"scope" validate:"dive"`
}

// ShellScope is one command the shell plugin is allowed to run.
type ShellScope struct {
	Name string   `toml:"name" yaml:"name" validate:"required"`
	Cmd  string   `toml:"cmd" yaml:"cmd" validate:"required"`
	Args []string `toml:"args" yaml:"args"`
}

// UpdaterConfig configures the self-update plugin.
type UpdaterConfig struct {
	Active     bool     `toml:"active" yaml:"active"`
	Endpoint   string   `toml:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	Repository string   `toml:"repository" yaml:"repository" validate:"required_if=Active true"`
	Interval   Duration `toml:"interval" yaml:"interval"` // e.g. "30m"
	Timeout    Duration `toml:"timeout" yaml:"timeout"`   // per-request HTTP timeout
	Dialog     bool     `toml:"dialog" yaml:"dialog"`     // Show a desktop notification when an update is found
}

// Default returns the embedded default configuration.
func Default() *AppConfig {
	cfg, err := Parse(defaultConfigData, FormatTOML)
	if err != nil {
		panic(fmt.Sprintf("config: embedded default is invalid: %v", err))
	}
	return cfg
}

// Parse decodes configuration data and fills in defaults for empty fields.
// It does not validate; the host validates the configuration at build time.
func Parse(data []byte, format Format) (*AppConfig, error) {
	cfg := &AppConfig{}

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml config: %w", err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse toml config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Load reads the configuration from path. If path is empty the default
// config path is used, and when that file doesn't exist the embedded
// default configuration is returned.
func Load(path string) (*AppConfig, string, error) {
	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return Default(), "embedded", nil
		}
		return nil, path, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Marshal encodes the configuration in the given format.
func (c *AppConfig) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(c)
	case FormatTOML:
		return toml.Marshal(c)
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
}

func (c *AppConfig) applyDefaults() {
	for i := range c.Windows {
		w := &c.Windows[i]
		if w.Title == "" {
			w.Title = c.App.ProductName
		}
		if w.Width == 0 {
			w.Width = DefaultWindowWidth
		}
		if w.Height == 0 {
			w.Height = DefaultWindowHeight
		}
	}

	u := &c.Plugins.Updater
	if u.Endpoint == "" {
		u.Endpoint = DefaultUpdaterEndpoint
	}
	if u.Interval == 0 {
		u.Interval = DefaultUpdaterInterval
	}
	if u.Timeout == 0 {
		u.Timeout = DefaultUpdaterTimeout
	}
}

// Validate checks if the configuration is valid.
func (c *AppConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, describeValidation(verrs))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if !identifierRe.MatchString(c.App.Identifier) {
		return fmt.Errorf("%w: identifier %q must be in reverse domain notation", ErrInvalidConfig, c.App.Identifier)
	}
	if !semver.IsValid(CanonicalVersion(c.App.Version)) {
		return fmt.Errorf("%w: version %q is not a semantic version", ErrInvalidConfig, c.App.Version)
	}

	labels := make(map[string]bool, len(c.Windows))
	for _, w := range c.Windows {
		if labels[w.Label] {
			return fmt.Errorf("%w: duplicate window label %q", ErrInvalidConfig, w.Label)
		}
		labels[w.Label] = true

		if w.MinWidth > w.Width || w.MinHeight > w.Height {
			return fmt.Errorf("%w: window %q is smaller than its minimum size", ErrInvalidConfig, w.Label)
		}
	}

	names := make(map[string]bool, len(c.Plugins.Shell.Scope))
	for _, s := range c.Plugins.Shell.Scope {
		if names[s.Name] {
			return fmt.Errorf("%w: duplicate shell scope %q", ErrInvalidConfig, s.Name)
		}
		names[s.Name] = true
	}

	if c.Plugins.Updater.Active && c.Plugins.Updater.Interval.Duration() < time.Minute {
		return fmt.Errorf("%w: updater interval must be at least 1m, got %s",
			ErrInvalidConfig, c.Plugins.Updater.Interval.Duration())
	}

	return nil
}

// Window returns the declaration of the window with the given label.
func (c *AppConfig) Window(label string) (WindowConfig, bool) {
	for _, w := range c.Windows {
		if w.Label == label {
			return w, true
		}
	}
	return WindowConfig{}, false
}

// Clone returns a deep copy of the configuration.
func (c *AppConfig) Clone() *AppConfig {
	if c == nil {
		return nil
	}
	dup := *c
	dup.Windows = append([]WindowConfig(nil), c.Windows...)
	dup.Plugins.Shell.Scope = make([]ShellScope, len(c.Plugins.Shell.Scope))
	for i, s := range c.Plugins.Shell.Scope {
		s.Args = append([]string(nil), s.Args...)
		dup.Plugins.Shell.Scope[i] = s
	}
	return &dup
}

// CanonicalVersion returns version with a leading "v", as golang.org/x/mod/semver expects.
func CanonicalVersion(version string) string {
	return "v" + strings.TrimPrefix(strings.TrimSpace(version), "v")
}

func describeValidation(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
