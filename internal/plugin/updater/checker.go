package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/jmylchreest/kontrol/internal/config"
	"github.com/jmylchreest/kontrol/internal/notify"
	"github.com/jmylchreest/kontrol/internal/store"
)

// ErrDisabled is returned by Check when the updater is not active.
var ErrDisabled = errors.New("updater is disabled")

// Update describes an available release.
type Update struct {
	Version        string    `json:"version"`
	CurrentVersion string    `json:"current_version"`
	Notes          string    `json:"notes,omitempty"`
	PublishedAt    time.Time `json:"published_at"`
	URL            string    `json:"url"`             // Installer download, or the release page
	AssetName      string    `json:"asset,omitempty"` // Empty when URL is the release page
	Size           int64     `json:"size,omitempty"`
}

// Option configures a Checker or the updater Plugin.
type Option func(*options)

type options struct {
	httpClient *http.Client
	goos       string
	state      *store.StateFile
	notifier   notify.Notifier
	now        func() time.Time
}

// WithHTTPClient sets the HTTP client. Defaults to a client using the
// configured request timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithGOOS selects which platform's installer is picked.
func WithGOOS(goos string) Option {
	return func(o *options) {
		if goos != "" {
			o.goos = goos
		}
	}
}

// WithStateFile sets where the dismissed version is persisted. Defaults to
// store.StatePath().
func WithStateFile(f *store.StateFile) Option {
	return func(o *options) { o.state = f }
}

// WithNotifier sets the notifier used when dialog is enabled. By default
// notify.New picks one when the plugin starts.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{goos: runtime.GOOS, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Checker looks up the latest release and decides whether to offer it.
type Checker struct {
	client  *Client
	cfg     config.UpdaterConfig
	current string
	goos    string
	state   *store.StateFile
	now     func() time.Time
	logger  *slog.Logger
}

// NewChecker creates a Checker for an application at version app.Version.
func NewChecker(app config.AppInfo, cfg config.UpdaterConfig, logger *slog.Logger, opts ...Option) (*Checker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := buildOptions(opts)

	if cfg.Active && !validRepository(cfg.Repository) {
		return nil, fmt.Errorf("repository %q must be in owner/name form", cfg.Repository)
	}

	if o.state == nil {
		path, err := store.StatePath()
		if err != nil {
			return nil, fmt.Errorf("failed to get state path: %w", err)
		}
		o.state = store.NewStateFile(path)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout.Duration()}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = config.DefaultUpdaterEndpoint
	}

	return &Checker{
		client:  NewClient(httpClient, endpoint, "kontrol/"+app.Version),
		cfg:     cfg,
		current: app.Version,
		goos:    o.goos,
		state:   o.state,
		now:     o.now,
		logger:  logger,
	}, nil
}

// State returns the state file the checker reads and writes.
func (c *Checker) State() *store.StateFile {
	return c.state
}

// Check fetches the latest release. It returns nil without error when the
// running version is current or the release was dismissed.
func (c *Checker) Check(ctx context.Context) (*Update, error) {
	if !c.cfg.Active {
		return nil, ErrDisabled
	}

	rel, err := c.client.LatestRelease(ctx, c.cfg.Repository)
	if err != nil {
		return nil, err
	}

	state, err := c.state.Update(func(s *store.State) {
		s.RecordCheck(rel.TagName, c.now())
	})
	if err != nil {
		c.logger.Warn("failed to record update check", "error", err)
		state = store.DefaultState()
	}

	newer, err := IsNewer(rel.TagName, c.current)
	if err != nil {
		return nil, err
	}
	if !newer {
		c.logger.Debug("up to date", "current", c.current, "latest", rel.TagName)
		return nil, nil
	}
	if state.IsDismissed(rel.TagName) {
		c.logger.Debug("update dismissed", "version", rel.TagName)
		return nil, nil
	}

	u := &Update{
		Version:        strings.TrimPrefix(rel.TagName, "v"),
		CurrentVersion: strings.TrimPrefix(c.current, "v"),
		Notes:          rel.Body,
		PublishedAt:    rel.PublishedAt,
		URL:            rel.HTMLURL,
	}
	if a := PickAsset(rel.Assets, c.goos); a != nil {
		u.URL = a.BrowserDownloadURL
		u.AssetName = a.Name
		u.Size = a.Size
	}
	return u, nil
}

// Dismiss records that version should not be offered again.
func (c *Checker) Dismiss(version string) error {
	if version == "" {
		return errors.New("version is required")
	}
	if _, err := c.state.Update(func(s *store.State) { s.Dismiss(version) }); err != nil {
		return fmt.Errorf("failed to dismiss %s: %w", version, err)
	}
	c.logger.Info("update dismissed", "version", version)
	return nil
}

func validRepository(repo string) bool {
	owner, name, ok := strings.Cut(repo, "/")
	return ok && owner != "" && name != "" && !strings.Contains(name, "/")
}
