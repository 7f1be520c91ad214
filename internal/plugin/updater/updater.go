// Package updater is the self-update capability plugin. It periodically
// checks the latest GitHub release and announces newer versions on the
// Host's event loop and as a desktop notification.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/kontrol/internal/config"
	"github.com/jmylchreest/kontrol/internal/host"
	"github.com/jmylchreest/kontrol/internal/notify"
	"github.com/jmylchreest/kontrol/internal/store"
)

// Name is the plugin's registration name.
const Name = "updater"

// Plugin event names.
const (
	EventUpdateAvailable = "update-available"
	EventUpdateDismissed = "update-dismissed"
	EventOpenRelease     = "open-release" // payload: URL string
)

// actionOpen is the notification action that opens the download URL.
const actionOpen = "default"

// Plugin is the updater plugin descriptor.
type Plugin struct {
	opts []Option
}

// New creates the updater plugin.
func New(opts ...Option) *Plugin {
	return &Plugin{opts: opts}
}

// Name implements host.Plugin.
func (p *Plugin) Name() string { return Name }

// Init implements host.Plugin.
func (p *Plugin) Init(ic *host.InitContext) (host.Handle, error) {
	cfg := ic.Config.Plugins.Updater
	logger := ic.Logger

	checker, err := NewChecker(ic.App, cfg, logger, p.opts...)
	if err != nil {
		return nil, err
	}

	logger.Debug("updater initialized",
		"active", cfg.Active,
		"repository", cfg.Repository,
		"interval", cfg.Interval.Duration())

	return &Handle{
		Checker:  checker,
		cfg:      cfg,
		app:      ic.App,
		emit:     ic.Emit,
		logger:   logger,
		notifier: buildOptions(p.opts).notifier,
		done:     make(chan struct{}),
	}, nil
}

// Handle is the initialized updater plugin.
type Handle struct {
	*Checker

	cfg      config.UpdaterConfig
	app      config.AppInfo
	emit     func(name string, payload any)
	logger   *slog.Logger
	notifier notify.Notifier
	watcher  *store.Watcher

	mu        sync.Mutex
	announced *Update
	noteID    uint32
	actions   bool
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Start implements host.Starter. It checks once immediately and then every
// configured interval until ctx is cancelled or the handle is closed.
func (h *Handle) Start(ctx context.Context) error {
	if !h.cfg.Active {
		h.logger.Debug("updater inactive")
		return nil
	}

	if h.cfg.Dialog && h.notifier == nil {
		h.notifier = notify.New(h.app.ProductName, h.logger)
	}
	if h.notifier != nil {
		h.describeNotifier(ctx)
	}
	if n, ok := h.notifier.(interface{ SetActionHandler(notify.ActionHandler) }); ok {
		n.SetActionHandler(h.onAction)
	}

	w, err := store.NewWatcher(h.State(), h.logger)
	if err != nil {
		h.logger.Warn("state watcher unavailable", "error", err)
	} else {
		w.SetChangeCallback(h.onStateChange)
		if err := w.Start(ctx); err != nil {
			h.logger.Warn("failed to watch state file", "error", err)
			_ = w.Stop()
		} else {
			h.watcher = w
		}
	}

	h.wg.Add(1)
	go h.loop(ctx)
	return nil
}

// describeNotifier logs the notification daemon and records whether it can
// show the Download action.
func (h *Handle) describeNotifier(ctx context.Context) {
	actions := notify.SupportsActions(ctx, h.notifier)
	h.mu.Lock()
	h.actions = actions
	h.mu.Unlock()

	q, ok := h.notifier.(notify.ServerQuerier)
	if !ok {
		return
	}
	info, err := q.ServerInformation(ctx)
	if err != nil {
		h.logger.Debug("notification server unavailable", "error", err)
		return
	}
	h.logger.Debug("notification server",
		"name", info.Name,
		"vendor", info.Vendor,
		"version", info.Version,
		"actions", actions)
}

func (h *Handle) loop(ctx context.Context) {
	defer h.wg.Done()

	h.checkAndAnnounce(ctx)

	ticker := time.NewTicker(h.cfg.Interval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.checkAndAnnounce(ctx)
		}
	}
}

func (h *Handle) checkAndAnnounce(ctx context.Context) {
	u, err := h.Check(ctx)
	if err != nil {
		if ctx.Err() == nil {
			h.logger.Warn("update check failed", "error", err)
		}
		return
	}
	if u == nil {
		return
	}

	h.mu.Lock()
	if h.announced != nil && h.announced.Version == u.Version {
		h.mu.Unlock()
		return
	}
	h.announced = u
	actions := h.actions
	h.mu.Unlock()

	h.logger.Info("update available", "version", u.Version, "current", u.CurrentVersion)
	h.emit(EventUpdateAvailable, *u)

	if h.cfg.Dialog && h.notifier != nil {
		note := notify.Notification{
			Summary:  fmt.Sprintf("%s %s is available", h.app.ProductName, u.Version),
			Body:     fmt.Sprintf("You are running %s.", u.CurrentVersion),
			Urgency:  notify.UrgencyNormal,
			Category: "x-kontrol.update",
		}
		if actions {
			note.Actions = []notify.Action{{Key: actionOpen, Label: "Download"}}
		}
		id, err := h.notifier.Notify(ctx, note)
		if err != nil {
			h.logger.Warn("failed to show update notification", "error", err)
			return
		}
		h.mu.Lock()
		h.noteID = id
		h.mu.Unlock()
	}
}

// Announced returns the last update announced, if any.
func (h *Handle) Announced() *Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.announced
}

// Dismiss persists version as dismissed and stops announcing it.
func (h *Handle) Dismiss(version string) error {
	if err := h.Checker.Dismiss(version); err != nil {
		return err
	}
	h.forget(version)
	return nil
}

func (h *Handle) forget(version string) {
	h.mu.Lock()
	u := h.announced
	if u == nil || !sameVersion(u.Version, version) {
		h.mu.Unlock()
		return
	}
	h.announced = nil
	id := h.noteID
	h.noteID = 0
	h.mu.Unlock()

	h.emit(EventUpdateDismissed, u.Version)

	// Withdraw the notification for a version that is no longer announced.
	if w, ok := h.notifier.(notify.Withdrawer); ok && id != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.CloseNotification(ctx, id); err != nil {
			h.logger.Debug("failed to withdraw update notification", "id", id, "error", err)
		}
	}
}

func (h *Handle) onStateChange(s *store.State) {
	if s.DismissedVersion != "" {
		h.forget(s.DismissedVersion)
	}
}

func (h *Handle) onAction(_ uint32, key string) {
	if key != actionOpen {
		return
	}
	if u := h.Announced(); u != nil {
		h.emit(EventOpenRelease, u.URL)
	}
}

// Close implements host.Handle.
func (h *Handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		if h.watcher != nil {
			if werr := h.watcher.Stop(); werr != nil {
				err = werr
			}
		}
		if h.notifier != nil {
			if nerr := h.notifier.Close(); nerr != nil && err == nil {
				err = nerr
			}
		}
	})
	return err
}

func sameVersion(a, b string) bool {
	return config.CanonicalVersion(a) == config.CanonicalVersion(b)
}
