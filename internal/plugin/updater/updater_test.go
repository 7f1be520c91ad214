package updater

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/kontrol/internal/config"
	"github.com/jmylchreest/kontrol/internal/host"
	"github.com/jmylchreest/kontrol/internal/notify"
	"github.com/jmylchreest/kontrol/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRelease(tag string) Release {
	return Release{
		TagName:     tag,
		Body:        "Fixes",
		HTMLURL:     "https://github.com/example/app/releases/tag/" + tag,
		PublishedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Assets: []Asset{
			{Name: "app_" + tag + "_x64.dmg", BrowserDownloadURL: "https://dl.example/app.dmg", Size: 100},
			{Name: "app_" + tag + "_amd64.AppImage", BrowserDownloadURL: "https://dl.example/app.AppImage", Size: 200},
			{Name: "app_" + tag + "_x64_en-US.msi", BrowserDownloadURL: "https://dl.example/app.msi", Size: 300},
		},
	}
}

// releaseServer serves rel as the latest release of example/app.
func releaseServer(t *testing.T, rel *Release) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/repos/example/app/releases/latest" || rel == nil {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Contains(t, r.Header.Get("User-Agent"), "kontrol/")
		_ = json.NewEncoder(w).Encode(rel)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testUpdaterConfig(endpoint string) config.UpdaterConfig {
	return config.UpdaterConfig{
		Active:     true,
		Endpoint:   endpoint,
		Repository: "example/app",
		Interval:   config.Duration(time.Hour),
		Timeout:    config.Duration(5 * time.Second),
	}
}

func newTestChecker(t *testing.T, endpoint, current, goos string) *Checker {
	t.Helper()
	c, err := NewChecker(
		config.AppInfo{ProductName: "App", Identifier: "dev.example.app", Version: current},
		testUpdaterConfig(endpoint),
		testLogger(),
		WithGOOS(goos),
		WithStateFile(store.NewStateFile(filepath.Join(t.TempDir(), "state.json"))),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	)
	require.NoError(t, err)
	return c
}

func TestCheck_UpdateAvailable(t *testing.T) {
	tests := []struct {
		goos  string
		url   string
		asset string
	}{
		{"darwin", "https://dl.example/app.dmg", "app_v1.2.0_x64.dmg"},
		{"linux", "https://dl.example/app.AppImage", "app_v1.2.0_amd64.AppImage"},
		{"windows", "https://dl.example/app.msi", "app_v1.2.0_x64_en-US.msi"},
	}

	rel := testRelease("v1.2.0")
	srv, _ := releaseServer(t, &rel)

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			c := newTestChecker(t, srv.URL, "1.1.1", tt.goos)

			u, err := c.Check(context.Background())
			require.NoError(t, err)
			require.NotNil(t, u)
			assert.Equal(t, "1.2.0", u.Version)
			assert.Equal(t, "1.1.1", u.CurrentVersion)
			assert.Equal(t, tt.url, u.URL)
			assert.Equal(t, tt.asset, u.AssetName)
		})
	}
}

func TestCheck_FallsBackToReleasePage(t *testing.T) {
	rel := testRelease("v1.2.0")
	rel.Assets = nil
	srv, _ := releaseServer(t, &rel)

	u, err := newTestChecker(t, srv.URL, "1.1.1", "linux").Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, rel.HTMLURL, u.URL)
	assert.Empty(t, u.AssetName)
}

func TestCheck_NoUpdate(t *testing.T) {
	tests := []struct {
		name    string
		latest  string
		current string
	}{
		{"same version", "v1.1.1", "1.1.1"},
		{"older release", "1.0.9", "1.1.1"},
		{"missing patch equals zero", "v1.2", "1.2.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := testRelease(tt.latest)
			srv, _ := releaseServer(t, &rel)

			u, err := newTestChecker(t, srv.URL, tt.current, "linux").Check(context.Background())
			require.NoError(t, err)
			assert.Nil(t, u)
		})
	}
}

func TestCheck_RecordsState(t *testing.T) {
	rel := testRelease("v1.2.0")
	srv, _ := releaseServer(t, &rel)
	c := newTestChecker(t, srv.URL, "1.1.1", "linux")

	_, err := c.Check(context.Background())
	require.NoError(t, err)

	state, err := c.State().Load()
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", state.LatestVersion)
	assert.Equal(t, int64(1700000000), state.LastCheckAt)
}

func TestCheck_SkipsDismissed(t *testing.T) {
	rel := testRelease("v1.2.0")
	srv, _ := releaseServer(t, &rel)
	c := newTestChecker(t, srv.URL, "1.1.1", "linux")

	require.NoError(t, c.Dismiss("1.2.0"))

	u, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.Nil(t, u)

	// A later release is offered again.
	rel.TagName = "v1.3.0"
	u, err = c.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "1.3.0", u.Version)
}

func TestCheck_Errors(t *testing.T) {
	srv, _ := releaseServer(t, nil)
	_, err := newTestChecker(t, srv.URL, "1.1.1", "linux").Check(context.Background())
	assert.ErrorContains(t, err, "404")

	rel := testRelease("nightly")
	srv, _ = releaseServer(t, &rel)
	_, err = newTestChecker(t, srv.URL, "1.1.1", "linux").Check(context.Background())
	assert.ErrorContains(t, err, "not a semantic version")
}

func TestCheck_Disabled(t *testing.T) {
	cfg := testUpdaterConfig("https://api.github.com")
	cfg.Active = false
	c, err := NewChecker(config.AppInfo{Version: "1.0.0"}, cfg, testLogger(),
		WithStateFile(store.NewStateFile(filepath.Join(t.TempDir(), "state.json"))))
	require.NoError(t, err)

	_, err = c.Check(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestNewChecker_InvalidRepository(t *testing.T) {
	cfg := testUpdaterConfig("https://api.github.com")
	for _, repo := range []string{"", "app", "/app", "a/b/c"} {
		cfg.Repository = repo
		_, err := NewChecker(config.AppInfo{Version: "1.0.0"}, cfg, testLogger())
		assert.Error(t, err, repo)
	}
}

func TestIsNewer(t *testing.T) {
	newer, err := IsNewer("v2.0.0", "1.9.9")
	require.NoError(t, err)
	assert.True(t, newer)

	newer, err = IsNewer("1.1.1", "v1.1.1")
	require.NoError(t, err)
	assert.False(t, newer)

	newer, err = IsNewer("1.2.0-rc.1", "1.1.1")
	require.NoError(t, err)
	assert.True(t, newer)

	_, err = IsNewer("1.0.0", "dev")
	assert.Error(t, err)
}

type recordingNotifier struct {
	mu       sync.Mutex
	notes    []notify.Notification
	onAction notify.ActionHandler
}

func (r *recordingNotifier) SetActionHandler(fn notify.ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAction = fn
}

// invoke simulates the user clicking an action on notification id.
func (r *recordingNotifier) invoke(id uint32, key string) {
	r.mu.Lock()
	fn := r.onAction
	r.mu.Unlock()
	if fn != nil {
		fn(id, key)
	}
}

func (r *recordingNotifier) last() notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notes[len(r.notes)-1]
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return uint32(len(r.notes)), nil
}

func (r *recordingNotifier) Close() error { return nil }

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

func TestPlugin_AnnouncesOnHost(t *testing.T) {
	rel := testRelease("v1.2.0")
	srv, hits := releaseServer(t, &rel)

	cfg := config.Default()
	cfg.Plugins.Updater = testUpdaterConfig(srv.URL)
	cfg.Plugins.Updater.Dialog = true

	notifier := &recordingNotifier{}
	statePath := filepath.Join(t.TempDir(), "state.json")

	h, err := host.NewBuilder(host.WithLogger(testLogger())).
		WithPlugin(New(
			WithGOOS("linux"),
			WithStateFile(store.NewStateFile(statePath)),
			WithNotifier(notifier),
		)).
		Build(host.NewContext(cfg, "test"))
	require.NoError(t, err)

	events := make(chan host.Event, 8)
	h.OnEvent(func(ev host.Event) {
		if ev.Kind == host.EventPlugin {
			events <- ev
		}
	})

	handle, ok := h.Plugin(Name)
	require.True(t, ok)
	updater := handle.(*Handle)

	done := make(chan error, 1)
	go func() { done <- h.Run(context.Background()) }()

	select {
	case ev := <-events:
		assert.Equal(t, Name, ev.Plugin)
		assert.Equal(t, EventUpdateAvailable, ev.Name)
		u, ok := ev.Payload.(Update)
		require.True(t, ok)
		assert.Equal(t, "1.2.0", u.Version)
	case <-time.After(5 * time.Second):
		t.Fatal("no update-available event")
	}

	assert.Equal(t, int32(1), hits.Load())
	assert.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, updater.Dismiss("v1.2.0"))
	select {
	case ev := <-events:
		assert.Equal(t, EventUpdateDismissed, ev.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("no update-dismissed event")
	}
	assert.Nil(t, updater.Announced())

	h.Quit()
	require.NoError(t, <-done)
}

// daemonNotifier is a notifier backed by a daemon without action support.
type daemonNotifier struct {
	recordingNotifier
	closed []uint32
}

func (d *daemonNotifier) ServerInformation(context.Context) (notify.ServerInfo, error) {
	return notify.ServerInfo{Name: "testd", Vendor: "example", Version: "1.0", SpecVersion: "1.2"}, nil
}

func (d *daemonNotifier) Capabilities(context.Context) ([]string, error) {
	return []string{"body", "persistence"}, nil
}

func (d *daemonNotifier) CloseNotification(_ context.Context, id uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = append(d.closed, id)
	return nil
}

func (d *daemonNotifier) closedIDs() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.closed...)
}

type runningPlugin struct {
	host      *host.Host
	handle    *Handle
	events    chan host.Event
	statePath string
	done      chan error
}

func startPlugin(t *testing.T, notifier notify.Notifier) *runningPlugin {
	t.Helper()
	rel := testRelease("v1.2.0")
	srv, _ := releaseServer(t, &rel)

	cfg := config.Default()
	cfg.Plugins.Updater = testUpdaterConfig(srv.URL)
	cfg.Plugins.Updater.Dialog = true

	statePath := filepath.Join(t.TempDir(), "state.json")
	h, err := host.NewBuilder(host.WithLogger(testLogger())).
		WithPlugin(New(
			WithGOOS("linux"),
			WithStateFile(store.NewStateFile(statePath)),
			WithNotifier(notifier),
		)).
		Build(host.NewContext(cfg, "test"))
	require.NoError(t, err)

	rp := &runningPlugin{host: h, events: make(chan host.Event, 8), statePath: statePath, done: make(chan error, 1)}
	h.OnEvent(func(ev host.Event) {
		if ev.Kind == host.EventPlugin {
			rp.events <- ev
		}
	})
	handle, ok := h.Plugin(Name)
	require.True(t, ok)
	rp.handle = handle.(*Handle)

	go func() { rp.done <- h.Run(context.Background()) }()
	t.Cleanup(func() {
		h.Quit()
		require.NoError(t, <-rp.done)
	})

	ev := rp.next(t)
	require.Equal(t, EventUpdateAvailable, ev.Name)
	return rp
}

func (rp *runningPlugin) next(t *testing.T) host.Event {
	t.Helper()
	select {
	case ev := <-rp.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no plugin event")
		return host.Event{}
	}
}

func TestPlugin_DismissedByAnotherProcess(t *testing.T) {
	rp := startPlugin(t, &recordingNotifier{})

	// The CLI writes the state file through its own StateFile.
	_, err := store.NewStateFile(rp.statePath).Update(func(s *store.State) {
		s.Dismiss("v1.2.0")
	})
	require.NoError(t, err)

	ev := rp.next(t)
	assert.Equal(t, EventUpdateDismissed, ev.Name)
	assert.Equal(t, "1.2.0", ev.Payload)
	assert.Nil(t, rp.handle.Announced())
}

func TestPlugin_NotificationActionOpensRelease(t *testing.T) {
	notifier := &recordingNotifier{}
	rp := startPlugin(t, notifier)

	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []notify.Action{{Key: actionOpen, Label: "Download"}}, notifier.last().Actions)

	notifier.invoke(1, "dismissed")
	notifier.invoke(1, actionOpen)

	ev := rp.next(t)
	assert.Equal(t, EventOpenRelease, ev.Name)
	assert.Equal(t, "https://dl.example/app.AppImage", ev.Payload)
}

func TestPlugin_DaemonWithoutActions(t *testing.T) {
	notifier := &daemonNotifier{}
	rp := startPlugin(t, notifier)

	require.Eventually(t, func() bool {
		rp.handle.mu.Lock()
		defer rp.handle.mu.Unlock()
		return rp.handle.noteID != 0
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, notifier.last().Actions)

	require.NoError(t, rp.handle.Dismiss("1.2.0"))
	assert.Equal(t, EventUpdateDismissed, rp.next(t).Name)
	assert.Equal(t, []uint32{1}, notifier.closedIDs())
}

func TestPlugin_InactiveDoesNotCheck(t *testing.T) {
	srv, hits := releaseServer(t, nil)

	cfg := config.Default()
	cfg.Plugins.Updater = testUpdaterConfig(srv.URL)
	cfg.Plugins.Updater.Active = false

	h, err := host.NewBuilder(host.WithLogger(testLogger())).
		WithPlugin(New(WithStateFile(store.NewStateFile(filepath.Join(t.TempDir(), "state.json"))))).
		Build(host.NewContext(cfg, "test"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, h.Run(ctx))
	assert.Zero(t, hits.Load())
}
