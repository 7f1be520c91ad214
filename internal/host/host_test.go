package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAsync(ctx context.Context, h *Host) <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	return done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestRun_BlocksUntilQuit(t *testing.T) {
	backend := NewHeadlessBackend()
	h, err := NewBuilder(WithBackend(backend)).Build(NewContext(testConfig("main"), "test"))
	require.NoError(t, err)

	done := runAsync(context.Background(), h)

	assert.Never(t, func() bool { return len(done) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 1, backend.Runs())

	h.Quit()
	require.NoError(t, waitResult(t, done))
}

func TestRun_StartsPluginsBeforeFirstEvent(t *testing.T) {
	rec := &recorder{}
	backend := NewHeadlessBackend()

	h, err := NewBuilder(WithBackend(backend)).
		WithPlugin(NewPlugin("updater", func(ic *InitContext) (Handle, error) {
			return &startingHandle{rec: rec}, nil
		})).
		WithSetupHook(func(h *Host) error {
			rec.add("hook")
			return nil
		}).
		Build(NewContext(testConfig("main"), "test"))
	require.NoError(t, err)

	h.OnEvent(func(ev Event) { rec.add("event:" + string(ev.Kind)) })
	h.Quit()

	require.NoError(t, h.Run(context.Background()))
	assert.Equal(t, []string{"hook", "start", "event:quit", "close"}, rec.get())
}

type startingHandle struct {
	rec *recorder
}

func (s *startingHandle) Start(ctx context.Context) error {
	s.rec.add("start")
	return nil
}

func (s *startingHandle) Close() error {
	s.rec.add("close")
	return nil
}

func TestRun_StarterFailureIsFatal(t *testing.T) {
	backend := NewHeadlessBackend()
	startErr := errors.New("no network")

	h, err := NewBuilder(WithBackend(backend)).
		WithPlugin(NewPlugin("updater", func(ic *InitContext) (Handle, error) {
			return failingStarter{err: startErr}, nil
		})).
		Build(NewContext(testConfig("main"), "test"))
	require.NoError(t, err)

	err = h.Run(context.Background())
	assert.ErrorIs(t, err, ErrRuntimeFatal)
	assert.ErrorIs(t, err, startErr)
	assert.Zero(t, backend.Runs())
}

type failingStarter struct {
	NopHandle
	err error
}

func (f failingStarter) Start(ctx context.Context) error { return f.err }

func TestRun_PluginEventsFromInitAreDeliveredInOrder(t *testing.T) {
	h, err := NewBuilder().
		WithPlugin(NewPlugin("updater", func(ic *InitContext) (Handle, error) {
			ic.Emit("checking", nil)
			ic.Emit("update-available", "1.2.0")
			return nil, nil
		})).
		Build(NewContext(testConfig("main"), "test"))
	require.NoError(t, err)

	var mu sync.Mutex
	var got []Event
	h.OnEvent(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	})
	h.Quit()

	require.NoError(t, h.Run(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	assert.Equal(t, "checking", got[0].Name)
	assert.Equal(t, "update-available", got[1].Name)
	assert.Equal(t, "updater", got[1].Plugin)
	assert.Equal(t, "1.2.0", got[1].Payload)
	assert.Equal(t, EventQuit, got[2].Kind)
	for _, ev := range got {
		assert.False(t, ev.ID.IsZero())
	}
}

func TestRun_LastWindowClosed(t *testing.T) {
	backend := NewHeadlessBackend()
	h, err := NewBuilder(WithBackend(backend)).Build(NewContext(testConfig("main", "settings"), "test"))
	require.NoError(t, err)

	done := runAsync(context.Background(), h)

	backend.CloseWindow("settings")
	assert.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	backend.CloseWindow("main")
	require.NoError(t, waitResult(t, done))
}

func TestRun_LastWindowClosedKeepsRunningWhenPolicySaysSo(t *testing.T) {
	backend := NewHeadlessBackend()
	h, err := NewBuilder(WithBackend(backend), WithExitOnLastWindowClosed(false)).
		Build(NewContext(testConfig("main"), "test"))
	require.NoError(t, err)

	done := runAsync(context.Background(), h)

	backend.CloseWindow("main")
	assert.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Empty(t, h.Windows())

	h.Quit()
	require.NoError(t, waitResult(t, done))
}

func TestRun_ContextCancelledIsGraceful(t *testing.T) {
	h, err := NewBuilder().Build(NewContext(testConfig("main"), "test"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, h)
	cancel()

	require.NoError(t, waitResult(t, done))
}

func TestRun_EventSourceFailure(t *testing.T) {
	backend := NewHeadlessBackend()
	h, err := NewBuilder(WithBackend(backend)).Build(NewContext(testConfig("main"), "test"))
	require.NoError(t, err)

	loopErr := errors.New("display connection lost")
	done := runAsync(context.Background(), h)
	backend.Fail(loopErr)

	err = waitResult(t, done)
	assert.ErrorIs(t, err, ErrRuntimeFatal)
	assert.ErrorIs(t, err, loopErr)

	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "event source failed", rerr.Reason)
}

func TestRun_FatalEvent(t *testing.T) {
	h, err := NewBuilder().Build(NewContext(testConfig("main"), "test"))
	require.NoError(t, err)

	fault := errors.New("renderer crashed")
	h.Emit(Event{Kind: EventFatal, Err: fault})

	err = h.Run(context.Background())
	assert.ErrorIs(t, err, ErrRuntimeFatal)
	assert.ErrorIs(t, err, fault)
}

func TestRun_HostIsConsumed(t *testing.T) {
	rec := &recorder{}
	backend := NewHeadlessBackend()
	h, err := NewBuilder(WithBackend(backend)).
		WithPlugin(recordingPlugin("shell", rec, nil)).
		WithPlugin(recordingPlugin("updater", rec, nil)).
		Build(NewContext(testConfig("main"), "test"))
	require.NoError(t, err)

	h.Quit()
	require.NoError(t, h.Run(context.Background()))
	assert.Equal(t, []string{"init:shell", "init:updater", "close:updater", "close:shell"}, rec.get())

	w, ok := backend.Window("main")
	require.True(t, ok)
	assert.True(t, w.Destroyed())

	err = h.Run(context.Background())
	assert.ErrorIs(t, err, ErrHostConsumed)
	assert.ErrorIs(t, err, ErrRuntimeFatal)
	assert.Equal(t, 1, backend.Runs())
}

func TestClose_Idempotent(t *testing.T) {
	rec := &recorder{}
	h, err := NewBuilder().
		WithPlugin(recordingPlugin("shell", rec, nil)).
		Build(NewContext(testConfig("main"), "test"))
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Equal(t, []string{"init:shell", "close:shell"}, rec.get())
}

func TestMultipleHostsInOneProcess(t *testing.T) {
	a, err := NewBuilder().Build(NewContext(testConfig("main"), "a"))
	require.NoError(t, err)
	b, err := NewBuilder().Build(NewContext(testConfig("main"), "b"))
	require.NoError(t, err)

	assert.NotEqual(t, a.ID(), b.ID())
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
}
