package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/tabsync/internal/browser"
	"github.com/teranos/tabsync/internal/protocol"
	"github.com/teranos/tabsync/internal/scheduler"
	"github.com/teranos/tabsync/internal/state"
	tabtesting "github.com/teranos/tabsync/internal/testing"
)

type fakeSyncer struct {
	resp protocol.Response
	err  error
	reqs []protocol.Request
}

func (f *fakeSyncer) Sync(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func newTestAgent(t *testing.T, fs *fakeSyncer) (*Agent, *browser.FakeEventSource) {
	t.Helper()
	db := tabtesting.CreateTestDB(t)
	st := state.New(db, nil)
	es := browser.NewFakeEventSource()
	br := browser.NewFake()

	cfg := scheduler.DefaultConfig()
	a, err := New(cfg, st, br, es, fs, nil)
	require.NoError(t, err)
	return a, es
}

func TestNewMintsDeviceIDOnFirstRun(t *testing.T) {
	a, _ := newTestAgent(t, &fakeSyncer{})
	assert.NotEmpty(t, a.DeviceID())
}

func TestNewReusesPersistedDeviceID(t *testing.T) {
	db := tabtesting.CreateTestDB(t)
	st := state.New(db, nil)
	deviceID := "existing-device"
	require.NoError(t, st.Save(state.SaveFields{DeviceID: &deviceID}))

	es := browser.NewFakeEventSource()
	br := browser.NewFake()
	a, err := New(scheduler.DefaultConfig(), st, br, es, &fakeSyncer{}, nil)
	require.NoError(t, err)
	assert.Equal(t, deviceID, a.DeviceID())
}

func TestTrackWindowEnqueuesTrackWindowOp(t *testing.T) {
	a, _ := newTestAgent(t, &fakeSyncer{})
	a.Track(42)

	assert.Contains(t, a.TrackedWindows(), 42)
	assert.Equal(t, 1, a.QueueLength())
}

func TestUntrackedWindowEventsAreFiltered(t *testing.T) {
	a, es := newTestAgent(t, &fakeSyncer{})
	// window 42 is never tracked
	es.Push(browser.Event{
		Kind: browser.EventTabCreated,
		Tab:  browser.Tab{ID: "t1", WindowID: 42, URL: "https://example.com"},
	})

	a.Start()
	defer a.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, a.QueueLength(), "events for untracked windows must be ignored")
}

func TestTrackedWindowEventsAreEnqueued(t *testing.T) {
	a, es := newTestAgent(t, &fakeSyncer{})
	a.Track(7)
	// Track itself enqueues a track_window op; drain it before asserting.
	a.queue.Drain()

	a.Start()
	defer a.Stop()

	es.Push(browser.Event{
		Kind: browser.EventTabCreated,
		Tab:  browser.Tab{ID: "t1", WindowID: 7, URL: "https://example.com"},
	})

	require.Eventually(t, func() bool {
		return a.QueueLength() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTabUpdatedURLOnlyBecomesChangeURL(t *testing.T) {
	a, es := newTestAgent(t, &fakeSyncer{})
	a.Track(7)
	a.queue.Drain()
	a.Start()
	defer a.Stop()

	url := "https://new.example.com"
	es.Push(browser.Event{
		Kind:   browser.EventTabUpdated,
		Tab:    browser.Tab{ID: "t1", WindowID: 7, URL: url},
		Change: &browser.Change{URL: &url},
	})

	require.Eventually(t, func() bool { return a.QueueLength() == 1 }, time.Second, 5*time.Millisecond)
	drained := a.queue.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, "change_url", string(drained[0].Operation.Type))
}

func TestWindowRemovedUntracksAndStopsSchedulerWhenEmpty(t *testing.T) {
	a, es := newTestAgent(t, &fakeSyncer{})
	a.Track(7)
	a.queue.Drain()
	a.Start()
	defer a.Stop()

	es.Push(browser.Event{Kind: browser.EventWindowRemoved, WindowID: 7})

	require.Eventually(t, func() bool {
		return len(a.TrackedWindows()) == 0
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return !a.schedulerRunning
	}, time.Second, 5*time.Millisecond, "scheduler must stop once the last tracked window is removed")
}

func TestUntrackLastWindowStopsScheduler(t *testing.T) {
	a, _ := newTestAgent(t, &fakeSyncer{})
	a.Track(1)
	a.Start()
	defer a.Stop()

	a.Untrack(1)
	assert.Empty(t, a.TrackedWindows())

	a.mu.Lock()
	running := a.schedulerRunning
	a.mu.Unlock()
	assert.False(t, running, "scheduler must stop once no windows remain tracked")
}

func TestUntrackWithRemainingWindowsForcesSync(t *testing.T) {
	fs := &fakeSyncer{resp: protocol.Response{Clock: 1}}
	a, _ := newTestAgent(t, fs)
	a.Track(1)
	a.Track(2)
	a.Start()
	defer a.Stop()

	a.Untrack(1)

	require.Eventually(t, func() bool {
		return len(fs.reqs) > 0
	}, time.Second, 5*time.Millisecond)
}
