// Package agent wires the seven core components (clock, persistent
// state store, window tracker, operation queue, adaptive scheduler,
// sync engine, remote applier) into the single cooperating unit spec §2
// describes: it filters raw browser events through the tracker,
// converts the survivors into CRDT operations, and routes the three
// user-facing control messages from spec §6.1.
package agent

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/tabsync/internal/applier"
	"github.com/teranos/tabsync/internal/browser"
	"github.com/teranos/tabsync/internal/clock"
	"github.com/teranos/tabsync/internal/ops"
	"github.com/teranos/tabsync/internal/queue"
	"github.com/teranos/tabsync/internal/scheduler"
	"github.com/teranos/tabsync/internal/state"
	"github.com/teranos/tabsync/internal/syncengine"
	"github.com/teranos/tabsync/internal/tracker"
)

// nowMillis returns the current wall-clock reading in unix milliseconds,
// used to stamp every CRDT operation's causal timestamp at enqueue time.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// Agent is the assembled core: the single-executor event loop that
// turns browser activity into queued, scheduled, synced CRDT operations
// and replays the server's response back onto the browser.
type Agent struct {
	deviceID string

	clock     *clock.Clock
	tracker   *tracker.Tracker
	queue     *queue.Queue
	scheduler *scheduler.Scheduler
	engine    *syncengine.Engine
	applier   *applier.Applier
	store     *state.Store

	browser browser.Browser
	events  browser.EventSource

	log *zap.SugaredLogger

	mu               sync.Mutex
	schedulerRunning bool
	stopConsume      chan struct{}
}

// New loads persisted device identity and clock state (minting a device
// id on first run), constructs every core component, and returns an
// Agent ready for Start. syncer is the transport (internal/transport.Client
// satisfies internal/syncengine.Syncer); br and es are the extension
// shell's tab surface and raw event feed. log may be nil.
func New(schedCfg scheduler.Config, st *state.Store, br browser.Browser, es browser.EventSource, syncer syncengine.Syncer, log *zap.SugaredLogger) (*Agent, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	loaded, err := st.Load()
	if err != nil {
		log.Warnw("failed to load persisted state, starting fresh", "error", err)
		loaded = state.Loaded{}
	}

	deviceID, err := resolveDeviceID(loaded, st, log)
	if err != nil {
		return nil, err
	}

	clockSeed := parseU64OrZero(loaded.LamportClock, log)
	lastSyncClock := parseU64Ptr(loaded.LastSyncClock, log)

	c := clock.New(clockSeed)
	tr := tracker.New()
	q := queue.New(schedCfg.MaxQueueSize)
	ap := applier.New(br, tr, log)
	engine := syncengine.New(deviceID, lastSyncClock, c, q, st, syncer, ap, log)

	a := &Agent{
		deviceID: deviceID,
		clock:    c,
		tracker:  tr,
		queue:    q,
		engine:   engine,
		applier:  ap,
		store:    st,
		browser:  br,
		events:   es,
		log:      log,
	}
	a.scheduler = scheduler.New(schedCfg, a.engine.Sync, log, nil)

	return a, nil
}

// resolveDeviceID returns the persisted device id, or mints, persists,
// and returns a new one on first run (spec §3).
func resolveDeviceID(loaded state.Loaded, st *state.Store, log *zap.SugaredLogger) (string, error) {
	if loaded.DeviceID != nil && *loaded.DeviceID != "" {
		return *loaded.DeviceID, nil
	}
	id := state.MintDeviceID(time.Now())
	if err := st.Save(state.SaveFields{DeviceID: &id}); err != nil {
		log.Warnw("failed to persist minted device id", "error", err)
	}
	return id, nil
}

func parseU64OrZero(s *string, log *zap.SugaredLogger) uint64 {
	if s == nil {
		return 0
	}
	v, err := strconv.ParseUint(*s, 10, 64)
	if err != nil {
		log.Warnw("failed to parse persisted clock value, starting from zero", "value", *s, "error", err)
		return 0
	}
	return v
}

func parseU64Ptr(s *string, log *zap.SugaredLogger) *uint64 {
	if s == nil {
		return nil
	}
	v, err := strconv.ParseUint(*s, 10, 64)
	if err != nil {
		log.Warnw("failed to parse persisted last_sync_clock, treating as absent", "value", *s, "error", err)
		return nil
	}
	return &v
}

// DeviceID returns this installation's stable device identifier.
func (a *Agent) DeviceID() string { return a.deviceID }

// Start begins consuming the browser event feed. The scheduler itself
// stays dormant until the first window is tracked (spec §6.1's "start
// scheduler if idle"), unless the tracker is already non-empty (a
// caller that tracked windows before calling Start).
func (a *Agent) Start() {
	a.mu.Lock()
	a.stopConsume = make(chan struct{})
	stop := a.stopConsume
	a.mu.Unlock()

	go a.consumeEvents(stop)

	if a.tracker.TrackedCount() > 0 {
		a.startSchedulerIfIdle()
	}
}

// Stop halts event consumption and the scheduler. A sync already in
// flight runs to completion.
func (a *Agent) Stop() {
	a.mu.Lock()
	if a.stopConsume != nil {
		close(a.stopConsume)
		a.stopConsume = nil
	}
	a.mu.Unlock()
	a.scheduler.Stop()
}

func (a *Agent) consumeEvents(stop <-chan struct{}) {
	for {
		select {
		case ev, ok := <-a.events.Events():
			if !ok {
				return
			}
			a.handleEvent(ev)
		case <-stop:
			return
		}
	}
}

func (a *Agent) startSchedulerIfIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.schedulerRunning {
		return
	}
	a.schedulerRunning = true
	a.scheduler.Start()
}

func (a *Agent) stopScheduler() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.schedulerRunning {
		return
	}
	a.schedulerRunning = false
	a.scheduler.Stop()
}

// enqueue ticks the Lamport clock once for this locally originated
// operation (§3: "every locally originated operation increments it by
// 1 before stamping"), enqueues it, and feeds queue-length feedback
// into the scheduler per §4.5's batch-flush and queue-threshold rules.
// The op's own updated_at/closed_at stamp is wall-clock milliseconds
// per §3's operation definition; the Tick is what advances the
// separate per-device clock the sync request's Clock field reports.
func (a *Agent) enqueue(op ops.Msg) {
	a.clock.Tick()
	priority, _ := a.queue.Enqueue(op)
	a.scheduler.OnEnqueue(priority, a.queue.Length())
}

// --- §6.1 control messages ---

// Track handles TRACK_WINDOW: adds windowID to the tracked set, emits a
// track_window operation so the intent propagates to other devices, and
// starts the scheduler if it was idle.
func (a *Agent) Track(windowID int) {
	a.tracker.Track(windowID)
	a.enqueue(ops.NewTrackWindow(strconv.Itoa(windowID), true, uint64(nowMillis())))
	a.startSchedulerIfIdle()
}

// Untrack handles UNTRACK_WINDOW: removes windowID from the tracked
// set, emits an untrack_window operation, and either stops the
// scheduler (if no windows remain tracked) or forces an immediate sync
// so the untrack propagates promptly.
func (a *Agent) Untrack(windowID int) {
	a.tracker.Untrack(windowID)
	a.enqueue(ops.NewUntrackWindow(strconv.Itoa(windowID), uint64(nowMillis())))

	if a.tracker.TrackedCount() == 0 {
		a.stopScheduler()
		return
	}
	a.scheduler.ForceSync()
}

// TrackedWindows handles GET_TRACKED_WINDOWS.
func (a *Agent) TrackedWindows() []int {
	return a.tracker.TrackedWindows()
}

// QueueLength reports the current operation queue depth, for status
// surfaces.
func (a *Agent) QueueLength() int { return a.queue.Length() }

// ConsecutiveErrors reports the scheduler's current error streak.
func (a *Agent) ConsecutiveErrors() int { return a.scheduler.ConsecutiveErrors() }

// NextIntervalMS reports the scheduler's next sync interval.
func (a *Agent) NextIntervalMS() int64 { return a.scheduler.NextIntervalMS() }

// LastSyncClock reports the clock value as of the last successful sync,
// or nil if none has happened yet.
func (a *Agent) LastSyncClock() *uint64 { return a.engine.LastSyncClock() }

// --- raw browser event -> CRDT operation translation (§6.1) ---

func (a *Agent) handleEvent(ev browser.Event) {
	switch ev.Kind {
	case browser.EventTabCreated:
		a.handleTabCreated(ev)
	case browser.EventTabUpdated:
		a.handleTabUpdated(ev)
	case browser.EventTabMoved:
		a.handleTabMoved(ev)
	case browser.EventTabRemoved:
		a.handleTabRemoved(ev)
	case browser.EventTabActivated:
		a.handleTabActivated(ev)
	case browser.EventWindowRemoved:
		a.handleWindowRemoved(ev)
	default:
		a.log.Warnw("agent: unknown browser event kind", "kind", ev.Kind)
	}
}

func (a *Agent) handleTabCreated(ev browser.Event) {
	if !a.tracker.IsTracked(ev.Tab.WindowID) {
		return
	}
	a.enqueue(ops.NewUpsertTab(ev.Tab.ID, ev.Tab.WindowID, ev.Tab.URL, ev.Tab.Title, ev.Tab.Active, ev.Tab.Index, uint64(nowMillis())))
}

// handleTabUpdated picks the narrowest CRDT variant the observed change
// supports: a pure URL/title change becomes change_url (LOW priority),
// a pure active-flag change becomes set_active (NORMAL), and anything
// broader (or no Change detail at all) falls back to a full upsert_tab
// (HIGH) so no observed field is ever silently dropped.
func (a *Agent) handleTabUpdated(ev browser.Event) {
	if !a.tracker.IsTracked(ev.Tab.WindowID) {
		return
	}
	now := uint64(nowMillis())

	if c := ev.Change; c != nil {
		switch {
		case c.URL != nil && c.Active == nil:
			title := ev.Tab.Title
			if c.Title != nil {
				title = *c.Title
			}
			a.enqueue(ops.NewChangeURL(ev.Tab.ID, *c.URL, title, now))
			return
		case c.Active != nil && c.URL == nil && c.Title == nil:
			a.enqueue(ops.NewSetActive(ev.Tab.ID, *c.Active, now))
			return
		}
	}

	a.enqueue(ops.NewUpsertTab(ev.Tab.ID, ev.Tab.WindowID, ev.Tab.URL, ev.Tab.Title, ev.Tab.Active, ev.Tab.Index, now))
}

func (a *Agent) handleTabMoved(ev browser.Event) {
	if !a.tracker.IsTracked(ev.WindowID) {
		return
	}
	a.enqueue(ops.NewMoveTab(ev.TabID, ev.WindowID, ev.Index, uint64(nowMillis())))
}

func (a *Agent) handleTabRemoved(ev browser.Event) {
	if ev.WindowClosing {
		// the window_removed event for this same window converges the
		// tracked set; no need to also close every tab within it.
		return
	}
	if !a.tracker.IsTracked(ev.WindowID) {
		return
	}
	a.enqueue(ops.NewCloseTab(ev.TabID, uint64(nowMillis())))
}

func (a *Agent) handleTabActivated(ev browser.Event) {
	if !a.tracker.IsTracked(ev.WindowID) {
		return
	}
	a.enqueue(ops.NewSetActive(ev.TabID, true, uint64(nowMillis())))
}

func (a *Agent) handleWindowRemoved(ev browser.Event) {
	if !a.tracker.IsTracked(ev.WindowID) {
		return
	}
	a.tracker.Untrack(ev.WindowID)
	a.enqueue(ops.NewUntrackWindow(strconv.Itoa(ev.WindowID), uint64(nowMillis())))

	if a.tracker.TrackedCount() == 0 {
		a.stopScheduler()
	}
}
