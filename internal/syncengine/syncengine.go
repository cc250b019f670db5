// Package syncengine implements the Sync Engine: one request/response
// exchange per invocation, clock advancement on success, re-enqueue on
// failure, and handoff of remote operations to the Remote Applier.
package syncengine

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/tabsync/internal/applier"
	"github.com/teranos/tabsync/internal/clock"
	"github.com/teranos/tabsync/internal/ops"
	"github.com/teranos/tabsync/internal/protocol"
	"github.com/teranos/tabsync/internal/queue"
	"github.com/teranos/tabsync/internal/state"
)

// Syncer issues a sync exchange. Implemented by internal/transport.Client;
// abstracted here so the engine is testable without an HTTP server.
type Syncer interface {
	Sync(ctx context.Context, req protocol.Request) (protocol.Response, error)
}

// Engine ties the clock, queue, transport, applier, and persistent
// state store together into one sync exchange.
type Engine struct {
	clock     *clock.Clock
	queue     *queue.Queue
	store     *state.Store
	transport Syncer
	applier   *applier.Applier
	log       *zap.SugaredLogger

	deviceID string

	mu            sync.Mutex
	syncing       bool
	lastSyncClock *uint64
}

// New constructs an Engine. deviceID must already be minted/loaded.
// lastSyncClock is nil on the very first sync, per §4.6 step 3. log may
// be nil.
func New(deviceID string, lastSyncClock *uint64, c *clock.Clock, q *queue.Queue, st *state.Store, tr Syncer, ap *applier.Applier, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{
		deviceID:      deviceID,
		lastSyncClock: lastSyncClock,
		clock:         c,
		queue:         q,
		store:         st,
		transport:     tr,
		applier:       ap,
		log:           log,
	}
}

// Sync runs one request/response exchange. A concurrent invocation
// while one is already in flight returns nil immediately (a no-op
// success), per §4.6's at-most-one latch.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return nil
	}
	e.syncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	drained := e.queue.Drain()
	operations := make([]ops.Msg, len(drained))
	for i, entry := range drained {
		operations[i] = entry.Operation
	}

	var sinceClock *ops.DecimalU64
	e.mu.Lock()
	if e.lastSyncClock != nil {
		v := ops.DecimalU64(*e.lastSyncClock)
		sinceClock = &v
	}
	e.mu.Unlock()

	req := protocol.Request{
		Clock:      ops.DecimalU64(e.clock.Snapshot()),
		DeviceID:   e.deviceID,
		SinceClock: sinceClock,
		Operations: operations,
	}

	resp, err := e.transport.Sync(ctx, req)
	if err != nil {
		e.log.Warnw("sync exchange failed", "error", err, "drained", len(drained))
		e.queue.Reinsert(drained)
		return err
	}

	e.clock.Observe(resp.Clock.Uint64())
	newSinceClock := resp.Clock.Uint64()

	e.mu.Lock()
	e.lastSyncClock = &newSinceClock
	e.mu.Unlock()

	e.applier.ApplyAll(resp.Operations)

	lamportStr := strconv.FormatUint(e.clock.Snapshot(), 10)
	sinceStr := strconv.FormatUint(newSinceClock, 10)
	if err := e.store.Save(state.SaveFields{
		DeviceID:      &e.deviceID,
		LamportClock:  &lamportStr,
		LastSyncClock: &sinceStr,
	}); err != nil {
		e.log.Warnw("failed to persist state after sync", "error", err)
	}

	return nil
}

// LastSyncClock returns the clock value as of the last successful
// exchange, or nil if none has happened yet.
func (e *Engine) LastSyncClock() *uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastSyncClock == nil {
		return nil
	}
	v := *e.lastSyncClock
	return &v
}
