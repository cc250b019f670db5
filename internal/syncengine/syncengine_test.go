package syncengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/tabsync/internal/applier"
	"github.com/teranos/tabsync/internal/browser"
	"github.com/teranos/tabsync/internal/clock"
	"github.com/teranos/tabsync/internal/ops"
	"github.com/teranos/tabsync/internal/protocol"
	"github.com/teranos/tabsync/internal/queue"
	"github.com/teranos/tabsync/internal/state"
	"github.com/teranos/tabsync/internal/tracker"
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

func newEngine(t *testing.T, deviceID string, lastSyncClock *uint64, fs *fakeSyncer) (*Engine, *queue.Queue, *state.Store) {
	t.Helper()
	db := tabtesting.CreateTestDB(t)
	st := state.New(db, nil)
	q := queue.New(1000)
	c := clock.New(0)
	a := applier.New(browser.NewFake(), tracker.New(), nil)
	e := New(deviceID, lastSyncClock, c, q, st, fs, a, nil)
	return e, q, st
}

func TestFirstSyncEmptyQueueNullSinceClock(t *testing.T) {
	fs := &fakeSyncer{resp: protocol.Response{Clock: 5}}
	e, _, st := newEngine(t, "d1", nil, fs)

	require.NoError(t, e.Sync(context.Background()))

	require.Len(t, fs.reqs, 1)
	assert.Nil(t, fs.reqs[0].SinceClock)
	assert.Equal(t, "d1", fs.reqs[0].DeviceID)
	assert.Empty(t, fs.reqs[0].Operations)

	require.NotNil(t, e.LastSyncClock())
	assert.Equal(t, uint64(5), *e.LastSyncClock())

	loaded, err := st.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded.LastSyncClock)
	assert.Equal(t, "5", *loaded.LastSyncClock)
}

func TestFailureReinsertsDrainedOperations(t *testing.T) {
	fs := &fakeSyncer{err: assert.AnError}
	e, q, _ := newEngine(t, "d1", nil, fs)

	q.Enqueue(ops.NewCloseTab("k1", 1))
	q.Enqueue(ops.NewCloseTab("k2", 2))
	q.Enqueue(ops.NewCloseTab("k3", 3))

	err := e.Sync(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 3, q.Length(), "drained operations must be reinserted on failure")
}

func TestConcurrentSyncIsANoOp(t *testing.T) {
	fs := &fakeSyncer{resp: protocol.Response{Clock: 1}}
	e, _, _ := newEngine(t, "d1", nil, fs)

	e.mu.Lock()
	e.syncing = true
	e.mu.Unlock()

	err := e.Sync(context.Background())
	assert.NoError(t, err, "a concurrent invocation must return a no-op success")
	assert.Empty(t, fs.reqs, "no exchange should have been issued")
}
