package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/tabsync/internal/ops"
)

func TestDedupCollapsesToLatest(t *testing.T) {
	q := New(1000)
	q.Enqueue(ops.NewChangeURL("7", "a", "", 100))
	q.Enqueue(ops.NewChangeURL("7", "b", "", 101))

	assert.Equal(t, 1, q.Length())
	drained := q.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, "b", drained[0].Operation.URL)
}

func TestDrainOrdersByPriorityThenSequence(t *testing.T) {
	q := New(1000)
	q.Enqueue(ops.NewChangeURL("1", "a", "", 1))   // LOW
	q.Enqueue(ops.NewCloseTab("2", 2))              // CRITICAL
	q.Enqueue(ops.NewUpsertTab("3", 1, "u", "t", true, 0, 3)) // HIGH

	drained := q.Drain()
	require.Len(t, drained, 3)
	assert.Equal(t, ops.TypeCloseTab, drained[0].Operation.Type)
	assert.Equal(t, ops.TypeUpsertTab, drained[1].Operation.Type)
	assert.Equal(t, ops.TypeChangeURL, drained[2].Operation.Type)
}

func TestDrainEmptiesQueue(t *testing.T) {
	q := New(1000)
	q.Enqueue(ops.NewCloseTab("1", 1))
	q.Drain()
	assert.Equal(t, 0, q.Length())
	assert.Empty(t, q.Drain())
}

func TestQueueBoundEvictsOldest(t *testing.T) {
	q := New(2)
	q.Enqueue(ops.NewCloseTab("1", 1))
	q.Enqueue(ops.NewCloseTab("2", 2))
	q.Enqueue(ops.NewCloseTab("3", 3))

	assert.Equal(t, 2, q.Length())
	drained := q.Drain()
	ids := []string{drained[0].Operation.ID, drained[1].Operation.ID}
	assert.ElementsMatch(t, []string{"2", "3"}, ids, "oldest entry (id=1) must be evicted, not newest")
}

func TestReinsertPreservesLastWriteWinsAgainstNewArrivals(t *testing.T) {
	q := New(1000)
	q.Enqueue(ops.NewCloseTab("k1", 1))
	q.Enqueue(ops.NewCloseTab("k2", 2))
	q.Enqueue(ops.NewCloseTab("k3", 3))

	drained := q.Drain()
	require.Len(t, drained, 3)

	// a fresher k2 arrives while the exchange is "in flight"
	q.Enqueue(ops.NewCloseTab("k2", 99))

	q.Reinsert(drained)

	assert.Equal(t, 3, q.Length())
	final := q.Drain()
	byID := map[string]ops.Msg{}
	for _, e := range final {
		byID[e.Operation.ID] = e.Operation
	}
	assert.Equal(t, uint64(99), byID["k2"].Timestamp(), "newer arrival during exchange must win over reinserted entry")
}

func TestQueueThresholdNotYetReached(t *testing.T) {
	q := New(1000)
	for i := 0; i < 50; i++ {
		q.Enqueue(ops.NewUpsertTab(string(rune('a'+i)), 1, "u", "t", true, 0, uint64(i)))
	}
	assert.Equal(t, 50, q.Length())
}
