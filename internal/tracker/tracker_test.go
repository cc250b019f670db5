package tracker

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackUntrackIdempotent(t *testing.T) {
	tr := New()
	tr.Track(1)
	tr.Track(1)
	assert.Equal(t, 1, tr.TrackedCount())

	tr.Untrack(2) // unknown id, no-op
	assert.Equal(t, 1, tr.TrackedCount())

	tr.Untrack(1)
	assert.Equal(t, 0, tr.TrackedCount())
	assert.False(t, tr.IsTracked(1))
}

func TestTrackedWindowsSnapshotIsolated(t *testing.T) {
	tr := New()
	tr.Track(1)
	tr.Track(2)

	snap := tr.TrackedWindows()
	sort.Ints(snap)
	assert.Equal(t, []int{1, 2}, snap)

	tr.Track(3)
	sort.Ints(snap)
	assert.Equal(t, []int{1, 2}, snap, "prior snapshot must not observe later mutation")
}

func TestClearRemovesAll(t *testing.T) {
	tr := New()
	tr.Track(1)
	tr.Track(2)
	tr.Clear()
	assert.Equal(t, 0, tr.TrackedCount())
	assert.Empty(t, tr.TrackedWindows())
}

func TestIsTrackedO1Lookup(t *testing.T) {
	tr := New()
	assert.False(t, tr.IsTracked(42))
	tr.Track(42)
	assert.True(t, tr.IsTracked(42))
}
