package applier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/tabsync/internal/browser"
	"github.com/teranos/tabsync/internal/ops"
	"github.com/teranos/tabsync/internal/tracker"
)

func TestUpsertTabMovesExistingTab(t *testing.T) {
	b := browser.NewFake()
	require.NoError(t, b.UpsertTab(100, browser.Tab{ID: "10", URL: "old", Index: 0}))

	a := New(b, tracker.New(), nil)
	a.ApplyAll([]ops.Msg{
		ops.NewUpsertTab("10", 100, "x", "", true, 2, 1),
	})

	tab, ok := b.GetTab(100, "10")
	require.True(t, ok)
	assert.Equal(t, "x", tab.URL)
	assert.True(t, tab.Active)
	assert.Equal(t, 2, tab.Index)
}

func TestUpsertTabCreatesWhenAbsent(t *testing.T) {
	b := browser.NewFake()
	a := New(b, tracker.New(), nil)
	a.ApplyAll([]ops.Msg{
		ops.NewUpsertTab("10", 100, "x", "title", false, 0, 1),
	})

	tab, ok := b.GetTab(100, "10")
	require.True(t, ok)
	assert.Equal(t, "x", tab.URL)
}

func TestCloseTabAbsentIsNotFatal(t *testing.T) {
	b := browser.NewFake()
	a := New(b, tracker.New(), nil)
	// must not panic or otherwise disrupt the batch
	a.ApplyAll([]ops.Msg{ops.NewCloseTab("missing", 1)})
}

func TestFailureInOneOperationDoesNotBlockTheRest(t *testing.T) {
	b := browser.NewFake()
	tr := tracker.New()
	a := New(b, tr, nil)

	a.ApplyAll([]ops.Msg{
		ops.NewTrackWindow("not-an-int", true, 1), // fails to parse, isolated
		ops.NewUpsertTab("1", 1, "u", "t", true, 0, 2),
	})

	_, ok := b.GetTab(1, "1")
	assert.True(t, ok, "a failure in the track_window op must not prevent the upsert_tab from applying")
}

func TestIdempotentApply(t *testing.T) {
	b := browser.NewFake()
	tr := tracker.New()
	a := New(b, tr, nil)

	batch := []ops.Msg{
		ops.NewUpsertTab("1", 1, "u", "t", true, 0, 2),
		ops.NewTrackWindow("1", true, 1),
	}

	a.ApplyAll(batch)
	first := b.Snapshot()
	firstTracked := tr.TrackedWindows()

	a.ApplyAll(batch)
	second := b.Snapshot()
	secondTracked := tr.TrackedWindows()

	assert.Equal(t, first, second)
	assert.Equal(t, firstTracked, secondTracked)
}

func TestSetWindowFocusIsAdvisoryNoOp(t *testing.T) {
	b := browser.NewFake()
	a := New(b, tracker.New(), nil)
	// must not panic; there is no required Browser method for focus.
	a.ApplyAll([]ops.Msg{ops.NewSetWindowFocus("1", true, 1)})
}
