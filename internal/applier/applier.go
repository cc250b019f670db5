// Package applier implements the Remote Applier: ordered, idempotent,
// failure-isolated replay of server-originated CRDT operations onto the
// local browser surface and tracked-window set.
package applier

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/teranos/tabsync/errors"
	"github.com/teranos/tabsync/internal/browser"
	"github.com/teranos/tabsync/internal/ops"
	"github.com/teranos/tabsync/internal/tracker"
)

// parseWindowID converts a window-scoped operation's string id into the
// int the Tracker keys on.
func parseWindowID(id string) (int, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid window id %q", id)
	}
	return n, nil
}

// Applier replays remote operations onto a Browser and Tracker.
type Applier struct {
	browser browser.Browser
	tracker *tracker.Tracker
	log     *zap.SugaredLogger
}

// New constructs an Applier. log may be nil.
func New(b browser.Browser, t *tracker.Tracker, log *zap.SugaredLogger) *Applier {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Applier{browser: b, tracker: t, log: log}
}

// ApplyAll replays every operation in order. Each operation is wrapped
// in an isolated failure boundary: an error from one never prevents the
// rest of the batch from being applied. Errors are logged with the
// operation's type and id, not returned — per §4.7/§7, local_apply_failed
// is logged and non-fatal.
func (a *Applier) ApplyAll(operations []ops.Msg) {
	for _, op := range operations {
		a.apply(op)
	}
}

func (a *Applier) apply(op ops.Msg) {
	var err error
	switch op.Type {
	case ops.TypeUpsertTab:
		err = a.applyUpsertTab(op)
	case ops.TypeCloseTab:
		err = a.browser.CloseTab(op.ID)
	case ops.TypeSetActive:
		err = a.applySetActive(op)
	case ops.TypeMoveTab:
		err = a.browser.MoveTab(op.ID, op.WindowID, int(op.Index))
	case ops.TypeChangeURL:
		err = a.browser.ChangeURL(op.ID, op.URL, op.Title)
	case ops.TypeTrackWindow:
		err = a.applyTrackWindow(op)
	case ops.TypeUntrackWindow:
		err = a.applyUntrackWindow(op)
	case ops.TypeSetWindowFocus:
		// advisory; no Browser method exists for it (see the
		// set_window_focus design decision), so it is logged and skipped.
		a.log.Debugw("remote applier: set_window_focus is advisory, skipping", "id", op.ID)
	default:
		a.log.Warnw("remote applier: unknown operation type", "type", op.Type, "id", op.ID)
		return
	}

	if err != nil {
		a.log.Warnw("remote applier: operation failed", "type", op.Type, "id", op.ID, "error", err)
	}
}

// applyUpsertTab implements §4.7's upsert_tab semantics: update if
// present (including a move if window_id/index changed), create if
// absent.
func (a *Applier) applyUpsertTab(op ops.Msg) error {
	active := op.Active != nil && *op.Active

	existing, found := a.browser.GetTab(op.WindowID, op.ID)
	if !found {
		return a.browser.UpsertTab(op.WindowID, browser.Tab{
			ID:     op.ID,
			URL:    op.URL,
			Title:  op.Title,
			Active: active,
			Index:  int(op.Index),
		})
	}

	if err := a.browser.ChangeURL(op.ID, op.URL, op.Title); err != nil {
		return err
	}
	if err := a.browser.SetActive(op.ID, active); err != nil {
		return err
	}
	if existing.WindowID != op.WindowID || existing.Index != int(op.Index) {
		return a.browser.MoveTab(op.ID, op.WindowID, int(op.Index))
	}
	return nil
}

func (a *Applier) applySetActive(op ops.Msg) error {
	active := op.Active != nil && *op.Active
	return a.browser.SetActive(op.ID, active)
}

func (a *Applier) applyTrackWindow(op ops.Msg) error {
	tracked := op.Tracked != nil && *op.Tracked
	windowID, err := parseWindowID(op.ID)
	if err != nil {
		return err
	}
	if tracked {
		a.tracker.Track(windowID)
	} else {
		a.tracker.Untrack(windowID)
	}
	return nil
}

func (a *Applier) applyUntrackWindow(op ops.Msg) error {
	windowID, err := parseWindowID(op.ID)
	if err != nil {
		return err
	}
	a.tracker.Untrack(windowID)
	return nil
}
