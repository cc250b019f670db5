// Package ops defines the CRDT operation model: the closed set of
// operation variants, their wire encoding, priority classification, and
// dedup-key derivation. Mirrors the teacher's sync.Msg envelope (a single
// struct with a Type discriminator and variant-specific optional fields)
// rather than an interface hierarchy, so JSON (de)serialization and the
// priority/dedup switches stay exhaustive and obvious at a glance.
package ops

import (
	"encoding/json"
	"strconv"

	"github.com/teranos/tabsync/errors"
	"github.com/teranos/tabsync/internal/util"
)

// Type identifies which of the eight CRDT operation variants a Msg carries.
type Type string

// The closed set of operation variants. Adding a ninth is a coordinated
// protocol change, not an open extension point — see spec §9.
const (
	TypeUpsertTab      Type = "upsert_tab"
	TypeCloseTab       Type = "close_tab"
	TypeSetActive      Type = "set_active"
	TypeMoveTab        Type = "move_tab"
	TypeChangeURL      Type = "change_url"
	TypeTrackWindow    Type = "track_window"
	TypeUntrackWindow  Type = "untrack_window"
	TypeSetWindowFocus Type = "set_window_focus"
)

// Priority is an ordinal urgency level; lower numeric value is more urgent.
type Priority int

const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 1
	PriorityNormal   Priority = 2
	PriorityLow      Priority = 3
)

// String renders a priority for logging.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// PriorityOf returns the fixed priority mapping for an operation variant.
// Panics on an unknown type — the set of variants is closed by spec §9,
// so an unrecognized Type means a caller constructed a Msg incorrectly.
func PriorityOf(t Type) Priority {
	switch t {
	case TypeCloseTab, TypeTrackWindow, TypeUntrackWindow:
		return PriorityCritical
	case TypeUpsertTab, TypeMoveTab:
		return PriorityHigh
	case TypeSetActive, TypeSetWindowFocus:
		return PriorityNormal
	case TypeChangeURL:
		return PriorityLow
	default:
		panic("ops: unknown operation type " + string(t))
	}
}

// DecimalU64 is a 64-bit unsigned integer that marshals as a decimal string
// and unmarshals from either a JSON string or a JSON number, per spec §6.2
// and §9 ("parse defensively").
type DecimalU64 uint64

func (u DecimalU64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(u), 10))
}

func (u *DecimalU64) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(err, "failed to unmarshal u64 string")
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "failed to parse u64 decimal string %q", s)
		}
		*u = DecimalU64(v)
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Wrap(err, "failed to unmarshal u64 number")
	}
	*u = DecimalU64(n)
	return nil
}

func (u DecimalU64) Uint64() uint64 { return uint64(u) }

// Msg is the tagged union of all CRDT operation variants. Every variant
// carries ID and a causal timestamp (UpdatedAt or ClosedAt); the
// remaining fields are populated only for the variants that use them.
type Msg struct {
	Type Type `json:"type"`

	// ID is the tab id for tab-scoped variants, or the window id (as a
	// string) for window-scoped variants.
	ID string `json:"id"`

	// upsert_tab / move_tab. index is a 64-bit decimal-string field per
	// spec §6.2; window_id and index both lack omitempty because index 0
	// (and window id 0) are valid values that must still round-trip.
	WindowID int        `json:"window_id"`
	Index    DecimalU64 `json:"index"`

	// upsert_tab / change_url
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`

	// upsert_tab / set_active
	Active *bool `json:"active,omitempty"`

	// track_window
	Tracked *bool `json:"tracked,omitempty"`

	// set_window_focus
	Focused *bool `json:"focused,omitempty"`

	// upsert_tab / set_active / move_tab / change_url / track_window /
	// untrack_window / set_window_focus
	UpdatedAt *DecimalU64 `json:"updated_at,omitempty"`

	// close_tab
	ClosedAt *DecimalU64 `json:"closed_at,omitempty"`
}

// Timestamp returns the operation's causal timestamp regardless of
// whether it was carried as UpdatedAt or ClosedAt.
func (m Msg) Timestamp() uint64 {
	if m.UpdatedAt != nil {
		return m.UpdatedAt.Uint64()
	}
	if m.ClosedAt != nil {
		return m.ClosedAt.Uint64()
	}
	return 0
}

// Priority classifies this message using the fixed per-variant mapping.
func (m Msg) Priority() Priority {
	return PriorityOf(m.Type)
}

// DedupKey derives the string key used to collapse superseded intents
// within a batch: "<variant>:<id>" for tab-scoped variants, and
// "window:<id>" for window-scoped variants, per spec §3.
func (m Msg) DedupKey() string {
	switch m.Type {
	case TypeTrackWindow, TypeUntrackWindow, TypeSetWindowFocus:
		return "window:" + m.ID
	default:
		return string(m.Type) + ":" + m.ID
	}
}

func u64(v uint64) *DecimalU64 {
	return util.Ptr(DecimalU64(v))
}

// NewUpsertTab constructs an upsert_tab operation.
func NewUpsertTab(tabID string, windowID int, url, title string, active bool, index int, updatedAt uint64) Msg {
	return Msg{
		Type:      TypeUpsertTab,
		ID:        tabID,
		WindowID:  windowID,
		URL:       url,
		Title:     title,
		Active:    util.Ptr(active),
		Index:     DecimalU64(index),
		UpdatedAt: u64(updatedAt),
	}
}

// NewCloseTab constructs a close_tab operation.
func NewCloseTab(tabID string, closedAt uint64) Msg {
	return Msg{Type: TypeCloseTab, ID: tabID, ClosedAt: u64(closedAt)}
}

// NewSetActive constructs a set_active operation.
func NewSetActive(tabID string, active bool, updatedAt uint64) Msg {
	return Msg{Type: TypeSetActive, ID: tabID, Active: util.Ptr(active), UpdatedAt: u64(updatedAt)}
}

// NewMoveTab constructs a move_tab operation.
func NewMoveTab(tabID string, windowID, index int, updatedAt uint64) Msg {
	return Msg{Type: TypeMoveTab, ID: tabID, WindowID: windowID, Index: DecimalU64(index), UpdatedAt: u64(updatedAt)}
}

// NewChangeURL constructs a change_url operation. Title is optional.
func NewChangeURL(tabID, url, title string, updatedAt uint64) Msg {
	return Msg{Type: TypeChangeURL, ID: tabID, URL: url, Title: title, UpdatedAt: u64(updatedAt)}
}

// NewTrackWindow constructs a track_window operation.
func NewTrackWindow(windowID string, tracked bool, updatedAt uint64) Msg {
	return Msg{Type: TypeTrackWindow, ID: windowID, Tracked: util.Ptr(tracked), UpdatedAt: u64(updatedAt)}
}

// NewUntrackWindow constructs an untrack_window operation.
func NewUntrackWindow(windowID string, updatedAt uint64) Msg {
	return Msg{Type: TypeUntrackWindow, ID: windowID, UpdatedAt: u64(updatedAt)}
}

// NewSetWindowFocus constructs a set_window_focus operation. Per spec §9
// this is advisory and may be a no-op on platforms that cannot observe
// focus changes; it is still accepted, logged, and replayed like any
// other variant.
func NewSetWindowFocus(windowID string, focused bool, updatedAt uint64) Msg {
	return Msg{Type: TypeSetWindowFocus, ID: windowID, Focused: util.Ptr(focused), UpdatedAt: u64(updatedAt)}
}
