// Package hostio bridges the core to the external browser extension
// shell that spec §1 treats as an out-of-scope black box: a
// newline-delimited JSON event feed on stdin (the "event-source
// adapter") and newline-delimited JSON tab mutations on stdout (the
// browser tab/window surface, which the real extension applies). Mirrors
// the teacher's ix.JSONEmitter pattern of structured JSON events over
// a plain io.Writer, and browser.Fake's in-memory mirror so GetTab
// answers truthfully for the applier's update-vs-create branch.
package hostio

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/tabsync/internal/browser"
)

// wireEvent is the newline-delimited JSON shape read from stdin. Its
// field set mirrors browser.Event; the extension shell is expected to
// emit one JSON object per line.
type wireEvent struct {
	Kind          browser.EventKind `json:"kind"`
	Tab           browser.Tab       `json:"tab,omitempty"`
	TabID         string            `json:"tab_id,omitempty"`
	WindowID      int               `json:"window_id,omitempty"`
	Index         int                `json:"index,omitempty"`
	Change        *browser.Change   `json:"change,omitempty"`
	WindowClosing bool              `json:"window_closing,omitempty"`
}

// StdinEventSource decodes newline-delimited JSON browser events from
// an io.Reader (typically os.Stdin) onto a browser.EventSource channel.
type StdinEventSource struct {
	ch  chan browser.Event
	log *zap.SugaredLogger
}

// NewStdinEventSource starts a background goroutine scanning r for
// newline-delimited JSON events. The returned channel is closed when r
// is exhausted or a read error occurs.
func NewStdinEventSource(r io.Reader, log *zap.SugaredLogger) *StdinEventSource {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &StdinEventSource{ch: make(chan browser.Event, 64), log: log}
	go s.scan(r)
	return s
}

func (s *StdinEventSource) scan(r io.Reader) {
	defer close(s.ch)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var we wireEvent
		if err := json.Unmarshal(line, &we); err != nil {
			s.log.Warnw("hostio: malformed event line, skipping", "error", err)
			continue
		}
		s.ch <- browser.Event{
			Kind:          we.Kind,
			Tab:           we.Tab,
			TabID:         we.TabID,
			WindowID:      we.WindowID,
			Index:         we.Index,
			Change:        we.Change,
			WindowClosing: we.WindowClosing,
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.Warnw("hostio: event stream read error", "error", err)
	}
}

// Events implements browser.EventSource.
func (s *StdinEventSource) Events() <-chan browser.Event { return s.ch }

// action is the newline-delimited JSON shape written to stdout for
// every Browser mutation, so the extension shell can replay it onto
// the real browser tab/window surface.
type action struct {
	Op       string      `json:"op"`
	WindowID int         `json:"window_id,omitempty"`
	TabID    string      `json:"tab_id,omitempty"`
	Tab      *browser.Tab `json:"tab,omitempty"`
	Active   *bool       `json:"active,omitempty"`
	Index    *int        `json:"index,omitempty"`
	URL      *string     `json:"url,omitempty"`
	Title    *string     `json:"title,omitempty"`
}

// StdoutBrowser implements browser.Browser by maintaining an in-memory
// mirror (so GetTab answers truthfully, the way browser.Fake does) and
// emitting one JSON action line per mutation to an io.Writer, typically
// os.Stdout, for the extension shell to apply to the real browser.
type StdoutBrowser struct {
	mu   sync.Mutex
	tabs map[string]browser.Tab
	w    io.Writer
	enc  *json.Encoder
	log  *zap.SugaredLogger
}

// NewStdoutBrowser returns a StdoutBrowser writing actions to w.
func NewStdoutBrowser(w io.Writer, log *zap.SugaredLogger) *StdoutBrowser {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &StdoutBrowser{
		tabs: make(map[string]browser.Tab),
		w:    w,
		enc:  json.NewEncoder(w),
		log:  log,
	}
}

func (b *StdoutBrowser) emit(a action) {
	if err := b.enc.Encode(a); err != nil {
		b.log.Warnw("hostio: failed to write action", "op", a.Op, "error", err)
	}
}

func (b *StdoutBrowser) GetTab(windowID int, tabID string) (browser.Tab, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tab, ok := b.tabs[tabID]
	if !ok || tab.WindowID != windowID {
		return browser.Tab{}, false
	}
	return tab, true
}

func (b *StdoutBrowser) UpsertTab(windowID int, tab browser.Tab) error {
	b.mu.Lock()
	tab.WindowID = windowID
	b.tabs[tab.ID] = tab
	b.mu.Unlock()
	b.emit(action{Op: "upsert_tab", WindowID: windowID, TabID: tab.ID, Tab: &tab})
	return nil
}

func (b *StdoutBrowser) CloseTab(tabID string) error {
	b.mu.Lock()
	delete(b.tabs, tabID)
	b.mu.Unlock()
	b.emit(action{Op: "close_tab", TabID: tabID})
	return nil
}

func (b *StdoutBrowser) SetActive(tabID string, active bool) error {
	b.mu.Lock()
	tab, ok := b.tabs[tabID]
	if ok {
		tab.Active = active
		b.tabs[tabID] = tab
	}
	b.mu.Unlock()
	b.emit(action{Op: "set_active", TabID: tabID, Active: &active})
	return nil
}

func (b *StdoutBrowser) MoveTab(tabID string, windowID int, index int) error {
	b.mu.Lock()
	tab, ok := b.tabs[tabID]
	if ok {
		tab.WindowID = windowID
		tab.Index = index
		b.tabs[tabID] = tab
	}
	b.mu.Unlock()
	b.emit(action{Op: "move_tab", TabID: tabID, WindowID: windowID, Index: &index})
	return nil
}

func (b *StdoutBrowser) ChangeURL(tabID string, url string, title string) error {
	b.mu.Lock()
	tab, ok := b.tabs[tabID]
	if ok {
		tab.URL = url
		if title != "" {
			tab.Title = title
		}
		b.tabs[tabID] = tab
	}
	b.mu.Unlock()
	b.emit(action{Op: "change_url", TabID: tabID, URL: &url, Title: &title})
	return nil
}
