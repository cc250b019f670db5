package browser

import "sync"

// Fake is an in-memory Browser implementation, used by applier and
// sync engine tests in place of a real extension runtime — mirroring
// the teacher's pattern of a hand-rolled fake standing in for a
// transport-level collaborator interface.
type Fake struct {
	mu   sync.Mutex
	tabs map[string]Tab
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{tabs: make(map[string]Tab)}
}

func (f *Fake) GetTab(windowID int, tabID string) (Tab, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tab, ok := f.tabs[tabID]
	if !ok || tab.WindowID != windowID {
		return Tab{}, false
	}
	return tab, true
}

func (f *Fake) UpsertTab(windowID int, tab Tab) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tab.WindowID = windowID
	f.tabs[tab.ID] = tab
	return nil
}

func (f *Fake) CloseTab(tabID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tabs, tabID)
	return nil
}

func (f *Fake) SetActive(tabID string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tab, ok := f.tabs[tabID]
	if !ok {
		return nil
	}
	tab.Active = active
	f.tabs[tabID] = tab
	return nil
}

func (f *Fake) MoveTab(tabID string, windowID int, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tab, ok := f.tabs[tabID]
	if !ok {
		return nil
	}
	tab.WindowID = windowID
	tab.Index = index
	f.tabs[tabID] = tab
	return nil
}

func (f *Fake) ChangeURL(tabID string, url string, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tab, ok := f.tabs[tabID]
	if !ok {
		return nil
	}
	tab.URL = url
	if title != "" {
		tab.Title = title
	}
	f.tabs[tabID] = tab
	return nil
}

// Snapshot returns a copy of every tab currently held, for test
// assertions.
func (f *Fake) Snapshot() map[string]Tab {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]Tab, len(f.tabs))
	for k, v := range f.tabs {
		out[k] = v
	}
	return out
}

// FakeEventSource is a channel-backed EventSource test double: tests push
// synthetic Event values onto Push and the agent's event loop consumes
// them exactly as it would the real extension shell's feed.
type FakeEventSource struct {
	ch chan Event
}

// NewFakeEventSource returns a FakeEventSource with a reasonably sized
// internal buffer so tests can enqueue a few events without blocking.
func NewFakeEventSource() *FakeEventSource {
	return &FakeEventSource{ch: make(chan Event, 16)}
}

// Events implements EventSource.
func (f *FakeEventSource) Events() <-chan Event { return f.ch }

// Push delivers ev to the event feed.
func (f *FakeEventSource) Push(ev Event) { f.ch <- ev }

// Close shuts down the feed, mirroring the real event source's
// close-on-shutdown contract.
func (f *FakeEventSource) Close() { close(f.ch) }
