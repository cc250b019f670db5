// Package queue implements the bounded, priority-classified, dedup-keyed
// holding area for outbound CRDT operations described by the adaptive
// sync engine's component design. All mutation here is pure in-memory
// bookkeeping and never suspends, per the single-executor model.
package queue

import (
	"sort"
	"sync"

	"github.com/teranos/tabsync/internal/ops"
)

// Entry is a queued operation together with the metadata computed at
// enqueue time. It is constructed once and never mutated afterwards.
type Entry struct {
	Operation  ops.Msg
	Priority   ops.Priority
	EnqueueSeq uint64
	DedupKey   string
}

// Queue holds outbound operations with priority and dedup semantics and
// supports atomic drain. The zero value is not usable; use New.
type Queue struct {
	mu           sync.Mutex
	entries      map[string]Entry // dedup_key -> entry
	order        []string         // insertion order of dedup keys, for oldest-eviction
	maxQueueSize int
	seq          uint64
}

// New returns an empty Queue bounded at maxQueueSize entries.
func New(maxQueueSize int) *Queue {
	return &Queue{
		entries:      make(map[string]Entry),
		maxQueueSize: maxQueueSize,
	}
}

// nextSeq hands out a strictly increasing sequence number used as the
// enqueue_time tiebreaker / ordering field, since wall-clock enqueue
// times can collide at millisecond resolution under load.
func (q *Queue) nextSeq() uint64 {
	q.seq++
	return q.seq
}

// Enqueue computes the operation's priority and dedup key, then either
// replaces an existing same-key entry (if the new entry is newer) or
// inserts a new one. If the queue is over capacity after insertion, the
// oldest non-dedup-merged entry is evicted. Returns the computed
// priority and dedup key.
func (q *Queue) Enqueue(op ops.Msg) (ops.Priority, string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	priority := op.Priority()
	key := op.DedupKey()
	seq := q.nextSeq()

	existing, exists := q.entries[key]
	if exists {
		if seq > existing.EnqueueSeq {
			q.entries[key] = Entry{Operation: op, Priority: priority, EnqueueSeq: seq, DedupKey: key}
		}
		return priority, key
	}

	q.entries[key] = Entry{Operation: op, Priority: priority, EnqueueSeq: seq, DedupKey: key}
	q.order = append(q.order, key)

	if len(q.entries) > q.maxQueueSize {
		q.evictOldestLocked()
	}

	return priority, key
}

// evictOldestLocked drops the oldest entry still present (by insertion
// order), skipping keys already removed by dedup collapse. Caller must
// hold mu.
func (q *Queue) evictOldestLocked() {
	for len(q.order) > 0 {
		oldest := q.order[0]
		q.order = q.order[1:]
		if _, ok := q.entries[oldest]; ok {
			delete(q.entries, oldest)
			return
		}
	}
}

// Drain returns every current entry, ordered first by ascending priority
// (CRITICAL first) then by ascending enqueue sequence, and empties the
// queue.
func (q *Queue) Drain() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e)
	}
	sortEntries(out)

	q.entries = make(map[string]Entry)
	q.order = nil

	return out
}

// Length returns the current entry count after dedup collapse.
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Reinsert bulk-reinserts a previously drained list, preserving dedup
// semantics: an entry already present (from a newer enqueue that arrived
// during the exchange) wins over a reinserted one unless the reinserted
// entry is itself newer. Used on sync failure to return drained
// operations to the queue without losing arrivals that happened while
// the exchange was in flight.
func (q *Queue) Reinsert(drained []Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range drained {
		existing, exists := q.entries[e.DedupKey]
		if !exists {
			q.entries[e.DedupKey] = e
			q.order = append(q.order, e.DedupKey)
			continue
		}
		if e.EnqueueSeq > existing.EnqueueSeq {
			q.entries[e.DedupKey] = e
		}
	}

	for len(q.entries) > q.maxQueueSize {
		q.evictOldestLocked()
	}
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority < entries[j].Priority
		}
		return entries[i].EnqueueSeq < entries[j].EnqueueSeq
	})
}
