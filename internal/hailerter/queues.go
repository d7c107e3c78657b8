package hailerter

import "container/heap"

// timeoutEntry is one FlowID's outstanding missing-deadline or reminder
// (§3.2's timeout queue).
type timeoutEntry struct {
	id       FlowID
	deadline int64 // unix seconds
	index    int
}

// timeoutHeap is a min-heap over timeoutEntry.deadline.
type timeoutHeap []*timeoutEntry

func (h timeoutHeap) Len() int            { return len(h) }
func (h timeoutHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h timeoutHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timeoutHeap) Push(x any) {
	e := x.(*timeoutEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timeoutHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// TimeoutQueue tracks, per FlowID, the next timestamp at which the flow is
// to be declared missing or reminded about, honoring "a FlowID appears at
// most once in the timeout queue" (§3.2) by keeping a side index.
//
// Grounded on the teacher's processmgr/scheduler.go min-heap, the same
// shape daemonshepherd's restart queue (internal/daemonshepherd/restart.go)
// uses, specialized here to a single deadline key instead of a three-way
// tie-break.
type TimeoutQueue struct {
	h  timeoutHeap
	by map[FlowID]*timeoutEntry
}

// NewTimeoutQueue returns an empty queue.
func NewTimeoutQueue() *TimeoutQueue {
	return &TimeoutQueue{by: make(map[FlowID]*timeoutEntry)}
}

// Schedule arms (or re-arms) id's deadline, replacing any existing entry.
func (q *TimeoutQueue) Schedule(id FlowID, deadline int64) {
	if e, ok := q.by[id]; ok {
		e.deadline = deadline
		heap.Fix(&q.h, e.index)
		return
	}
	e := &timeoutEntry{id: id, deadline: deadline}
	q.by[id] = e
	heap.Push(&q.h, e)
}

// Cancel removes id's entry, if any, reporting whether one was present.
func (q *TimeoutQueue) Cancel(id FlowID) bool {
	e, ok := q.by[id]
	if !ok {
		return false
	}
	heap.Remove(&q.h, e.index)
	delete(q.by, id)
	return true
}

// DueBy pops every entry whose deadline is at or before now, removing
// them from the queue (callers that want to re-arm a reminder call
// Schedule again with the new deadline).
func (q *TimeoutQueue) DueBy(now int64) []FlowID {
	var due []FlowID
	for q.h.Len() > 0 && q.h[0].deadline <= now {
		e := heap.Pop(&q.h).(*timeoutEntry)
		delete(q.by, e.id)
		due = append(due, e.id)
	}
	return due
}

// muteEntry is one FlowID's mute expiry (§3.2's mute queue).
type muteEntry struct {
	id     FlowID
	expiry int64
	index  int
}

type muteHeap []*muteEntry

func (h muteHeap) Len() int           { return len(h) }
func (h muteHeap) Less(i, j int) bool { return h[i].expiry < h[j].expiry }
func (h muteHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *muteHeap) Push(x any) {
	e := x.(*muteEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *muteHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// MuteQueue tracks mute expirations. A FlowID may be muted before it has
// ever been seen by the tracker (§3.2).
type MuteQueue struct {
	h  muteHeap
	by map[FlowID]*muteEntry
}

// NewMuteQueue returns an empty mute queue.
func NewMuteQueue() *MuteQueue {
	return &MuteQueue{by: make(map[FlowID]*muteEntry)}
}

// Mute arms (or re-arms) id's mute expiry.
func (q *MuteQueue) Mute(id FlowID, expiry int64) {
	if e, ok := q.by[id]; ok {
		e.expiry = expiry
		heap.Fix(&q.h, e.index)
		return
	}
	e := &muteEntry{id: id, expiry: expiry}
	q.by[id] = e
	heap.Push(&q.h, e)
}

// Unmute removes id's mute entry, if any.
func (q *MuteQueue) Unmute(id FlowID) bool {
	e, ok := q.by[id]
	if !ok {
		return false
	}
	heap.Remove(&q.h, e.index)
	delete(q.by, id)
	return true
}

// IsMuted reports whether id is currently muted (expiry in the future).
func (q *MuteQueue) IsMuted(id FlowID, now int64) bool {
	e, ok := q.by[id]
	return ok && e.expiry > now
}

// EvictExpired removes every mute entry whose expiry is at or before now,
// returning the evicted FlowIDs.
func (q *MuteQueue) EvictExpired(now int64) []FlowID {
	var evicted []FlowID
	for q.h.Len() > 0 && q.h[0].expiry <= now {
		e := heap.Pop(&q.h).(*muteEntry)
		delete(q.by, e.id)
		evicted = append(evicted, e.id)
	}
	return evicted
}

// List returns every currently muted FlowID with its expiry, for the
// `list_muted` control command (§4.7).
func (q *MuteQueue) List() map[FlowID]int64 {
	out := make(map[FlowID]int64, len(q.by))
	for id, e := range q.by {
		out[id] = e.expiry
	}
	return out
}
