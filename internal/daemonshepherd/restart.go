package daemonshepherd

import (
	"container/heap"
	"time"
)

// State is one node of the per-daemon restart state machine (§4.2).
type State int

const (
	StateStopped State = iota
	StateRunning
	StateDying
	StateWaiting
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateDying:
		return "dying"
	case StateWaiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// Runtime is the live state machine for one declared daemon: its current
// state, backoff position, and (while StateWaiting) heap membership. The
// controller actor is the only goroutine that ever touches these fields
// (§5 — no mutex guards the restart queue, by construction).
type Runtime struct {
	Name         string
	State        State
	BackoffIndex int       // index to use when this daemon is next scheduled
	ActiveIndex  int       // index that produced the delay for the current/last run
	StartedAt    time.Time // when the current/last run began
	NextRestartAt time.Time // valid only while State == StateWaiting

	heapIndex     int // -1 when not present in the queue
	startPriority int
}

// RestartQueue is the priority queue over (next_restart_at, start_priority,
// name) described in §4.2: it holds exactly the daemons in StateWaiting (or
// freshly eligible to start), releasing them to the controller in the
// order §4.3's start-priority rule demands.
//
// Grounded on the teacher's processmgr/scheduler.go min-heap, generalized
// from a single fixed key to the three-way tie-break this spec requires.
type RestartQueue struct {
	items []*Runtime
}

// NewRestartQueue returns an empty queue.
func NewRestartQueue() *RestartQueue {
	return &RestartQueue{}
}

func (q *RestartQueue) Len() int { return len(q.items) }

func (q *RestartQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if !a.NextRestartAt.Equal(b.NextRestartAt) {
		return a.NextRestartAt.Before(b.NextRestartAt)
	}
	if a.startPriority != b.startPriority {
		return a.startPriority < b.startPriority
	}
	return a.Name < b.Name
}

func (q *RestartQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].heapIndex = i
	q.items[j].heapIndex = j
}

func (q *RestartQueue) Push(x any) {
	r := x.(*Runtime)
	r.heapIndex = len(q.items)
	q.items = append(q.items, r)
}

func (q *RestartQueue) Pop() any {
	old := q.items
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.heapIndex = -1
	q.items = old[:n-1]
	return r
}

// Schedule arms r to become eligible at `at`, with startPriority used to
// break simultaneous-eligibility ties (§4.3). If r is already queued its
// position is updated in place.
func (q *RestartQueue) Schedule(r *Runtime, at time.Time, startPriority int) {
	r.NextRestartAt = at
	r.startPriority = startPriority
	r.State = StateWaiting
	if r.heapIndex >= 0 {
		heap.Fix(q, r.heapIndex)
		return
	}
	heap.Push(q, r)
}

// Cancel removes r from the queue if present, reporting whether it was
// queued. Used by `stop`/`cancel-restart` against a daemon in StateWaiting.
func (q *RestartQueue) Cancel(r *Runtime) bool {
	if r.heapIndex < 0 {
		return false
	}
	heap.Remove(q, r.heapIndex)
	return true
}

// Peek returns the queue head without removing it.
func (q *RestartQueue) Peek() (*Runtime, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// DueBy pops and returns, in release order, every entry whose
// NextRestartAt is at or before now.
func (q *RestartQueue) DueBy(now time.Time) []*Runtime {
	var due []*Runtime
	for len(q.items) > 0 && !q.items[0].NextRestartAt.After(now) {
		due = append(due, heap.Pop(q).(*Runtime))
	}
	return due
}

// NextWake reports the delay until the queue head becomes due, capped at
// the controller's default poll tick by the caller.
func (q *RestartQueue) NextWake(now time.Time) (time.Duration, bool) {
	head, ok := q.Peek()
	if !ok {
		return 0, false
	}
	d := head.NextRestartAt.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// NewRuntime creates a fresh, stopped state machine entry for a daemon.
func NewRuntime(name string) *Runtime {
	return &Runtime{Name: name, State: StateStopped, heapIndex: -1}
}

// OnDeath applies the running→dying half of §4.2's transition table. dwell
// is how long the process had been running; when it met or exceeded the
// delay the next restart would use (the entry at BackoffIndex, already
// advanced by ScheduleBackoff), the backoff resets to 0 immediately, per
// the "backoff reset" rule.
func (r *Runtime) OnDeath(spec DaemonSpec, dwell time.Duration) {
	nextDelay := time.Duration(spec.RestartDelay(r.BackoffIndex)) * time.Second
	if dwell >= nextDelay {
		r.BackoffIndex = 0
	}
	r.State = StateDying
}

// ScheduleBackoff applies the dying→waiting half of §4.2's transition
// table: compute the delay from the current BackoffIndex, remember that
// index as ActiveIndex, then advance BackoffIndex, capped at the last entry.
func (r *Runtime) ScheduleBackoff(spec DaemonSpec) time.Duration {
	delay := time.Duration(spec.RestartDelay(r.BackoffIndex)) * time.Second
	r.ActiveIndex = r.BackoffIndex
	if r.BackoffIndex < spec.MaxBackoffIndex() {
		r.BackoffIndex++
	}
	return delay
}

// ResetFull restores a daemon to a clean stopped state (cancel-restart,
// explicit stop while waiting): backoff position cleared, per §4.2.
func (r *Runtime) ResetFull() {
	r.BackoffIndex = 0
	r.ActiveIndex = 0
	r.State = StateStopped
}
