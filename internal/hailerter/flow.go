package hailerter

import "math/bits"

// discardUpdate is the sentinel old-status value Flow.Update returns for
// an out-of-order message (§4.5).
const discardUpdate = "\x00discard"

// Flow is the per-stream record of §3.2/§4.5: current status, timing, the
// last published info object, and a flap detector.
//
// The flap detector is a fixed-width circular bit buffer packed into a
// single uint64 — the same trick the teacher's processmgr/log_buffer.go
// uses for its fixed-size ring (one mutex-free struct, O(1) writes), here
// doubling as its own popcount accumulator via bits.OnesCount64 rather
// than a maintained counter field (Design Notes §9). Flap windows are
// capped at 64 so the whole window always fits in the one word.
type Flow struct {
	Aspect   string
	Location Location

	Status     string // "", ok, error, or missing; never "flapping"
	StatusTime int64
	StatusInfo []byte // last published `info` object, nil if none yet
	Notified   int64  // unix seconds of last notification, 0 if never

	// LastState/LastSeverity carry the most recent message's raw `state`/
	// `severity` fields through to the ok/degraded info objects (§6), which
	// echo them verbatim rather than anything this package derives.
	LastState    string
	LastSeverity string

	flapWindow    int
	flapThreshold float64
	flapBits      uint64
	flapPos       int
}

// NewFlow creates a fresh, never-updated flow record.
func NewFlow(aspect string, loc Location, flapWindow int, flapThreshold float64) *Flow {
	if flapWindow > 64 {
		flapWindow = 64
	}
	return &Flow{
		Aspect:        aspect,
		Location:      loc,
		flapWindow:    flapWindow,
		flapThreshold: flapThreshold,
	}
}

// FlapChanges reports the number of status changes currently held in the
// live window — the popcount invariant of §8.
func (f *Flow) FlapChanges() int { return bits.OnesCount64(f.flapBits) }

// IsFlapping reports whether the fraction of changes within the window
// exceeds the configured threshold (§4.5).
func (f *Flow) IsFlapping() bool {
	if f.flapWindow == 0 {
		return false
	}
	return float64(f.FlapChanges())/float64(f.flapWindow) > f.flapThreshold
}

// ResetFlapping zeroes the flap detector without altering Status or
// StatusTime (§4.7 `reset_flapping`: "does not re-notify").
func (f *Flow) ResetFlapping() {
	f.flapBits = 0
	f.flapPos = 0
}

// pushFlapBit records one status-changed/unchanged bit into the ring.
// flapWindow<=0 means flap detection is disabled (§4.5: --flapping-window
// defaults to 0), so there is no ring to advance into — push nothing rather
// than divide by zero.
func (f *Flow) pushFlapBit(changed bool) {
	if f.flapWindow <= 0 {
		return
	}
	mask := uint64(1) << uint(f.flapPos)
	if changed {
		f.flapBits |= mask
	} else {
		f.flapBits &^= mask
	}
	f.flapPos = (f.flapPos + 1) % f.flapWindow
}

// Update applies one incoming (status, timestamp) pair per §4.5 and
// returns the status that was in force immediately before this update
// (honoring flapping), or discardUpdate/false if the message was stale.
func (f *Flow) Update(status string, timestamp int64) (oldStatus string, discarded bool) {
	if f.StatusTime != 0 && timestamp < f.StatusTime {
		return discardUpdate, true
	}

	if status == StatusMissing && f.Status == StatusMissing {
		f.ResetFlapping()
	}

	old := f.Status
	if f.IsFlapping() {
		old = StatusFlapping
	}

	// the first-ever update of a flow is not a change
	f.pushFlapBit(f.Status != "" && status != f.Status)
	f.Status = status
	f.StatusTime = timestamp

	return old, false
}

// NotificationSent stamps Notified. reset=true zeroes it instead, forcing
// the next non-ok message to notify regardless of remind-interval (§4.5).
func (f *Flow) NotificationSent(ts int64, reset bool) {
	if reset {
		f.Notified = 0
		return
	}
	f.Notified = ts
}
