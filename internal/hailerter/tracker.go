package hailerter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds the main-loop tuning knobs of §6.
type Config struct {
	SkipInitialError bool
	RemindInterval   time.Duration // 0 disables reminders
	WarningExpected  bool
	DefaultInterval  time.Duration // 0 means "no default"
	Missing          int           // interval multiplier; 0 disables missing-detection
	FlapWindow       int
	FlapThreshold    float64
}

// Mirror is the optional write-through sink implemented by redismirror.go.
// Kept as an interface so Tracker has nothing Redis-specific to import.
type Mirror interface {
	Write(id FlowID, flow *Flow, mutedUntil int64)
	Delete(id FlowID)
}

// Tracker owns the flow map, timeout queue, and mute queue (§3.2) and is
// the hailerter analogue of daemonshepherd's Controller: a single actor
// goroutine, fed through cmdCh by the stdin reader and the control socket;
// its 1-second ticker is read directly in Run's select (§5).
type Tracker struct {
	log    *zap.Logger
	cfg    Config
	out    io.Writer
	mirror Mirror
	now    func() time.Time

	cmdCh chan func()

	flows    map[FlowID]*Flow
	timeoutQ *TimeoutQueue
	muteQ    *MuteQueue

	// outputClosed is closed exactly once, the first time a write to out
	// fails with ErrOutputClosed (§7: a broken output pipe is an orderly
	// shutdown trigger). MainLoop.Run selects on it to stop the program.
	outputClosed     chan struct{}
	outputClosedOnce sync.Once
}

// New creates a Tracker. out receives notification JSON lines; mirror may
// be nil to disable the Redis write-through.
func New(log *zap.Logger, cfg Config, out io.Writer, mirror Mirror) *Tracker {
	return &Tracker{
		log:          log.Named("tracker"),
		cfg:          cfg,
		out:          out,
		mirror:       mirror,
		now:          time.Now,
		cmdCh:        make(chan func(), 64),
		flows:        make(map[FlowID]*Flow),
		timeoutQ:     NewTimeoutQueue(),
		muteQ:        NewMuteQueue(),
		outputClosed: make(chan struct{}),
	}
}

// OutputClosed is closed once writing a notification line fails because the
// reader on the other end of out has gone away (§7).
func (t *Tracker) OutputClosed() <-chan struct{} { return t.outputClosed }

func (t *Tracker) submit(fn func()) { t.cmdCh <- fn }

func (t *Tracker) call(fn func()) {
	done := make(chan struct{})
	t.submit(func() { fn(); close(done) })
	<-done
}

// Run drives the actor loop: a 1-second ticker triggers sweep, and
// whatever else is submitted (message processing, control commands) runs
// in between, until ctx is cancelled (§5: the ticker only ever forwards a
// wake-up, never touches tracker state directly).
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-t.cmdCh:
			fn()
		case <-ticker.C:
			t.sweep()
		}
	}
}

// ProcessMessage decodes and applies one input line's worth of state
// (§4.6). It is safe to call concurrently; the work itself always runs on
// the tracker's own goroutine.
func (t *Tracker) ProcessMessage(msg Message) {
	t.call(func() { t.processMessage(msg) })
}

func (t *Tracker) processMessage(msg Message) {
	status, ok := computeStatus(msg, t.cfg.WarningExpected)
	if !ok {
		return // no `state`: metrics-only, dropped (§4.6)
	}

	now := t.now()
	if msg.Time > now.Unix()+5*60 {
		return // future-dated beyond margin (§3.2)
	}

	id, err := NewFlowID(msg.Aspect, msg.Location)
	if err != nil {
		t.log.Warn("failed to canonicalize location", zap.Error(err))
		return
	}

	flow, existed := t.flows[id]
	if !existed {
		flow = NewFlow(msg.Aspect, msg.Location, t.cfg.FlapWindow, t.cfg.FlapThreshold)
		t.flows[id] = flow
	}

	oldStatus, discarded := flow.Update(status, msg.Time)
	if discarded {
		return
	}

	if interval := t.resolveInterval(msg); interval > 0 && t.cfg.Missing > 0 {
		t.timeoutQ.Schedule(id, msg.Time+interval*int64(t.cfg.Missing))
	}

	if msg.State != nil {
		flow.LastState = *msg.State
	}
	flow.LastSeverity = severityLabel(msg.Severity)

	t.afterUpdate(id, flow, oldStatus, now)
	t.mirrorWrite(id, flow)
}

func (t *Tracker) resolveInterval(msg Message) int64 {
	if msg.Interval != nil {
		return int64(*msg.Interval)
	}
	if t.cfg.DefaultInterval > 0 {
		return int64(t.cfg.DefaultInterval / time.Second)
	}
	return 0
}

// afterUpdate implements §4.6 steps 6-8: flapping takes precedence over
// recovery/degradation, recovery notifies only leaving a non-ok state, and
// degradation is subject to skip-initial-error and remind-interval
// suppression.
func (t *Tracker) afterUpdate(id FlowID, flow *Flow, oldStatus string, now time.Time) {
	switch {
	case flow.IsFlapping():
		t.notifyFlapping(id, flow, oldStatus, now)
	case flow.Status == StatusOK:
		if oldStatus != "" && oldStatus != StatusOK {
			t.emit(id, flow, okInfo(flow), now)
		}
	default: // error
		t.notifyDegraded(id, flow, oldStatus, now)
	}
}

func (t *Tracker) notifyFlapping(id FlowID, flow *Flow, oldStatus string, now time.Time) {
	repeat := oldStatus == StatusFlapping
	if repeat && !t.remindDue(flow, now) {
		return
	}
	t.emit(id, flow, flappingInfo(flow), now)
}

func (t *Tracker) notifyDegraded(id FlowID, flow *Flow, oldStatus string, now time.Time) {
	firstEver := oldStatus == ""
	if firstEver && t.cfg.SkipInitialError {
		flow.NotificationSent(now.Unix(), false)
		return
	}
	if flow.Status == oldStatus && !t.remindDue(flow, now) {
		return
	}
	t.emit(id, flow, degradedInfoFromFlow(flow), now)
}

// remindDue reports whether enough time has passed since the last
// notification to re-notify a repeated status, per §4.6 step 8(b).
func (t *Tracker) remindDue(flow *Flow, now time.Time) bool {
	if flow.Notified == 0 {
		return true
	}
	if t.cfg.RemindInterval <= 0 {
		return false
	}
	return now.Sub(time.Unix(flow.Notified, 0)) >= t.cfg.RemindInterval
}

// emit stamps the flow's notification bookkeeping and, unless the flow is
// currently muted, writes the notification line. State bookkeeping always
// happens regardless of mute status (§4.6: "Notifications are suppressed
// ... when the flow is in the mute set").
func (t *Tracker) emit(id FlowID, flow *Flow, info []byte, now time.Time) {
	prev := flow.StatusInfo
	flow.StatusInfo = info
	flow.NotificationSent(now.Unix(), false)

	if t.muteQ.IsMuted(id, now.Unix()) {
		return
	}

	note := notification{
		Time:     now.Unix(),
		Aspect:   flow.Aspect,
		Location: flow.Location,
		Info:     json.RawMessage(info),
		Previous: json.RawMessage(prev),
	}
	if prev == nil {
		note.Previous = json.RawMessage("null")
	}
	if err := writeNotification(t.out, note); err != nil {
		if errors.Is(err, ErrOutputClosed) {
			t.outputClosedOnce.Do(func() {
				t.log.Info("output pipe closed, treating as orderly shutdown")
				close(t.outputClosed)
			})
			return
		}
		t.log.Warn("failed to write notification", zap.Error(err))
	}
}

// sweep is driven once per second (§4.6/§5): it evicts expired mutes and
// processes every due timeout-queue entry (missing declarations and
// reminders).
func (t *Tracker) sweep() {
	now := t.now()
	nowUnix := now.Unix()

	for _, id := range t.muteQ.EvictExpired(nowUnix) {
		if flow, ok := t.flows[id]; ok {
			t.mirrorWrite(id, flow)
		}
	}

	for _, id := range t.timeoutQ.DueBy(nowUnix) {
		flow, ok := t.flows[id]
		if !ok {
			continue
		}
		t.declareMissing(id, flow, now)
	}
}

func (t *Tracker) declareMissing(id FlowID, flow *Flow, now time.Time) {
	lastSeen := flow.StatusTime
	_, discarded := flow.Update(StatusMissing, now.Unix())
	if discarded {
		return
	}

	muted := t.muteQ.IsMuted(id, now.Unix())
	flapping := flow.IsFlapping()
	if !muted && !flapping {
		t.emit(id, flow, missingInfo(lastSeen), now)
	} else {
		// state still advances to missing even when suppressed; stamp
		// bookkeeping without a line on the wire.
		flow.NotificationSent(now.Unix(), false)
	}

	if t.cfg.RemindInterval > 0 {
		t.timeoutQ.Schedule(id, now.Unix()+int64(t.cfg.RemindInterval/time.Second))
	}

	t.mirrorWrite(id, flow)
}

func (t *Tracker) mirrorWrite(id FlowID, flow *Flow) {
	if t.mirror == nil {
		return
	}
	mutedUntil := int64(0)
	if exp, ok := t.muteQ.List()[id]; ok {
		mutedUntil = exp
	}
	t.mirror.Write(id, flow, mutedUntil)
}

// --- control-protocol operations (§4.7) ---

// FlowSnapshot is one row of List's result.
type FlowSnapshot struct {
	Aspect   string          `json:"aspect"`
	Location Location        `json:"location"`
	Info     json.RawMessage `json:"info"`
}

// MuteSnapshot is one row of ListMuted's result.
type MuteSnapshot struct {
	Aspect   string   `json:"aspect"`
	Location Location `json:"location"`
	Expires  int64    `json:"expires"`
}

// List returns every tracked flow's current published info, sorted by
// (aspect, location) for deterministic output.
func (t *Tracker) List() []FlowSnapshot {
	var out []FlowSnapshot
	t.call(func() {
		for id, flow := range t.flows {
			out = append(out, FlowSnapshot{Aspect: id.Aspect, Location: flow.Location, Info: flow.StatusInfo})
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Aspect != out[j].Aspect {
			return out[i].Aspect < out[j].Aspect
		}
		return fmt.Sprint(out[i].Location) < fmt.Sprint(out[j].Location)
	})
	return out
}

// Forget removes a flow record entirely, leaving any mute-queue entry for
// it untouched (Open Question decision (b)): a mute is keyed by FlowID and
// was set deliberately, independent of whether a flow record exists.
func (t *Tracker) Forget(aspect string, loc Location) error {
	id, err := NewFlowID(aspect, loc)
	if err != nil {
		return err
	}
	t.call(func() {
		delete(t.flows, id)
		t.timeoutQ.Cancel(id)
		if t.mirror != nil {
			t.mirror.Delete(id)
		}
	})
	return nil
}

// ListMuted returns every currently muted FlowID with its expiry.
func (t *Tracker) ListMuted() []MuteSnapshot {
	var out []MuteSnapshot
	t.call(func() {
		for id, exp := range t.muteQ.List() {
			loc := Location{}
			if flow, ok := t.flows[id]; ok {
				loc = flow.Location
			}
			out = append(out, MuteSnapshot{Aspect: id.Aspect, Location: loc, Expires: exp})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Expires < out[j].Expires })
	return out
}

// Mute arms a mute expiry for a FlowID that may or may not have been seen
// yet (§3.2).
func (t *Tracker) Mute(aspect string, loc Location, duration time.Duration) error {
	id, err := NewFlowID(aspect, loc)
	if err != nil {
		return err
	}
	t.call(func() {
		t.muteQ.Mute(id, t.now().Unix()+int64(duration/time.Second))
		if flow, ok := t.flows[id]; ok {
			t.mirrorWrite(id, flow)
		}
	})
	return nil
}

// Unmute removes a mute entry immediately.
func (t *Tracker) Unmute(aspect string, loc Location) error {
	id, err := NewFlowID(aspect, loc)
	if err != nil {
		return err
	}
	t.call(func() {
		t.muteQ.Unmute(id)
		if flow, ok := t.flows[id]; ok {
			t.mirrorWrite(id, flow)
		}
	})
	return nil
}

// ResetFlapping zeroes a flow's flap detector without re-notifying.
func (t *Tracker) ResetFlapping(aspect string, loc Location) error {
	id, err := NewFlowID(aspect, loc)
	if err != nil {
		return err
	}
	var found bool
	t.call(func() {
		if flow, ok := t.flows[id]; ok {
			flow.ResetFlapping()
			found = true
		}
	})
	if !found {
		return fmt.Errorf("unknown flow")
	}
	return nil
}

// ResetReminder zeroes a flow's notified timestamp so the next non-ok
// message fires a reminder regardless of remind-interval.
func (t *Tracker) ResetReminder(aspect string, loc Location) error {
	id, err := NewFlowID(aspect, loc)
	if err != nil {
		return err
	}
	var found bool
	t.call(func() {
		if flow, ok := t.flows[id]; ok {
			flow.NotificationSent(0, true)
			found = true
		}
	})
	if !found {
		return fmt.Errorf("unknown flow")
	}
	return nil
}
