package hailerter

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"
)

// epipeWriter always fails with EPIPE, simulating a reader that has gone
// away on the other end of hailerter's stdout (§7).
type epipeWriter struct{}

func (epipeWriter) Write(p []byte) (int, error) { return 0, syscall.EPIPE }

// newTestTracker starts a Tracker's actor loop in the background, returning
// it along with its output buffer and a fake clock the test can advance.
// Every Tracker method that calls t.call needs something draining cmdCh,
// which only Run provides — mirroring the daemonshepherd controller tests'
// "drive the actor loop inline" approach, but here via the real Run since
// sweep() is itself under test.
func newTestTracker(t *testing.T, cfg Config) (*Tracker, *bytes.Buffer, *fakeClock) {
	t.Helper()
	var out bytes.Buffer
	tr := New(zap.NewNop(), cfg, &out, nil)
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	tr.now = clock.Now

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go tr.Run(ctx)

	return tr, &out, clock
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func lastLine(buf *bytes.Buffer) map[string]any {
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	var m map[string]any
	_ = json.Unmarshal([]byte(lines[len(lines)-1]), &m)
	return m
}

func TestProcessMessageFirstErrorNotifiesByDefault(t *testing.T) {
	tr, out, clock := newTestTracker(t, Config{})
	tr.ProcessMessage(Message{Time: clock.t.Unix(), Aspect: "disk", Location: Location{"h": "a"}, State: strp("down"), Severity: strp("error")})

	if out.Len() == 0 {
		t.Fatal("expected a notification line to be written")
	}
	line := lastLine(out)
	info := line["info"].(map[string]any)
	if info["status"] != "degraded" {
		t.Errorf("info.status = %v, want degraded", info["status"])
	}
}

func TestProcessMessageSkipInitialError(t *testing.T) {
	tr, out, clock := newTestTracker(t, Config{SkipInitialError: true})
	tr.ProcessMessage(Message{Time: clock.t.Unix(), Aspect: "disk", State: strp("down"), Severity: strp("error")})
	if out.Len() != 0 {
		t.Fatalf("expected no notification for the first-ever error with SkipInitialError, got %q", out.String())
	}
}

func TestProcessMessageRecoveryNotifies(t *testing.T) {
	tr, out, clock := newTestTracker(t, Config{})
	loc := Location{"h": "a"}
	tr.ProcessMessage(Message{Time: clock.t.Unix(), Aspect: "disk", Location: loc, State: strp("down"), Severity: strp("error")})
	out.Reset()

	tr.ProcessMessage(Message{Time: clock.t.Unix() + 1, Aspect: "disk", Location: loc, State: strp("up")})
	if out.Len() == 0 {
		t.Fatal("expected a recovery notification")
	}
	line := lastLine(out)
	info := line["info"].(map[string]any)
	if info["status"] != "ok" {
		t.Errorf("info.status = %v, want ok", info["status"])
	}
}

func TestProcessMessageRepeatedErrorSuppressedWithoutRemind(t *testing.T) {
	tr, out, clock := newTestTracker(t, Config{})
	loc := Location{"h": "a"}
	tr.ProcessMessage(Message{Time: clock.t.Unix(), Aspect: "disk", Location: loc, State: strp("down"), Severity: strp("error")})
	out.Reset()

	tr.ProcessMessage(Message{Time: clock.t.Unix() + 1, Aspect: "disk", Location: loc, State: strp("down"), Severity: strp("error")})
	if out.Len() != 0 {
		t.Fatalf("repeated error with no remind-interval should not re-notify, got %q", out.String())
	}
}

func TestProcessMessageRemindIntervalReNotifies(t *testing.T) {
	tr, out, clock := newTestTracker(t, Config{RemindInterval: 10 * time.Second})
	loc := Location{"h": "a"}
	tr.ProcessMessage(Message{Time: clock.t.Unix(), Aspect: "disk", Location: loc, State: strp("down"), Severity: strp("error")})
	out.Reset()

	tr.ProcessMessage(Message{Time: clock.t.Unix() + 1, Aspect: "disk", Location: loc, State: strp("down"), Severity: strp("error")})
	if out.Len() != 0 {
		t.Fatal("reminder should not fire before the interval elapses")
	}

	clock.Advance(11 * time.Second)
	tr.ProcessMessage(Message{Time: clock.t.Unix(), Aspect: "disk", Location: loc, State: strp("down"), Severity: strp("error")})
	if out.Len() == 0 {
		t.Fatal("expected a reminder notification once remind-interval has elapsed")
	}
}

func TestMuteSuppressesWriteButUpdatesState(t *testing.T) {
	tr, out, clock := newTestTracker(t, Config{})
	loc := Location{"h": "a"}
	aspect := "disk"

	if err := tr.Mute(aspect, loc, time.Minute); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	tr.ProcessMessage(Message{Time: clock.t.Unix(), Aspect: aspect, Location: loc, State: strp("down"), Severity: strp("error")})
	if out.Len() != 0 {
		t.Fatalf("muted flow must not write a notification line, got %q", out.String())
	}

	snaps := tr.List()
	if len(snaps) != 1 {
		t.Fatalf("List() = %v, want one flow (state still recorded while muted)", snaps)
	}
}

func TestForgetRemovesFlow(t *testing.T) {
	tr, _, clock := newTestTracker(t, Config{})
	loc := Location{"h": "a"}
	tr.ProcessMessage(Message{Time: clock.t.Unix(), Aspect: "disk", Location: loc, State: strp("up")})
	if len(tr.List()) != 1 {
		t.Fatal("setup: expected one flow")
	}
	if err := tr.Forget("disk", loc); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if len(tr.List()) != 0 {
		t.Fatal("expected the flow to be gone after Forget")
	}
}

func TestResetFlappingUnknownFlow(t *testing.T) {
	tr, _, _ := newTestTracker(t, Config{})
	if err := tr.ResetFlapping("nope", Location{}); err == nil {
		t.Fatal("expected an error resetting flapping on an unknown flow")
	}
}

func TestResetReminderAllowsImmediateRenotify(t *testing.T) {
	tr, out, clock := newTestTracker(t, Config{RemindInterval: time.Hour})
	loc := Location{"h": "a"}
	tr.ProcessMessage(Message{Time: clock.t.Unix(), Aspect: "disk", Location: loc, State: strp("down"), Severity: strp("error")})
	out.Reset()

	if err := tr.ResetReminder("disk", loc); err != nil {
		t.Fatalf("ResetReminder: %v", err)
	}
	tr.ProcessMessage(Message{Time: clock.t.Unix() + 1, Aspect: "disk", Location: loc, State: strp("down"), Severity: strp("error")})
	if out.Len() == 0 {
		t.Fatal("expected a notification immediately after ResetReminder despite a 1h remind-interval")
	}
}

func TestListMutedReportsExpiry(t *testing.T) {
	tr, _, clock := newTestTracker(t, Config{})
	loc := Location{"h": "a"}
	if err := tr.Mute("disk", loc, 30*time.Second); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	muted := tr.ListMuted()
	if len(muted) != 1 {
		t.Fatalf("ListMuted() = %v, want 1 entry", muted)
	}
	if muted[0].Expires != clock.t.Unix()+30 {
		t.Errorf("Expires = %d, want %d", muted[0].Expires, clock.t.Unix()+30)
	}
}

func TestOutputClosedOnBrokenPipe(t *testing.T) {
	tr := New(zap.NewNop(), Config{}, epipeWriter{}, nil)
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	tr.now = clock.Now

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go tr.Run(ctx)

	tr.ProcessMessage(Message{Time: clock.t.Unix(), Aspect: "disk", State: strp("down"), Severity: strp("error")})

	select {
	case <-tr.OutputClosed():
	case <-time.After(2 * time.Second):
		t.Fatal("expected OutputClosed to be closed after a write fails with EPIPE")
	}
}

func TestUnmuteRemovesEntry(t *testing.T) {
	tr, _, _ := newTestTracker(t, Config{})
	loc := Location{"h": "a"}
	tr.Mute("disk", loc, time.Minute)
	if err := tr.Unmute("disk", loc); err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	if len(tr.ListMuted()) != 0 {
		t.Fatal("expected no muted entries after Unmute")
	}
}
