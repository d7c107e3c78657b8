package hailerter

import "testing"

func TestFlowUpdateBasic(t *testing.T) {
	f := NewFlow("disk", Location{"host": "a"}, 4, 0.5)

	old, discarded := f.Update(StatusOK, 100)
	if discarded {
		t.Fatal("first update should never be discarded")
	}
	if old != "" {
		t.Errorf("old status on first update = %q, want empty", old)
	}
	if f.Status != StatusOK || f.StatusTime != 100 {
		t.Fatalf("flow = %+v", f)
	}
}

func TestFlowUpdateDiscardsOutOfOrder(t *testing.T) {
	f := NewFlow("disk", nil, 4, 0.5)
	f.Update(StatusOK, 100)

	old, discarded := f.Update(StatusError, 50)
	if !discarded {
		t.Fatal("an earlier timestamp must be discarded")
	}
	if old != discardUpdate {
		t.Errorf("old status for a discarded update = %q", old)
	}
	if f.Status != StatusOK || f.StatusTime != 100 {
		t.Error("a discarded update must not mutate the flow")
	}
}

func TestFlowFlapDetection(t *testing.T) {
	// window=4, threshold=0.5: 3/4 changes exceeds the threshold.
	f := NewFlow("disk", nil, 4, 0.5)
	f.Update(StatusOK, 1)
	f.Update(StatusError, 2)    // change 1
	f.Update(StatusOK, 3)       // change 2
	if f.IsFlapping() {
		t.Fatal("2/4 changes should not yet exceed the 0.5 threshold")
	}
	f.Update(StatusError, 4) // change 3 -> 3/4 changes
	if !f.IsFlapping() {
		t.Fatalf("expected flapping: changes=%d window=%d", f.FlapChanges(), f.flapWindow)
	}
}

func TestFlowResetFlappingPreservesStatus(t *testing.T) {
	f := NewFlow("disk", nil, 4, 0.1)
	f.Update(StatusOK, 1)
	f.Update(StatusError, 2)
	if !f.IsFlapping() {
		t.Fatal("setup: expected flapping before reset")
	}
	f.ResetFlapping()
	if f.IsFlapping() {
		t.Error("ResetFlapping should clear the flap state")
	}
	if f.Status != StatusError || f.StatusTime != 2 {
		t.Error("ResetFlapping must not alter Status/StatusTime")
	}
}

func TestFlowMissingRepeatResetsFlapBit(t *testing.T) {
	f := NewFlow("disk", nil, 4, 0.5)
	f.Update(StatusMissing, 1)
	// A second consecutive "missing" must not itself count as a flap change.
	f.Update(StatusMissing, 2)
	if f.FlapChanges() != 0 {
		t.Errorf("FlapChanges = %d, want 0 after repeated missing", f.FlapChanges())
	}
}

func TestFlowUpdateFlapWindowDisabled(t *testing.T) {
	// flapWindow=0 is the --flapping-window default (§6): this must never
	// divide by zero, and flapping must never be reported.
	f := NewFlow("disk", nil, 0, 0.5)
	for i, status := range []string{StatusOK, StatusError, StatusOK, StatusError, StatusMissing} {
		if _, discarded := f.Update(status, int64(i+1)); discarded {
			t.Fatalf("update %d unexpectedly discarded", i)
		}
	}
	if f.IsFlapping() {
		t.Fatal("flap detection must stay disabled when flapWindow is 0")
	}
}

func TestFlowNotificationSentAndReset(t *testing.T) {
	f := NewFlow("disk", nil, 4, 0.5)
	f.NotificationSent(500, false)
	if f.Notified != 500 {
		t.Fatalf("Notified = %d, want 500", f.Notified)
	}
	f.NotificationSent(0, true)
	if f.Notified != 0 {
		t.Fatalf("Notified after reset = %d, want 0", f.Notified)
	}
}
