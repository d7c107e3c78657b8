package hailerter

import "testing"

func TestTimeoutQueueScheduleAndDueBy(t *testing.T) {
	q := NewTimeoutQueue()
	a := FlowID{Aspect: "a", Location: "{}"}
	b := FlowID{Aspect: "b", Location: "{}"}

	q.Schedule(a, 100)
	q.Schedule(b, 200)

	due := q.DueBy(100)
	if len(due) != 1 || due[0] != a {
		t.Fatalf("DueBy(100) = %v, want [a]", due)
	}
	if due := q.DueBy(200); len(due) != 1 || due[0] != b {
		t.Fatalf("DueBy(200) = %v, want [b]", due)
	}
}

func TestTimeoutQueueRescheduleReplaces(t *testing.T) {
	q := NewTimeoutQueue()
	id := FlowID{Aspect: "a", Location: "{}"}
	q.Schedule(id, 100)
	q.Schedule(id, 300) // re-arm to a later deadline

	if due := q.DueBy(100); len(due) != 0 {
		t.Fatalf("DueBy(100) = %v, want none (rescheduled)", due)
	}
	if due := q.DueBy(300); len(due) != 1 || due[0] != id {
		t.Fatalf("DueBy(300) = %v, want [a]", due)
	}
}

func TestTimeoutQueueCancel(t *testing.T) {
	q := NewTimeoutQueue()
	id := FlowID{Aspect: "a", Location: "{}"}
	q.Schedule(id, 100)
	if !q.Cancel(id) {
		t.Fatal("expected Cancel to report the entry was present")
	}
	if q.Cancel(id) {
		t.Fatal("expected a second Cancel to report false")
	}
	if due := q.DueBy(1000); len(due) != 0 {
		t.Fatalf("DueBy after cancel = %v, want none", due)
	}
}

func TestMuteQueueMuteAndIsMuted(t *testing.T) {
	q := NewMuteQueue()
	id := FlowID{Aspect: "a", Location: "{}"}

	if q.IsMuted(id, 0) {
		t.Fatal("a never-muted id must not be reported muted")
	}
	q.Mute(id, 100)
	if !q.IsMuted(id, 50) {
		t.Fatal("expected muted before expiry")
	}
	if q.IsMuted(id, 100) {
		t.Fatal("expiry itself must not count as still muted")
	}
}

func TestMuteQueueUnmute(t *testing.T) {
	q := NewMuteQueue()
	id := FlowID{Aspect: "a", Location: "{}"}
	q.Mute(id, 100)
	if !q.Unmute(id) {
		t.Fatal("expected Unmute to report the entry was present")
	}
	if q.IsMuted(id, 0) {
		t.Fatal("unmuted id must not be reported muted")
	}
	if q.Unmute(id) {
		t.Fatal("expected a second Unmute to report false")
	}
}

func TestMuteQueueEvictExpired(t *testing.T) {
	q := NewMuteQueue()
	a := FlowID{Aspect: "a", Location: "{}"}
	b := FlowID{Aspect: "b", Location: "{}"}
	q.Mute(a, 50)
	q.Mute(b, 150)

	evicted := q.EvictExpired(100)
	if len(evicted) != 1 || evicted[0] != a {
		t.Fatalf("EvictExpired(100) = %v, want [a]", evicted)
	}
	if _, ok := q.List()[b]; !ok {
		t.Fatal("b should remain in the queue")
	}
}

func TestMuteQueueList(t *testing.T) {
	q := NewMuteQueue()
	a := FlowID{Aspect: "a", Location: "{}"}
	q.Mute(a, 123)
	list := q.List()
	if list[a] != 123 {
		t.Fatalf("List()[a] = %d, want 123", list[a])
	}
}
