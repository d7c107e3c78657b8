package hailerter

import "testing"

func strp(s string) *string { return &s }

func TestComputeStatusNoState(t *testing.T) {
	_, ok := computeStatus(Message{}, false)
	if ok {
		t.Fatal("a message with no state field must be dropped (ok=false)")
	}
}

func TestComputeStatusNoSeverity(t *testing.T) {
	status, ok := computeStatus(Message{State: strp("up")}, false)
	if !ok || status != StatusOK {
		t.Fatalf("status=%q ok=%v, want ok/true", status, ok)
	}
}

func TestComputeStatusSeverities(t *testing.T) {
	cases := []struct {
		severity        string
		warningExpected bool
		want            string
	}{
		{"expected", false, StatusOK},
		{"warning", false, StatusError},
		{"warning", true, StatusOK},
		{"error", false, StatusError},
		{"error", true, StatusError},
		{"something-unknown", false, StatusError},
	}
	for _, c := range cases {
		status, ok := computeStatus(Message{State: strp("up"), Severity: strp(c.severity)}, c.warningExpected)
		if !ok {
			t.Fatalf("severity=%q: expected ok=true", c.severity)
		}
		if status != c.want {
			t.Errorf("severity=%q warningExpected=%v: status=%q, want %q", c.severity, c.warningExpected, status, c.want)
		}
	}
}

func TestSeverityLabel(t *testing.T) {
	if got := severityLabel(nil); got != "expected" {
		t.Errorf("severityLabel(nil) = %q, want expected", got)
	}
	if got := severityLabel(strp("warning")); got != "warning" {
		t.Errorf("severityLabel(warning) = %q", got)
	}
	if got := severityLabel(strp("garbage")); got != "error" {
		t.Errorf("severityLabel(garbage) = %q, want error", got)
	}
}

func TestFlowIDCanonicalization(t *testing.T) {
	a, err := NewFlowID("disk", Location{"b": 1, "a": 2})
	if err != nil {
		t.Fatalf("NewFlowID: %v", err)
	}
	b, err := NewFlowID("disk", Location{"a": 2, "b": 1})
	if err != nil {
		t.Fatalf("NewFlowID: %v", err)
	}
	if a != b {
		t.Errorf("FlowIDs for equivalent locations differ: %+v vs %+v", a, b)
	}
}

func TestFlowIDNilLocation(t *testing.T) {
	id, err := NewFlowID("disk", nil)
	if err != nil {
		t.Fatalf("NewFlowID(nil): %v", err)
	}
	if id.Location != "{}" {
		t.Errorf("canonical nil location = %q, want {}", id.Location)
	}
}
