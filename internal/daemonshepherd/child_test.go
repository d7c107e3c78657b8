package daemonshepherd

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBuildEnv(t *testing.T) {
	if got := buildEnv(nil); got != nil {
		t.Errorf("buildEnv(nil) = %v, want nil (inherit)", got)
	}
	got := buildEnv(map[string]string{"A": "1"})
	if len(got) != 1 || got[0] != "A=1" {
		t.Errorf("buildEnv(map) = %v", got)
	}
	// An explicitly empty (non-nil) map still replaces, yielding an empty
	// but non-nil slice rather than falling back to inherit.
	got = buildEnv(map[string]string{})
	if got == nil || len(got) != 0 {
		t.Errorf("buildEnv(empty map) = %v, want empty non-nil slice", got)
	}
}

func TestCredentialAttrEmpty(t *testing.T) {
	attr, err := credentialAttr("", nil)
	if err != nil {
		t.Fatalf("credentialAttr: %v", err)
	}
	if attr.Credential != nil {
		t.Error("expected no Credential when user/group are both empty")
	}
}

func TestCredentialAttrUnknownUser(t *testing.T) {
	if _, err := credentialAttr("no-such-user-daemonshepherd-test", nil); err == nil {
		t.Fatal("expected an error looking up a nonexistent user")
	}
}

func TestResolveSignal(t *testing.T) {
	if sig := resolveSignal(nil); sig.String() != "terminated" {
		t.Errorf("resolveSignal(nil) = %v, want SIGTERM", sig)
	}
	if sig := resolveSignal(&StopSpec{Signal: "KILL"}); sig.String() != "killed" {
		t.Errorf("resolveSignal(KILL) = %v, want SIGKILL", sig)
	}
	if sig := resolveSignal(&StopSpec{Signal: "9"}); sig.String() != "killed" {
		t.Errorf("resolveSignal(9) = %v, want SIGKILL", sig)
	}
}

func TestChildStartAndWait(t *testing.T) {
	spec := DaemonSpec{Name: "t", StartCommand: Command{Argv: []string{"/bin/sh", "-c", "exit 0"}}, Stdout: StdoutConsole}
	c := NewChild("t", zap.NewNop())

	var mu sync.Mutex
	var got ExitInfo
	done := make(chan struct{})

	if err := c.Start(spec, func(info ExitInfo) {
		mu.Lock()
		got = info
		mu.Unlock()
		close(done)
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for process exit")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.Unexpected != true {
		t.Error("an unrequested exit should be reported as Unexpected")
	}
	if got.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", got.ExitCode)
	}
}

func TestChildStopSuppressesUnexpected(t *testing.T) {
	spec := DaemonSpec{
		Name:         "t",
		StartCommand: Command{Argv: []string{"/bin/sh", "-c", "trap 'exit 0' TERM; sleep 5"}},
		Stdout:       StdoutConsole,
	}
	c := NewChild("t", zap.NewNop())

	done := make(chan ExitInfo, 1)
	if err := c.Start(spec, func(info ExitInfo) { done <- info }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.Stop(spec)

	select {
	case info := <-done:
		if info.Unexpected {
			t.Error("exit following Stop should not be reported as Unexpected")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for process exit after Stop")
	}
}
