package daemonshepherd

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestCommandUnmarshalYAML(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want Command
	}{
		{"scalar", "echo hi", Command{Shell: "echo hi"}},
		{"sequence", "[echo, hi]", Command{Argv: []string{"echo", "hi"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got Command
			if err := yaml.Unmarshal([]byte(tc.yaml), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestCommandResolve(t *testing.T) {
	shell := Command{Shell: "echo hi"}
	if got := shell.Resolve(); len(got) != 3 || got[0] != "/bin/sh" || got[1] != "-c" || got[2] != "echo hi" {
		t.Fatalf("shell resolve = %v", got)
	}
	argv := Command{Argv: []string{"echo", "hi"}}
	if got := argv.Resolve(); len(got) != 2 || got[0] != "echo" || got[1] != "hi" {
		t.Fatalf("argv resolve = %v", got)
	}
}

func TestDaemonSpecApplyDefaults(t *testing.T) {
	var d DaemonSpec
	d.ApplyDefaults()
	if d.Stdout != StdoutConsole {
		t.Errorf("stdout = %q, want %q", d.Stdout, StdoutConsole)
	}
	if d.StartPriority != DefaultStartPriority {
		t.Errorf("start_priority = %d, want %d", d.StartPriority, DefaultStartPriority)
	}
	if !intSliceEqual(d.Restart, DefaultRestart) {
		t.Errorf("restart = %v, want %v", d.Restart, DefaultRestart)
	}
}

func TestDaemonSpecRestartDelay(t *testing.T) {
	d := DaemonSpec{Restart: []int{0, 5, 15, 30, 60}}
	cases := []struct {
		index int
		want  int
	}{
		{-1, 0},
		{0, 0},
		{2, 15},
		{4, 60},
		{10, 60}, // tail-repeats the last entry
	}
	for _, tc := range cases {
		if got := d.RestartDelay(tc.index); got != tc.want {
			t.Errorf("RestartDelay(%d) = %d, want %d", tc.index, got, tc.want)
		}
	}
	if got := d.MaxBackoffIndex(); got != 4 {
		t.Errorf("MaxBackoffIndex() = %d, want 4", got)
	}
}

func TestDaemonSpecEqual(t *testing.T) {
	base := DaemonSpec{
		StartCommand: Command{Shell: "run"},
		Environment:  map[string]string{"A": "1"},
		Restart:      []int{0, 5},
		Commands: map[string]CommandSpec{
			"reload": {Signal: "HUP"},
		},
	}
	same := base
	same.Environment = map[string]string{"A": "1"}
	same.Restart = []int{0, 5}
	same.Commands = map[string]CommandSpec{"reload": {Signal: "HUP"}}
	if !base.Equal(same) {
		t.Fatal("expected structurally identical specs to be Equal")
	}

	changedEnv := same
	changedEnv.Environment = map[string]string{"A": "2"}
	if base.Equal(changedEnv) {
		t.Fatal("expected differing environment to break Equal")
	}

	changedCmd := same
	changedCmd.Commands = map[string]CommandSpec{"reload": {Signal: "USR1"}}
	if base.Equal(changedCmd) {
		t.Fatal("expected differing command signal to break Equal")
	}
}

func TestStopSpecEqualNil(t *testing.T) {
	var a, b *StopSpec
	if !a.Equal(b) {
		t.Fatal("two nil stop specs should be Equal")
	}
	s := &StopSpec{Signal: "TERM"}
	if s.Equal(a) {
		t.Fatal("non-nil vs nil stop specs should not be Equal")
	}
	if a.Equal(s) {
		t.Fatal("nil vs non-nil stop specs should not be Equal")
	}
}
