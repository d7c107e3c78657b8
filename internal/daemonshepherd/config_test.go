package daemonshepherd

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSpecFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "daemons.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write spec file: %v", err)
	}
	return path
}

func TestLoadSpecFileAppliesDefaults(t *testing.T) {
	path := writeSpecFile(t, `
defaults:
  stdout: log
  restart: [1, 2, 3]
daemons:
  web:
    start_command: "run-web"
  worker:
    start_command: "run-worker"
    stdout: console
`)

	specs, err := LoadSpecFile(path)
	if err != nil {
		t.Fatalf("LoadSpecFile: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}

	byName := make(map[string]DaemonSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	web := byName["web"]
	if web.Stdout != "log" {
		t.Errorf("web.Stdout = %q, want log (inherited default)", web.Stdout)
	}
	if !intSliceEqual(web.Restart, []int{1, 2, 3}) {
		t.Errorf("web.Restart = %v, want [1 2 3]", web.Restart)
	}

	worker := byName["worker"]
	if worker.Stdout != "console" {
		t.Errorf("worker.Stdout = %q, want console (own value wins over default)", worker.Stdout)
	}
}

func TestLoadSpecFileRejectsMissingStartCommand(t *testing.T) {
	path := writeSpecFile(t, `
daemons:
  broken:
    stdout: console
`)
	if _, err := LoadSpecFile(path); err == nil {
		t.Fatal("expected an error for a daemon missing start_command")
	}
}

func TestLoadSpecFileRejectsNegativeRestartDelay(t *testing.T) {
	path := writeSpecFile(t, `
daemons:
  broken:
    start_command: "run"
    restart: [0, -5]
`)
	if _, err := LoadSpecFile(path); err == nil {
		t.Fatal("expected an error for a negative restart delay")
	}
}

func TestMergeEntryOwnValueWinsOverDefault(t *testing.T) {
	defaults := map[string]any{"a": 1, "b": 2}
	entry := map[string]any{"b": 3}
	merged := mergeEntry(defaults, entry)
	if merged["a"] != 1 || merged["b"] != 3 {
		t.Fatalf("merged = %v", merged)
	}
}
