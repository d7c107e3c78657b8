// Package daemonshepherd implements the daemonshepherd process supervisor:
// a declared set of child processes (§3.1), a restart queue with backoff
// (§4.2), a Unix-domain control socket (§4.4), and the controller event loop
// binding them together (§4.3).
package daemonshepherd

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultRestart is the backoff sequence used when a DaemonSpec omits
// `restart` (§3.1).
var DefaultRestart = []int{0, 5, 15, 30, 60}

// DefaultStartPriority is used when a DaemonSpec omits `start_priority`.
const DefaultStartPriority = 10

// Command names with special meaning (§3.1). before-start and after-crash
// are hooks looked up in DaemonSpec.Commands; the stop procedure itself is
// read from DaemonSpec.Stop, not from Commands.
const (
	CommandStop        = "stop"
	CommandBeforeStart = "before-start"
	CommandAfterCrash  = "after-crash"
)

// Stdout sink kinds (§3.1).
const (
	StdoutConsole = "console"
	StdoutDevnull = "devnull"
	StdoutLog     = "log"
)

// Command is either a shell string (launched via `/bin/sh -c`) or an
// ordered argv list (executed directly), matching the `start_command` /
// command-sub-spec union in §3.1.
type Command struct {
	Shell string
	Argv  []string
}

// IsZero reports whether no command was declared at all.
func (c Command) IsZero() bool { return c.Shell == "" && len(c.Argv) == 0 }

// UnmarshalYAML accepts either a scalar string or a sequence of strings.
func (c *Command) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return fmt.Errorf("command: %w", err)
		}
		c.Shell = s
		c.Argv = nil
		return nil
	case yaml.SequenceNode:
		var argv []string
		if err := node.Decode(&argv); err != nil {
			return fmt.Errorf("command: %w", err)
		}
		c.Argv = argv
		c.Shell = ""
		return nil
	default:
		return fmt.Errorf("command: expected string or list, got %v", node.Kind)
	}
}

// Equal compares two commands by value.
func (c Command) Equal(o Command) bool {
	if c.Shell != o.Shell {
		return false
	}
	return stringSliceEqual(c.Argv, o.Argv)
}

// Resolve returns the argv to exec: ["/bin/sh", "-c", Shell] for shell form,
// or Argv verbatim for direct-exec form.
func (c Command) Resolve() []string {
	if c.Shell != "" {
		return []string{"/bin/sh", "-c", c.Shell}
	}
	out := make([]string, len(c.Argv))
	copy(out, c.Argv)
	return out
}

// StringList accepts either a single YAML scalar or a sequence, used for
// `group` which may be one group name or a list (§3.1).
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var s []string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = StringList(s)
		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", node.Kind)
	}
}

// StopSpec declares how to stop a running daemon (§3.1). Command, when
// present, wins over Signal/ProcessGroup.
type StopSpec struct {
	Command      *Command `yaml:"command,omitempty"`
	Signal       string   `yaml:"signal,omitempty"`
	ProcessGroup bool     `yaml:"process_group,omitempty"`
}

// Equal compares two (possibly nil) stop specs.
func (s *StopSpec) Equal(o *StopSpec) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Signal != o.Signal || s.ProcessGroup != o.ProcessGroup {
		return false
	}
	switch {
	case s.Command == nil && o.Command == nil:
		return true
	case s.Command == nil || o.Command == nil:
		return false
	default:
		return s.Command.Equal(*o.Command)
	}
}

// CommandSpec is one entry of DaemonSpec.Commands: an administrative
// command sharing credential/environment fields with its owning daemon,
// with unspecified fields inheriting from it (§3.1).
type CommandSpec struct {
	Command      *Command    `yaml:"command,omitempty"`
	Signal       string      `yaml:"signal,omitempty"`
	ProcessGroup bool        `yaml:"process_group,omitempty"`
	User         *string     `yaml:"user,omitempty"`
	Group        *StringList `yaml:"group,omitempty"`
	Cwd          *string     `yaml:"cwd,omitempty"`
	Environment  *map[string]string `yaml:"environment,omitempty"`
	Argv0        *string     `yaml:"argv0,omitempty"`
}

// Equal compares two command specs field-by-field (never via reflection, so
// reload diffing is immune to YAML-level formatting drift, per Design Notes
// §9).
func (c CommandSpec) Equal(o CommandSpec) bool {
	if c.Signal != o.Signal || c.ProcessGroup != o.ProcessGroup {
		return false
	}
	if !strPtrEqual(c.User, o.User) || !strPtrEqual(c.Cwd, o.Cwd) || !strPtrEqual(c.Argv0, o.Argv0) {
		return false
	}
	if !stringListPtrEqual(c.Group, o.Group) {
		return false
	}
	if !envPtrEqual(c.Environment, o.Environment) {
		return false
	}
	switch {
	case c.Command == nil && o.Command == nil:
		return true
	case c.Command == nil || o.Command == nil:
		return false
	default:
		return c.Command.Equal(*o.Command)
	}
}

// DaemonSpec is the declared configuration of one supervised process
// (§3.1). Equality is value equality over these fields exactly, never
// reflect.DeepEqual on the raw document (Design Notes §9) — this is what
// the controller's reload diff (§4.3) compares.
type DaemonSpec struct {
	Name          string                 `yaml:"-"`
	StartCommand  Command                `yaml:"start_command"`
	Argv0         string                 `yaml:"argv0,omitempty"`
	Stop          *StopSpec              `yaml:"stop,omitempty"`
	Environment   map[string]string      `yaml:"environment,omitempty"`
	Cwd           string                 `yaml:"cwd,omitempty"`
	User          string                 `yaml:"user,omitempty"`
	Group         StringList             `yaml:"group,omitempty"`
	Stdout        string                 `yaml:"stdout,omitempty"`
	Restart       []int                  `yaml:"restart,omitempty"`
	StartPriority int                    `yaml:"start_priority,omitempty"`
	Commands      map[string]CommandSpec `yaml:"commands,omitempty"`
}

// ApplyDefaults fills in the zero-value fields this spec omitted.
func (d *DaemonSpec) ApplyDefaults() {
	if d.Stdout == "" {
		d.Stdout = StdoutConsole
	}
	if len(d.Restart) == 0 {
		d.Restart = append([]int(nil), DefaultRestart...)
	}
	if d.StartPriority == 0 {
		d.StartPriority = DefaultStartPriority
	}
}

// Equal reports whether two specs are structurally identical, excluding the
// Name (callers compare specs already known to share a name) and any live
// runtime state (there is none on this type — that lives in Child/restart
// state machines).
func (d DaemonSpec) Equal(o DaemonSpec) bool {
	if !d.StartCommand.Equal(o.StartCommand) {
		return false
	}
	if d.Argv0 != o.Argv0 || d.Cwd != o.Cwd || d.User != o.User || d.Stdout != o.Stdout {
		return false
	}
	if d.StartPriority != o.StartPriority {
		return false
	}
	if !d.Stop.Equal(o.Stop) {
		return false
	}
	if !stringSliceEqual([]string(d.Group), []string(o.Group)) {
		return false
	}
	if !intSliceEqual(d.Restart, o.Restart) {
		return false
	}
	if !stringMapEqual(d.Environment, o.Environment) {
		return false
	}
	if len(d.Commands) != len(o.Commands) {
		return false
	}
	for name, c := range d.Commands {
		oc, ok := o.Commands[name]
		if !ok || !c.Equal(oc) {
			return false
		}
	}
	return true
}

// RestartDelay returns the backoff delay, in seconds, for the given
// zero-based attempt index, tail-repeating the last entry indefinitely
// (§3.1).
func (d DaemonSpec) RestartDelay(index int) int {
	if index < 0 {
		index = 0
	}
	if index >= len(d.Restart) {
		index = len(d.Restart) - 1
	}
	return d.Restart[index]
}

// MaxBackoffIndex is the highest valid backoff_index for this spec.
func (d DaemonSpec) MaxBackoffIndex() int { return len(d.Restart) - 1 }

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intSliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func stringListPtrEqual(a, b *StringList) bool {
	if a == nil || b == nil {
		return a == b
	}
	return stringSliceEqual([]string(*a), []string(*b))
}

func envPtrEqual(a, b *map[string]string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return stringMapEqual(*a, *b)
}
