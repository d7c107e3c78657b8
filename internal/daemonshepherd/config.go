package daemonshepherd

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// configFile mirrors the top-level YAML document shape of §6: a
// `defaults` mapping applied to every daemon entry that omits a given key,
// and a `daemons` mapping of name → entry. Entries are decoded as raw
// key/value maps first so defaults can be merged in before the typed
// DaemonSpec decode runs — the teacher's loadSpec reads the whole file,
// unmarshals into a typed document, normalizes, and returns a wrapped
// error on any failure; this is that same shape with a merge step added
// for the `defaults` feature the teacher's own config format has no
// equivalent of.
type configFile struct {
	Defaults map[string]any            `yaml:"defaults"`
	Daemons  map[string]map[string]any `yaml:"daemons"`
}

// LoadSpecFile reads and parses a daemonshepherd spec file into an ordered
// (by name) list of fully-defaulted DaemonSpec values.
func LoadSpecFile(path string) ([]DaemonSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec file %s: %w", path, err)
	}

	var doc configFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse spec file %s: %w", path, err)
	}

	names := make([]string, 0, len(doc.Daemons))
	for name := range doc.Daemons {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]DaemonSpec, 0, len(names))
	for _, name := range names {
		merged := mergeEntry(doc.Defaults, doc.Daemons[name])

		entryBytes, err := yaml.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("re-marshal daemon %q: %w", name, err)
		}

		var spec DaemonSpec
		dec := yaml.NewDecoder(bytes.NewReader(entryBytes))
		dec.KnownFields(true)
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("decode daemon %q: %w", name, err)
		}

		spec.Name = name

		if err := validateSpec(spec); err != nil {
			return nil, fmt.Errorf("daemon %q: %w", name, err)
		}

		spec.ApplyDefaults()
		specs = append(specs, spec)
	}

	return specs, nil
}

// mergeEntry shallow-merges default key/value pairs under any key the
// daemon entry itself does not set (§6: `defaults` is optional, applies
// field-by-field).
func mergeEntry(defaults map[string]any, entry map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(entry))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range entry {
		out[k] = v
	}
	return out
}

// validateSpec rejects a spec file that is well-formed YAML but violates a
// data-model invariant the typed decode cannot catch (§3.1/§7: malformed
// restart list is a fatal configuration error at startup).
func validateSpec(spec DaemonSpec) error {
	if spec.StartCommand.IsZero() {
		return fmt.Errorf("start_command is required")
	}
	for _, delay := range spec.Restart {
		if delay < 0 {
			return fmt.Errorf("restart delays must be non-negative, got %d", delay)
		}
	}
	if spec.Restart != nil && len(spec.Restart) == 0 {
		return fmt.Errorf("restart list must not be empty")
	}
	return nil
}
