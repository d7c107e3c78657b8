// Package hailerter implements the hailerter stream-tracker: a per-flow
// status machine with flap detection (§4.5), a state tracker owning the
// flow map and timeout/mute queues (§4.6), and a Unix-domain control
// socket identical in shape to daemonshepherd's (§4.7).
package hailerter

import (
	"encoding/json"
	"fmt"
)

// Status values a Flow can hold. "flapping" is never stored on a Flow; it
// is derived at notification time from the flap detector (§4.5).
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusMissing = "missing"
	StatusFlapping = "flapping"
)

// Location is the arbitrary JSON object identifying what an aspect is
// measured on (§GLOSSARY). encoding/json already serializes map keys in
// sorted order with no extraneous whitespace, which is exactly the
// canonical form §3.2 requires for FlowID comparison.
type Location map[string]any

// Canonical returns the canonical JSON encoding of loc.
func (l Location) Canonical() (string, error) {
	if l == nil {
		l = Location{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("canonicalize location: %w", err)
	}
	return string(b), nil
}

// FlowID identifies a stream by (aspect, canonical location) (§3.2).
type FlowID struct {
	Aspect   string
	Location string // canonical JSON
}

// NewFlowID builds a FlowID from a raw aspect/location pair.
func NewFlowID(aspect string, loc Location) (FlowID, error) {
	canon, err := loc.Canonical()
	if err != nil {
		return FlowID{}, err
	}
	return FlowID{Aspect: aspect, Location: canon}, nil
}

// Key returns a value suitable for use as a map key — FlowID already is
// one (both fields are comparable strings), this just documents intent at
// call sites.
func (id FlowID) Key() FlowID { return id }

func (id FlowID) String() string { return id.Aspect + ":" + id.Location }

// Message is one line of hailerter's input feed (§6). Standard input is
// decoded with jsonline.DecodeLenient, so object fields this type does not
// name are ignored rather than rejected.
type Message struct {
	Time     int64    `json:"time"`
	Aspect   string   `json:"aspect"`
	Location Location `json:"location"`
	Interval *int     `json:"interval,omitempty"`
	State    *string  `json:"state,omitempty"`
	Severity *string  `json:"severity,omitempty"`
}

// computeStatus implements §4.6's severity mapping. ok reports whether a
// status could be computed at all — false means drop the message (no
// `state` present is metrics-only noise, not an error).
func computeStatus(m Message, warningExpected bool) (status string, ok bool) {
	if m.State == nil {
		return "", false
	}
	if m.Severity == nil {
		return StatusOK, true
	}
	switch *m.Severity {
	case "expected":
		return StatusOK, true
	case "warning":
		if warningExpected {
			return StatusOK, true
		}
		return StatusError, true
	case "error":
		return StatusError, true
	default:
		return StatusError, true
	}
}

// severityLabel normalizes the message's raw severity for echoing back in
// an ok/degraded notification's `severity` field (§6) — independent of how
// computeStatus used it to pick ok vs error.
func severityLabel(severity *string) string {
	if severity == nil {
		return "expected"
	}
	switch *severity {
	case "expected", "warning":
		return *severity
	default:
		return "error"
	}
}
