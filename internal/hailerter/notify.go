package hailerter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"syscall"
)

// notification is the one-JSON-object-per-line shape of §6.
type notification struct {
	Time     int64           `json:"time"`
	Aspect   string          `json:"aspect"`
	Location Location        `json:"location"`
	Info     json.RawMessage `json:"info"`
	Previous json.RawMessage `json:"previous"`
}

type infoOK struct {
	Status   string `json:"status"`
	State    string `json:"state"`
	Severity string `json:"severity"`
}

type infoDegraded struct {
	Status   string `json:"status"`
	State    string `json:"state"`
	Severity string `json:"severity"`
}

type infoFlapping struct {
	Status  string `json:"status"`
	Window  int    `json:"window"`
	Changes int    `json:"changes"`
}

type infoMissing struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

func okInfo(flow *Flow) []byte {
	b, _ := json.Marshal(infoOK{Status: StatusOK, State: flow.LastState, Severity: flow.LastSeverity})
	return b
}

func degradedInfoFromFlow(flow *Flow) []byte {
	b, _ := json.Marshal(infoDegraded{Status: "degraded", State: flow.LastState, Severity: flow.LastSeverity})
	return b
}

func flappingInfo(flow *Flow) []byte {
	b, _ := json.Marshal(infoFlapping{Status: StatusFlapping, Window: flow.flapWindow, Changes: flow.FlapChanges()})
	return b
}

func missingInfo(lastSeen int64) []byte {
	b, _ := json.Marshal(infoMissing{Status: StatusMissing, LastSeen: lastSeen})
	return b
}

// writeNotification marshals and writes one notification line. A broken
// output pipe (EPIPE) is treated as an orderly-shutdown signal rather than
// an error worth logging loudly (§5, §7): the caller still sees it (so the
// main loop can stop reading stdin) but it is not a malfunction.
func writeNotification(w io.Writer, n notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	if err != nil && errors.Is(err, syscall.EPIPE) {
		return ErrOutputClosed
	}
	return err
}

// ErrOutputClosed signals that standard output was closed by the reader
// on the other end — an orderly shutdown trigger, not a fault (§7).
var ErrOutputClosed = errors.New("hailerter: output pipe closed")
