package daemonshepherd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/seismometer/toolbox/internal/controlsocket"
)

// statusOK and errorReply are the two reply envelopes of §4.4.
type statusOK struct {
	Status string `json:"status"`
}

type errorReply struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type listResult struct {
	Result []DaemonStatus `json:"result"`
}

type listCommandsResult struct {
	Result []string `json:"result"`
}

type daemonRequest struct {
	Command string `json:"command"`
	Daemon  string `json:"daemon"`
}

type adminCommandRequest struct {
	Command      string `json:"command"`
	Daemon       string `json:"daemon"`
	AdminCommand string `json:"admin_command"`
}

// formatControlError renders any handler/dispatch error into daemonshepherd's
// `{status:error, reason:...}` envelope (§4.4).
func formatControlError(err error) any {
	return errorReply{Status: "error", Reason: err.Error()}
}

// handlers builds the fixed verb → handler table served by the control
// socket (§4.4, Design Notes §9: a fixed map, not dynamic dispatch).
func (c *Controller) handlers() map[string]controlsocket.Handler {
	return map[string]controlsocket.Handler{
		"reload": func(json.RawMessage) (any, error) {
			if err := c.Reload(); err != nil {
				return nil, err
			}
			return statusOK{Status: "ok"}, nil
		},
		"list": func(json.RawMessage) (any, error) {
			return listResult{Result: c.List()}, nil
		},
		"start": func(raw json.RawMessage) (any, error) {
			return c.withDaemonName(raw, c.Start)
		},
		"stop": func(raw json.RawMessage) (any, error) {
			return c.withDaemonName(raw, c.Stop)
		},
		"restart": func(raw json.RawMessage) (any, error) {
			return c.withDaemonName(raw, c.Restart)
		},
		"cancel_restart": func(raw json.RawMessage) (any, error) {
			return c.withDaemonName(raw, c.CancelRestart)
		},
		"list-commands": func(raw json.RawMessage) (any, error) {
			var req daemonRequest
			if err := decodeRequest(raw, &req); err != nil {
				return nil, err
			}
			if req.Daemon == "" {
				return nil, errMissingDaemon
			}
			names, err := c.ListCommands(req.Daemon)
			if err != nil {
				return nil, err
			}
			return listCommandsResult{Result: names}, nil
		},
		"admin_command": func(raw json.RawMessage) (any, error) {
			var req adminCommandRequest
			if err := decodeRequest(raw, &req); err != nil {
				return nil, err
			}
			if req.Daemon == "" || req.AdminCommand == "" {
				return nil, errMissingDaemon
			}
			if err := c.AdminCommand(req.Daemon, req.AdminCommand); err != nil {
				return nil, err
			}
			return statusOK{Status: "ok"}, nil
		},
	}
}

var errMissingDaemon = errors.New("missing daemon field")

// withDaemonName decodes a {command, daemon} request and applies fn,
// shared by start/stop/restart/cancel_restart which all have this shape.
func (c *Controller) withDaemonName(raw json.RawMessage, fn func(string) error) (any, error) {
	var req daemonRequest
	if err := decodeRequest(raw, &req); err != nil {
		return nil, err
	}
	if req.Daemon == "" {
		return nil, errMissingDaemon
	}
	if err := fn(req.Daemon); err != nil {
		return nil, err
	}
	return statusOK{Status: "ok"}, nil
}

// decodeRequest strictly decodes the single JSON value in raw into dst,
// rejecting unknown fields (§4.4: "wrong argument shape" is a reportable
// error).
func decodeRequest(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("malformed request: %w", err)
	}
	return nil
}
