package daemonshepherd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/seismometer/toolbox/internal/controlsocket"
)

// callTimeout bounds client-mode control-socket round trips.
const callTimeout = 5 * time.Second

// dial sends req over the control socket at path and returns the raw
// reply, surfacing a control-protocol error reply as a Go error.
func dial(path string, req any) (json.RawMessage, error) {
	raw, err := controlsocket.Call(path, req, callTimeout)
	if err != nil {
		return nil, err
	}

	var maybeErr errorReply
	if err := json.Unmarshal(raw, &maybeErr); err == nil && maybeErr.Status == "error" {
		return nil, fmt.Errorf("%s", maybeErr.Reason)
	}
	return raw, nil
}

// ClientReload sends a `reload` request.
func ClientReload(socket string) error {
	_, err := dial(socket, map[string]string{"command": "reload"})
	return err
}

// ClientList sends a `list` request and decodes the daemon status table.
func ClientList(socket string) ([]DaemonStatus, error) {
	raw, err := dial(socket, map[string]string{"command": "list"})
	if err != nil {
		return nil, err
	}
	var resp listResult
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return resp.Result, nil
}

func clientDaemonCommand(socket, command, name string) error {
	_, err := dial(socket, map[string]string{"command": command, "daemon": name})
	return err
}

// ClientStart sends a `start` request for the named daemon.
func ClientStart(socket, name string) error { return clientDaemonCommand(socket, "start", name) }

// ClientStop sends a `stop` request for the named daemon.
func ClientStop(socket, name string) error { return clientDaemonCommand(socket, "stop", name) }

// ClientRestart sends a `restart` request for the named daemon.
func ClientRestart(socket, name string) error { return clientDaemonCommand(socket, "restart", name) }

// ClientCancelRestart sends a `cancel_restart` request for the named daemon.
func ClientCancelRestart(socket, name string) error {
	return clientDaemonCommand(socket, "cancel_restart", name)
}

// ClientListCommands sends a `list-commands` request for the named daemon.
func ClientListCommands(socket, name string) ([]string, error) {
	raw, err := dial(socket, map[string]string{"command": "list-commands", "daemon": name})
	if err != nil {
		return nil, err
	}
	var resp listCommandsResult
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return resp.Result, nil
}

// ClientAdminCommand sends an `admin_command` request.
func ClientAdminCommand(socket, name, adminCommand string) error {
	_, err := dial(socket, map[string]string{
		"command":       "admin_command",
		"daemon":        name,
		"admin_command": adminCommand,
	})
	return err
}
