package hailerter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/seismometer/toolbox/internal/controlsocket"
)

const callTimeout = 5 * time.Second

func dial(socket string, req any) (json.RawMessage, error) {
	raw, err := controlsocket.Call(socket, req, callTimeout)
	if err != nil {
		return nil, err
	}
	var maybeErr errorResult
	if err := json.Unmarshal(raw, &maybeErr); err == nil && maybeErr.Error != "" {
		return nil, fmt.Errorf("%s", maybeErr.Error)
	}
	return raw, nil
}

// ClientList sends a `list` request and decodes the flow snapshots.
func ClientList(socket string) ([]FlowSnapshot, error) {
	raw, err := dial(socket, map[string]string{"command": "list"})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result []FlowSnapshot `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return resp.Result, nil
}

// ClientListMuted sends a `list_muted` request.
func ClientListMuted(socket string) ([]MuteSnapshot, error) {
	raw, err := dial(socket, map[string]string{"command": "list_muted"})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result []MuteSnapshot `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return resp.Result, nil
}

func clientFlowCommand(socket, command, aspect string, loc Location, duration int) error {
	req := map[string]any{"command": command, "aspect": aspect, "location": loc}
	if duration > 0 {
		req["duration"] = duration
	}
	_, err := dial(socket, req)
	return err
}

// ClientForget sends a `forget` request.
func ClientForget(socket, aspect string, loc Location) error {
	return clientFlowCommand(socket, "forget", aspect, loc, 0)
}

// ClientMute sends a `mute` request.
func ClientMute(socket, aspect string, loc Location, duration time.Duration) error {
	return clientFlowCommand(socket, "mute", aspect, loc, int(duration/time.Second))
}

// ClientUnmute sends an `unmute` request.
func ClientUnmute(socket, aspect string, loc Location) error {
	return clientFlowCommand(socket, "unmute", aspect, loc, 0)
}

// ClientResetFlapping sends a `reset_flapping` request.
func ClientResetFlapping(socket, aspect string, loc Location) error {
	return clientFlowCommand(socket, "reset_flapping", aspect, loc, 0)
}

// ClientResetReminder sends a `reset_reminder` request.
func ClientResetReminder(socket, aspect string, loc Location) error {
	return clientFlowCommand(socket, "reset_reminder", aspect, loc, 0)
}
