package hailerter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seismometer/toolbox/internal/controlsocket"
)

// errorResult is hailerter's control-protocol error envelope (§4.7),
// distinct in shape from daemonshepherd's `{status,reason}`.
type errorResult struct {
	Error string `json:"error"`
}

type okResult struct {
	Result any `json:"result"`
}

var errBadRequest = errors.New("bad request")

// formatControlError renders any handler/dispatch error into hailerter's
// `{error:"bad request"}` envelope — §4.7 specifies no richer detail than
// that single fixed string.
func formatControlError(error) any {
	return errorResult{Error: errBadRequest.Error()}
}

type flowRequest struct {
	Command  string   `json:"command"`
	Aspect   string   `json:"aspect"`
	Location Location `json:"location,omitempty"`
	Duration int      `json:"duration,omitempty"`
}

// handlers builds the fixed verb → handler table for hailerter's control
// socket (§4.7, Design Notes §9).
func (t *Tracker) handlers() map[string]controlsocket.Handler {
	return map[string]controlsocket.Handler{
		"list": func(json.RawMessage) (any, error) {
			return okResult{Result: t.List()}, nil
		},
		"list_muted": func(json.RawMessage) (any, error) {
			return okResult{Result: t.ListMuted()}, nil
		},
		"forget": func(raw json.RawMessage) (any, error) {
			req, err := decodeFlowRequest(raw)
			if err != nil {
				return nil, err
			}
			if err := t.Forget(req.Aspect, req.Location); err != nil {
				return nil, err
			}
			return okResult{Result: "ok"}, nil
		},
		"mute": func(raw json.RawMessage) (any, error) {
			req, err := decodeFlowRequest(raw)
			if err != nil {
				return nil, err
			}
			if req.Duration <= 0 {
				return nil, errBadRequest
			}
			if err := t.Mute(req.Aspect, req.Location, time.Duration(req.Duration)*time.Second); err != nil {
				return nil, err
			}
			return okResult{Result: "ok"}, nil
		},
		"unmute": func(raw json.RawMessage) (any, error) {
			req, err := decodeFlowRequest(raw)
			if err != nil {
				return nil, err
			}
			if err := t.Unmute(req.Aspect, req.Location); err != nil {
				return nil, err
			}
			return okResult{Result: "ok"}, nil
		},
		"reset_flapping": func(raw json.RawMessage) (any, error) {
			req, err := decodeFlowRequest(raw)
			if err != nil {
				return nil, err
			}
			if err := t.ResetFlapping(req.Aspect, req.Location); err != nil {
				return nil, err
			}
			return okResult{Result: "ok"}, nil
		},
		"reset_reminder": func(raw json.RawMessage) (any, error) {
			req, err := decodeFlowRequest(raw)
			if err != nil {
				return nil, err
			}
			if err := t.ResetReminder(req.Aspect, req.Location); err != nil {
				return nil, err
			}
			return okResult{Result: "ok"}, nil
		},
	}
}

func decodeFlowRequest(raw json.RawMessage) (flowRequest, error) {
	var req flowRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return flowRequest{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if req.Aspect == "" {
		return flowRequest{}, errBadRequest
	}
	return req, nil
}
