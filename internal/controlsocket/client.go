package controlsocket

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Call dials the Unix socket at path, writes req as a single JSON line,
// reads back a single JSON reply, and closes the connection — the client
// side of the one-shot request/response cycle used by both programs'
// client-mode CLI subcommands (§6).
func Call(path string, req any, timeout time.Duration) (json.RawMessage, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(timeout))

	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	b = append(b, '\n')
	if _, err := conn.Write(b); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	var reply json.RawMessage
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}
