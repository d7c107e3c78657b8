// Package controlsocket implements the Unix-domain, one-shot-JSON-per-
// connection administrative protocol shared, in shape, by daemonshepherd
// (§4.4) and hailerter (§4.7): each program supplies its own verb → handler
// table and error-reply shape; this package owns the listener, per-
// connection correlation id, and the accept/read/dispatch/reply/close cycle.
//
// Grounded on the teacher's internal/http/middleware/request_id.go, which
// stamps every HTTP request with a uuid.New() correlation id carried in a
// response header and the request context. A raw Unix socket has no header
// channel, so here the id exists purely to tie together the handful of log
// lines a single control-socket connection produces.
package controlsocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler processes one decoded request body for a given command verb and
// returns the value to marshal back as the reply, or an error. The raw
// request bytes are handed to the handler (not a pre-parsed envelope) so it
// can strictly decode its own verb-specific shape with its own
// DisallowUnknownFields decoder and reject unknown fields itself (§4.4/§4.7
// "wrong argument shape").
type Handler func(raw json.RawMessage) (any, error)

// ErrorFormatter renders an error returned by a Handler (or a dispatch-level
// failure such as "unknown command") into the JSON value the server sends
// back. daemonshepherd and hailerter use different error envelopes
// (§4.4 vs §4.7), hence this is supplied per server rather than fixed here.
type ErrorFormatter func(err error) any

// ErrUnknownCommand is passed to the ErrorFormatter when the request's
// "command" field does not match any registered handler.
var ErrUnknownCommand = errors.New("unknown command")

// ErrMalformedRequest is passed to the ErrorFormatter when the request is
// not a JSON object with a string "command" field.
var ErrMalformedRequest = errors.New("malformed request")

// envelope is only used to peek the verb; each Handler re-decodes the full
// body strictly into its own typed request.
type envelope struct {
	Command string `json:"command"`
}

// Server is a fixed-table dispatcher (Design Notes §9: replace dynamic
// name→method lookup with a fixed map, reject unknown keys by default)
// listening on a Unix-domain socket.
type Server struct {
	log         *zap.Logger
	path        string
	handlers    map[string]Handler
	formatError ErrorFormatter

	mu sync.Mutex
	ln net.Listener
}

// New creates a control socket server. The socket file is created (and any
// stale leftover at path removed) when Serve is called, not here.
func New(log *zap.Logger, path string, handlers map[string]Handler, formatError ErrorFormatter) *Server {
	return &Server{
		log:         log.Named("control"),
		path:        path,
		handlers:    handlers,
		formatError: formatError,
	}
}

// Serve binds the Unix socket and accepts connections until ctx is
// cancelled or the listener is closed via Close. It blocks; callers run it
// in its own goroutine and feed it into an errgroup so a bind failure
// aborts the rest of the program's startup group (§5).
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.path) // stale socket from an unclean previous shutdown

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("control socket listen %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("control socket accept: %w", err)
			}
		}
		go s.handleConn(conn)
	}
}

// Close unlinks the socket file and stops accepting new connections (§5:
// "the control socket file is unlinked on orderly close").
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	if ln == nil {
		return nil
	}
	err := ln.Close()
	_ = os.Remove(s.path)
	return err
}

// handleConn implements the one-request-one-reply-then-close cycle.
func (s *Server) handleConn(conn net.Conn) {
	id := uuid.New().String()
	log := s.log.With(zap.String("conn_id", id))
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	dec := json.NewDecoder(conn)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		log.Warn("malformed request", zap.Error(err))
		s.reply(conn, log, s.formatError(ErrMalformedRequest))
		return
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Command == "" {
		log.Warn("malformed request envelope", zap.Error(err))
		s.reply(conn, log, s.formatError(ErrMalformedRequest))
		return
	}

	log = log.With(zap.String("command", env.Command))

	h, ok := s.handlers[env.Command]
	if !ok {
		log.Warn("unknown command")
		s.reply(conn, log, s.formatError(ErrUnknownCommand))
		return
	}

	result, err := h(raw)
	if err != nil {
		log.Info("command failed", zap.Error(err))
		s.reply(conn, log, s.formatError(err))
		return
	}

	log.Debug("command handled")
	s.reply(conn, log, result)
}

func (s *Server) reply(conn net.Conn, log *zap.Logger, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error("failed to marshal reply", zap.Error(err))
		return
	}
	b = append(b, '\n')
	if _, err := conn.Write(b); err != nil {
		log.Warn("failed to write reply", zap.Error(err))
	}
}
