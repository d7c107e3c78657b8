package hailerter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seismometer/toolbox/internal/controlsocket"
	"github.com/seismometer/toolbox/internal/jsonline"
	"github.com/seismometer/toolbox/internal/panicsafe"
)

// MainLoop wires the tracker's actor goroutine to its three feeders — the
// standard input reader, the control socket, and the signal watcher — the
// same errgroup-coordinated-startup shape daemonshepherd's Controller.Run
// uses (§5): a control-socket bind failure aborts the whole group with one
// combined error.
type MainLoop struct {
	log    *zap.Logger
	t      *Tracker
	stdin  io.Reader
	socket string
}

// NewMainLoop creates the main loop for a tracker already configured with
// its output writer and optional mirror.
func NewMainLoop(log *zap.Logger, t *Tracker, stdin io.Reader, socketPath string) *MainLoop {
	return &MainLoop{log: log.Named("mainloop"), t: t, stdin: stdin, socket: socketPath}
}

// Run blocks until stdin is exhausted/closed, a fatal signal arrives, or
// ctx is cancelled. SIGHUP, SIGINT, and SIGTERM all terminate hailerter
// cleanly (§5 — there is no reload concept here, unlike daemonshepherd).
func (m *MainLoop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	srv := controlsocket.New(m.log, m.socket, m.t.handlers(), formatControlError)
	g.Go(func() error { return srv.Serve(gctx) })

	g.Go(func() error {
		panicsafe.Guard(m.log, "tracker", func() { m.t.Run(gctx) })
		return nil
	})

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case sig := <-sigCh:
			m.log.Info("received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		}
		return nil
	})

	g.Go(func() error {
		err := m.readStdin(gctx)
		cancel()
		return err
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-m.t.OutputClosed():
			cancel()
		}
		return nil
	})

	return g.Wait()
}

// readStdin implements the input-line error handling of §7: a malformed
// line is logged to standard error and standard input is treated as closed
// from that point on — the caller then cancels the run, which stops the
// other goroutines and makes Run return.
// A well-formed line with no recognized `state` field is silently dropped
// (metrics-only noise) and reading continues. Decoding is lenient about
// unrecognized object fields (§1/§6): this toolbox does not own the full
// monitoring message schema, only the handful of fields it reads, so a line
// carrying a broader producer's extra fields is not malformed.
func (m *MainLoop) readStdin(ctx context.Context) error {
	sc := jsonline.NewScanner(m.stdin)
	for {
		line, ok := sc.Next()
		if !ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var msg Message
		if err := jsonline.DecodeLenient(bytes.NewReader(line), &msg); err != nil {
			m.log.Warn("malformed input line, closing stdin", zap.Error(err))
			return nil
		}
		m.t.ProcessMessage(msg)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("stdin: %w", err)
	}
	return nil
}
