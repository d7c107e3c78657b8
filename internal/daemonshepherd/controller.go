package daemonshepherd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/seismometer/toolbox/internal/controlsocket"
	"github.com/seismometer/toolbox/internal/panicsafe"
)

// tickInterval is the controller's default poll tick (§4.3).
const tickInterval = 1 * time.Second

// daemon bundles everything the controller actor tracks about one
// declared daemon: its spec, its process handle, and its restart state
// machine.
type daemon struct {
	spec    DaemonSpec
	child   *Child
	runtime *Runtime
}

// Controller is the actor goroutine binding the child handles, the restart
// queue, and the control socket together (§4.3). Every field below this
// comment is touched only from the goroutine running run() — everything
// else only ever sends a closure on cmdCh, the Go rendering of the
// source's self-pipe (§5).
type Controller struct {
	log        *zap.Logger
	specPath   string
	socketPath string

	cmdCh  chan func()
	reload singleflight.Group

	daemons map[string]*daemon
	queue   *RestartQueue
}

// New creates a controller for the given spec file and control socket
// path. Call Run to start it.
func New(log *zap.Logger, specPath, socketPath string) *Controller {
	return &Controller{
		log:        log.Named("controller"),
		specPath:   specPath,
		socketPath: socketPath,
		cmdCh:      make(chan func(), 64),
		daemons:    make(map[string]*daemon),
		queue:      NewRestartQueue(),
	}
}

// submit hands fn to the actor goroutine. Safe to call from any goroutine.
func (c *Controller) submit(fn func()) { c.cmdCh <- fn }

// call submits fn and blocks until it has run, returning fn's result via
// the closure's own capture — used by control-socket handlers, which need
// a synchronous reply.
func (c *Controller) call(fn func()) {
	done := make(chan struct{})
	c.submit(func() {
		fn()
		close(done)
	})
	<-done
}

// Run loads the initial spec, starts eligible daemons in priority order,
// and runs the actor loop plus its feeder goroutines (control socket,
// signal watcher, actor loop) until ctx is cancelled. Startup of the feeder
// goroutines is coordinated with errgroup so a control-socket bind failure
// aborts the whole group with one combined error (§5).
func (c *Controller) Run(ctx context.Context) error {
	specs, err := LoadSpecFile(c.specPath)
	if err != nil {
		return fmt.Errorf("initial spec load: %w", err)
	}
	c.applySpecs(specs, true)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	srv := controlsocket.New(c.log, c.socketPath, c.handlers(), formatControlError)
	g.Go(func() error { return srv.Serve(gctx) })

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g.Go(func() error {
		c.signalWatcher(gctx, sigCh, cancel)
		return nil
	})

	g.Go(func() error {
		panicsafe.Guard(c.log, "actor", func() { c.actorLoop(gctx) })
		return nil
	})

	return g.Wait()
}

// signalWatcher only ever forwards signals into the actor's command
// channel; it never touches controller state directly (§5).
func (c *Controller) signalWatcher(ctx context.Context, sigCh <-chan os.Signal, shutdown context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				go func() {
					if err := c.Reload(); err != nil {
						c.log.Error("reload failed", zap.Error(err))
					}
				}()
			case syscall.SIGINT, syscall.SIGTERM:
				c.log.Info("received shutdown signal", zap.String("signal", sig.String()))
				shutdown()
				return
			}
		}
	}
}

// actorLoop is the single goroutine that owns daemons and queue.
func (c *Controller) actorLoop(ctx context.Context) {
	timer := time.NewTimer(tickInterval)
	defer timer.Stop()

	for {
		c.armWakeTimer(timer)
		select {
		case <-ctx.Done():
			for _, d := range c.daemons {
				c.stopDaemon(d)
			}
			return
		case fn := <-c.cmdCh:
			fn()
		case <-timer.C:
			c.releaseDue(time.Now())
		}
	}
}

// armWakeTimer resets timer to fire at the restart queue's next due entry,
// capped at tickInterval (§4.3: "deadline = min(restart queue head, poll
// tick, pending reload)"). Called at the top of every actorLoop iteration,
// so it always sees the queue as left by whatever just ran — a command
// closure, a reload, or the previous release — without threading a reset
// through each mutation site individually.
func (c *Controller) armWakeTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	wake := tickInterval
	if d, ok := c.queue.NextWake(time.Now()); ok && d < wake {
		wake = d
	}
	timer.Reset(wake)
}

// releaseDue starts every daemon whose restart-queue entry is due,
// already delivered in start-priority/name order by the heap (§4.3).
func (c *Controller) releaseDue(now time.Time) {
	for _, r := range c.queue.DueBy(now) {
		d, ok := c.daemons[r.Name]
		if !ok {
			continue
		}
		c.launch(d)
	}
}

// launch transitions a daemon from stopped/waiting into running.
func (c *Controller) launch(d *daemon) {
	d.runtime.State = StateRunning
	d.runtime.StartedAt = time.Now()
	name := d.spec.Name
	err := d.child.Start(d.spec, func(info ExitInfo) {
		c.submit(func() { c.onExit(name, info) })
	})
	if err != nil {
		c.log.Error("failed to start daemon", zap.String("daemon", name), zap.Error(err))
		d.runtime.State = StateDying
		c.scheduleRestart(d)
		return
	}
}

// onExit runs on the actor goroutine when a child has been reaped.
func (c *Controller) onExit(name string, info ExitInfo) {
	d, ok := c.daemons[name]
	if !ok {
		return
	}
	// An exit that follows stop, reload or shutdown (the runtime is no
	// longer running) or that belongs to a replaced child schedules nothing.
	if d.runtime.State != StateRunning || d.child.Running() {
		return
	}

	dwell := time.Since(d.runtime.StartedAt)
	d.runtime.OnDeath(d.spec, dwell)
	if !info.Unexpected {
		// requested restart of a running daemon: re-enqueue at restart[0]
		d.runtime.BackoffIndex = 0
	}

	if after, ok := d.spec.Commands[CommandAfterCrash]; ok && info.Unexpected {
		extra := fmt.Sprintf("DAEMON_EXIT_CODE=%d", info.ExitCode)
		if info.Signal != "" {
			extra = "DAEMON_SIGNAL=" + info.Signal
		}
		go func() {
			if err := d.child.RunCommand(d.spec, after, extra); err != nil {
				c.log.Warn("after-crash command failed", zap.String("daemon", name), zap.Error(err))
			}
		}()
	}

	c.scheduleRestart(d)
}

// scheduleRestart arms the restart-queue entry for a dying daemon.
func (c *Controller) scheduleRestart(d *daemon) {
	delay := d.runtime.ScheduleBackoff(d.spec)
	c.queue.Schedule(d.runtime, time.Now().Add(delay), d.spec.StartPriority)
}

// applySpecs installs a freshly loaded spec set. On initial load (initial
// == true) every daemon is scheduled to start immediately, released in
// ascending start_priority/name order by the queue itself. On reload this
// is instead driven by diffSpecs.
func (c *Controller) applySpecs(specs []DaemonSpec, initial bool) {
	if !initial {
		c.diffSpecs(specs)
		return
	}

	for _, spec := range specs {
		spec.ApplyDefaults()
		d := &daemon{
			spec:    spec,
			child:   NewChild(spec.Name, c.log),
			runtime: NewRuntime(spec.Name),
		}
		c.daemons[spec.Name] = d
		c.queue.Schedule(d.runtime, time.Now(), spec.StartPriority)
	}
}

// diffSpecs implements §4.3's reload rule: removed daemons stop and drop,
// added daemons start subject to priority, changed daemons are restarted
// with the new spec, and unchanged daemons (even mid-backoff) are left
// completely alone.
func (c *Controller) diffSpecs(specs []DaemonSpec) {
	seen := make(map[string]bool, len(specs))
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	for _, spec := range specs {
		spec.ApplyDefaults()
		seen[spec.Name] = true

		existing, ok := c.daemons[spec.Name]
		switch {
		case !ok:
			d := &daemon{
				spec:    spec,
				child:   NewChild(spec.Name, c.log),
				runtime: NewRuntime(spec.Name),
			}
			c.daemons[spec.Name] = d
			c.queue.Schedule(d.runtime, time.Now(), spec.StartPriority)
		case !existing.spec.Equal(spec):
			c.stopDaemon(existing)
			existing.spec = spec
			existing.child = NewChild(spec.Name, c.log)
			existing.runtime = NewRuntime(spec.Name)
			c.queue.Schedule(existing.runtime, time.Now(), spec.StartPriority)
		default:
			// unchanged: leave running/backoff state exactly as-is
		}
	}

	for name, d := range c.daemons {
		if !seen[name] {
			c.stopDaemon(d)
			delete(c.daemons, name)
		}
	}
}

// stopDaemon halts a daemon regardless of its current state: running
// children are signalled to stop, waiting entries are cancelled from the
// queue.
func (c *Controller) stopDaemon(d *daemon) {
	c.queue.Cancel(d.runtime)
	if d.runtime.State == StateRunning && d.child.Running() {
		d.child.Stop(d.spec)
	}
	d.runtime.ResetFull()
}

// Reload re-reads the spec file and applies the diff. Concurrent callers
// (SIGHUP racing a control-socket `reload`) are collapsed via singleflight
// so the diff-and-apply sequence runs at most once at a time and every
// caller observes the same outcome (§4.3).
func (c *Controller) Reload() error {
	_, err, _ := c.reload.Do("reload", func() (any, error) {
		specs, err := LoadSpecFile(c.specPath)
		if err != nil {
			return nil, fmt.Errorf("reload: %w", err)
		}
		c.call(func() { c.applySpecs(specs, false) })
		return nil, nil
	})
	return err
}

// DaemonStatus is the snapshot returned by List (§4.4).
type DaemonStatus struct {
	Name      string `json:"daemon"`
	Pid       int    `json:"pid"`
	Running   bool   `json:"running"`
	RestartAt int64  `json:"restart_at,omitempty"`
}

// List returns a status snapshot for every declared daemon, sorted by
// name for deterministic output.
func (c *Controller) List() []DaemonStatus {
	var out []DaemonStatus
	c.call(func() {
		names := make([]string, 0, len(c.daemons))
		for name := range c.daemons {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			d := c.daemons[name]
			st := DaemonStatus{
				Name:    name,
				Pid:     d.child.Pid(),
				Running: d.runtime.State == StateRunning,
			}
			if d.runtime.State == StateWaiting {
				st.RestartAt = d.runtime.NextRestartAt.Unix()
			}
			out = append(out, st)
		}
	})
	return out
}

// ErrUnknownDaemon is returned by the per-daemon operations below.
var ErrUnknownDaemon = fmt.Errorf("unknown daemon")

// Start force-starts a stopped daemon immediately, ahead of any scheduled
// backoff.
func (c *Controller) Start(name string) error {
	var err error
	c.call(func() {
		d, ok := c.daemons[name]
		if !ok {
			err = ErrUnknownDaemon
			return
		}
		if d.runtime.State == StateRunning {
			return
		}
		c.queue.Cancel(d.runtime)
		d.runtime.ResetFull()
		c.queue.Schedule(d.runtime, time.Now(), d.spec.StartPriority)
	})
	return err
}

// Stop halts a daemon: a running child is signalled to stop; a waiting
// entry is cancelled and reset to stopped (§4.2).
func (c *Controller) Stop(name string) error {
	var err error
	c.call(func() {
		d, ok := c.daemons[name]
		if !ok {
			err = ErrUnknownDaemon
			return
		}
		c.stopDaemon(d)
	})
	return err
}

// Restart force-stops a running daemon and re-enqueues it at restart[0]=0,
// or, if waiting, clears the timer and launches immediately while
// preserving backoff position (§4.2: "`restart` while waiting").
func (c *Controller) Restart(name string) error {
	var err error
	c.call(func() {
		d, ok := c.daemons[name]
		if !ok {
			err = ErrUnknownDaemon
			return
		}
		switch d.runtime.State {
		case StateRunning:
			d.child.Stop(d.spec)
			// the eventual onExit will observe Unexpected=false and
			// re-enqueue it at restart[0]; nothing further to do.
		case StateWaiting:
			c.queue.Cancel(d.runtime)
			c.launch(d)
		default:
			c.launch(d)
		}
	})
	return err
}

// CancelRestart cancels a pending restart timer, resetting backoff to 0
// and leaving the daemon stopped (§4.2).
func (c *Controller) CancelRestart(name string) error {
	var err error
	c.call(func() {
		d, ok := c.daemons[name]
		if !ok {
			err = ErrUnknownDaemon
			return
		}
		if d.runtime.State != StateWaiting {
			return
		}
		c.queue.Cancel(d.runtime)
		d.runtime.ResetFull()
	})
	return err
}

// ListCommands returns the declared administrative command names for a
// daemon, sorted.
func (c *Controller) ListCommands(name string) ([]string, error) {
	var out []string
	var err error
	c.call(func() {
		d, ok := c.daemons[name]
		if !ok {
			err = ErrUnknownDaemon
			return
		}
		for cmdName := range d.spec.Commands {
			out = append(out, cmdName)
		}
		sort.Strings(out)
	})
	return out, err
}

// AdminCommand runs a declared administrative command for a daemon,
// blocking until it exits (§4.1).
func (c *Controller) AdminCommand(daemonName, cmdName string) error {
	var d *daemon
	var cmdSpec CommandSpec
	var err error
	c.call(func() {
		dd, ok := c.daemons[daemonName]
		if !ok {
			err = ErrUnknownDaemon
			return
		}
		cs, ok := dd.spec.Commands[cmdName]
		if !ok {
			err = fmt.Errorf("unknown command %q for daemon %q", cmdName, daemonName)
			return
		}
		d = dd
		cmdSpec = cs
	})
	if err != nil {
		return err
	}
	return d.child.RunCommand(d.spec, cmdSpec)
}
