// Command daemonshepherd supervises a set of declared daemon processes,
// restarting them on unexpected exit with exponential backoff, and exposes
// a Unix-domain control socket for reload/start/stop/restart/admin-command
// operations (§4).
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seismometer/toolbox/internal/daemonshepherd"
	"github.com/seismometer/toolbox/internal/logging"
	"github.com/seismometer/toolbox/internal/panicsafe"
)

const defaultSocket = "/var/run/daemonshepherd.sock"

// reexecEnv marks a backgrounded child so it knows not to fork again.
const reexecEnv = "DAEMONSHEPHERD_BACKGROUNDED=1"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		daemonsFile string
		socket      string
		pidFile     string
		background  bool
		user        string
		group       string
		loggingFile string
		stderr      bool
		syslog      bool
		silent      bool
	)

	root := &cobra.Command{
		Use:   "daemonshepherd",
		Short: "Supervise a set of declared daemon processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if daemonsFile == "" {
				return fmt.Errorf("--daemons is required")
			}

			if background && os.Getenv(reexecEnv) == "" {
				return daemonize()
			}

			mode := logging.ModeConsole
			switch {
			case syslog:
				mode = logging.ModeSyslog
			case silent:
				mode = logging.ModeSilent
			case stderr:
				mode = logging.ModeConsole
			}
			log := buildLogger(mode, loggingFile)
			defer log.Sync()

			if group != "" {
				if err := applyGroup(group); err != nil {
					log.Error("group switch failed", zap.Error(err))
					os.Exit(1)
				}
			}
			if user != "" {
				if err := applyUser(user); err != nil {
					log.Error("user switch failed", zap.Error(err))
					os.Exit(1)
				}
			}

			if pidFile != "" {
				if err := writePidFile(pidFile); err != nil {
					log.Error("pid file write failed", zap.Error(err))
					os.Exit(1)
				}
				defer os.Remove(pidFile)
			}

			ctrl := daemonshepherd.New(log, daemonsFile, socket)

			var runErr error
			panicsafe.Guard(log, "main", func() {
				runErr = ctrl.Run(context.Background())
			})
			if runErr != nil {
				log.Error("supervisor exited with error", zap.Error(runErr))
				os.Exit(1)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&socket, "socket", defaultSocket, "control socket path")

	flags := root.Flags()
	flags.StringVar(&daemonsFile, "daemons", "", "YAML daemon declaration file (required)")
	flags.StringVar(&pidFile, "pid-file", "", "write the supervisor's pid to this path")
	flags.BoolVar(&background, "background", false, "daemonize into the background")
	flags.StringVar(&user, "user", "", "drop privileges to this user before binding the control socket")
	flags.StringVar(&group, "group", "", "drop privileges to this group before binding the control socket")
	flags.StringVar(&loggingFile, "logging", "", "write logs to this file instead of standard error")
	flags.BoolVar(&stderr, "stderr", false, "log human-readable lines to standard error (default)")
	flags.BoolVar(&syslog, "syslog", false, "log structured JSON lines, suitable for a syslog forwarder")
	flags.BoolVar(&silent, "silent", false, "log only at error level and above")

	root.AddCommand(
		newReloadCmd(&socket),
		newListCmd(&socket),
		newStartCmd(&socket),
		newStopCmd(&socket),
		newRestartCmd(&socket),
		newCancelRestartCmd(&socket),
		newListCommandsCmd(&socket),
		newCommandCmd(&socket),
	)

	return root
}

func buildLogger(mode logging.Mode, file string) *zap.Logger {
	if file == "" {
		return logging.New(logging.Options{Mode: mode})
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "daemonshepherd: open log file: %v\n", err)
		os.Exit(1)
	}
	return logging.New(logging.Options{Mode: mode, Output: f})
}

// daemonize re-executes the current binary with the same argv, detached
// into its own session, then exits. Grounded on the teacher's own child
// process isolation (processmgr.process: Setpgid/Pdeathsig) applied
// reflexively to the supervisor itself — §6's --background is the only
// place daemonshepherd needs to detach from its controlling terminal.
func daemonize() error {
	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), reexecEnv)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devnull.Close()
	cmd.Stdout = devnull
	cmd.Stderr = devnull

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("background start: %w", err)
	}
	return nil
}

func writePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}
