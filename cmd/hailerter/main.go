// Command hailerter tracks per-flow status from a stream of JSON messages
// on standard input, detects flapping, and emits notification JSON lines on
// standard output (§3.2, §4.5-§4.7).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seismometer/toolbox/internal/hailerter"
	"github.com/seismometer/toolbox/internal/logging"
	"github.com/seismometer/toolbox/internal/panicsafe"
)

const defaultSocket = "/var/run/hailerter.sock"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		socket           string
		skipInitialError bool
		remindInterval   string
		warningExpected  bool
		defaultInterval  string
		missing          int
		flapWindow       int
		flapThreshold    string
		redisAddr        string
	)

	root := &cobra.Command{
		Use:   "hailerter",
		Short: "Track flow status from a JSON message stream and emit notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := hailerter.Config{
				SkipInitialError: skipInitialError,
				WarningExpected:  warningExpected,
				Missing:          missing,
				FlapWindow:       flapWindow,
			}
			if remindInterval != "" {
				d, err := hailerter.ParseDuration(remindInterval)
				if err != nil {
					return fmt.Errorf("--remind-interval: %w", err)
				}
				cfg.RemindInterval = d
			}
			if defaultInterval != "" {
				d, err := hailerter.ParseDuration(defaultInterval)
				if err != nil {
					return fmt.Errorf("--default-interval: %w", err)
				}
				cfg.DefaultInterval = d
			}
			if flapThreshold != "" {
				f, err := hailerter.ParseFraction(flapThreshold)
				if err != nil {
					return fmt.Errorf("--flapping-threshold: %w", err)
				}
				cfg.FlapThreshold = f
			}

			log := logging.New(logging.Options{Mode: logging.ModeConsole})
			defer log.Sync()

			var mirror hailerter.Mirror
			if redisAddr != "" {
				client := hailerter.NewRedisClient(redisAddr, log)
				mirror = hailerter.NewRedisMirror(client, log)
			}

			tracker := hailerter.New(log, cfg, os.Stdout, mirror)
			loop := hailerter.NewMainLoop(log, tracker, os.Stdin, socket)

			var runErr error
			panicsafe.Guard(log, "main", func() {
				runErr = loop.Run(context.Background())
			})
			if runErr != nil {
				log.Error("hailerter exited with error", zap.Error(runErr))
				os.Exit(1)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&socket, "socket", defaultSocket, "control socket path")

	flags := root.Flags()
	flags.BoolVar(&skipInitialError, "skip-initial-error", false, "suppress only the first degraded notification per flow")
	flags.StringVar(&remindInterval, "remind-interval", "", "repeat a degraded notification after this long (e.g. 30s, 5m, 1h)")
	flags.BoolVar(&warningExpected, "warning-expected", false, "treat severity=warning as ok instead of error")
	flags.StringVar(&defaultInterval, "default-interval", "", "interval to assume when a message omits one")
	flags.IntVar(&missing, "missing", 0, "declare a flow missing after this many missed intervals (0 disables)")
	flags.IntVar(&flapWindow, "flapping-window", 0, "number of recent messages the flap detector tracks, at most 64 (0 disables flap detection)")
	flags.StringVar(&flapThreshold, "flapping-threshold", "", "fraction of transitions in the window that mark a flow as flapping")
	flags.StringVar(&redisAddr, "redis-addr", "", "Redis address for the optional flow-snapshot mirror (empty disables it)")

	root.AddCommand(
		newListCmd(&socket),
		newForgetCmd(&socket),
		newListMutedCmd(&socket),
		newMuteCmd(&socket),
		newUnmuteCmd(&socket),
		newResetFlappingCmd(&socket),
		newResetReminderCmd(&socket),
	)

	return root
}
