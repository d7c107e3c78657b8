package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seismometer/toolbox/internal/hailerter"
)

func printResult(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func parseLocation(raw string) (hailerter.Location, error) {
	var loc hailerter.Location
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		return nil, fmt.Errorf("location %q: %w", raw, err)
	}
	return loc, nil
}

func newListCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every tracked flow's current status",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := hailerter.ClientList(*socket)
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}
}

func newForgetCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <aspect> <location-json>",
		Short: "Remove a flow record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[1])
			if err != nil {
				return err
			}
			return hailerter.ClientForget(*socket, args[0], loc)
		},
	}
}

func newListMutedCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list-muted",
		Short: "List every currently muted flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := hailerter.ClientListMuted(*socket)
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}
}

func newMuteCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mute <aspect> <location-json> <duration>",
		Short: "Suppress notifications for a flow for the given duration",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[1])
			if err != nil {
				return err
			}
			d, err := hailerter.ParseDuration(args[2])
			if err != nil {
				return err
			}
			return hailerter.ClientMute(*socket, args[0], loc, d)
		},
	}
}

func newUnmuteCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "unmute <aspect> <location-json>",
		Short: "Remove a mute immediately",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[1])
			if err != nil {
				return err
			}
			return hailerter.ClientUnmute(*socket, args[0], loc)
		},
	}
}

func newResetFlappingCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-flapping <aspect> <location-json>",
		Short: "Zero a flow's flap detector",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[1])
			if err != nil {
				return err
			}
			return hailerter.ClientResetFlapping(*socket, args[0], loc)
		},
	}
}

func newResetReminderCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-reminder <aspect> <location-json>",
		Short: "Force the next degraded notification regardless of remind-interval",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[1])
			if err != nil {
				return err
			}
			return hailerter.ClientResetReminder(*socket, args[0], loc)
		},
	}
}
