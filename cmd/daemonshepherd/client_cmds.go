package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seismometer/toolbox/internal/daemonshepherd"
)

// printResult renders a client-mode reply as indented JSON, matching the
// teacher's preference for JSON-shaped tool output over ad hoc text tables.
func printResult(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func newReloadCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Re-read the daemon spec file and apply the diff",
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemonshepherd.ClientReload(*socket)
		},
	}
}

func newListCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every declared daemon and its status",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := daemonshepherd.ClientList(*socket)
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}
}

func newStartCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start <name>",
		Short: "Force-start a stopped daemon immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemonshepherd.ClientStart(*socket, args[0])
		},
	}
}

func newStopCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemonshepherd.ClientStop(*socket, args[0])
		},
	}
}

func newRestartCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "Restart a daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemonshepherd.ClientRestart(*socket, args[0])
		},
	}
}

func newCancelRestartCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-restart <name>",
		Short: "Cancel a pending restart timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemonshepherd.ClientCancelRestart(*socket, args[0])
		},
	}
}

func newListCommandsCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list-commands <name>",
		Short: "List the declared administrative commands for a daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := daemonshepherd.ClientListCommands(*socket, args[0])
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}
}

func newCommandCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "command <name> <cmd>",
		Short: "Run a declared administrative command for a daemon",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemonshepherd.ClientAdminCommand(*socket, args[0], args[1])
		},
	}
}
