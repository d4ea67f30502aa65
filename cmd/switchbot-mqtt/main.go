package main

import (
	"context"
	"fmt"
	"os"

	"github.com/asnowfix/switchbot-mqtt/hlog"
	"github.com/asnowfix/switchbot-mqtt/internal/daemon"
	"github.com/asnowfix/switchbot-mqtt/internal/debug"
	"github.com/asnowfix/switchbot-mqtt/internal/global"
	"github.com/asnowfix/switchbot-mqtt/internal/options"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   hlog.Program,
	Short: "MQTT client controlling SwitchBot Bots and Curtains over Bluetooth",
	Long: "MQTT client controlling SwitchBot button automators and curtain motors over Bluetooth Low Energy,\n" +
		"compatible with Home Assistant's MQTT Switch and MQTT Cover platforms.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := options.Load(cmd.Flags()); err != nil {
			return err
		}
		if debug.IsDebuggerAttached() {
			options.Flags.Debug = true
		}
		log := hlog.Init(options.Flags.Verbose, options.Flags.Debug)
		ctx := logr.NewContext(cmd.Context(), log)
		cmd.SetContext(options.CommandLineContext(ctx, getVersion()))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		global.Cancel(cmd.Context())
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := daemon.ConfigFromFlags()
		if err != nil {
			return err
		}
		run := func(ctx context.Context) error {
			return daemon.Run(ctx, hlog.Logger, config, nil)
		}
		if !daemon.Interactive() {
			return daemon.RunService(cmd.Context(), run)
		}
		return run(cmd.Context())
	},
}

func init() {
	options.Register(Cmd.Flags())
	Cmd.MarkFlagsMutuallyExclusive("mqtt-password", "mqtt-password-file")
	Cmd.AddCommand(daemon.InstallCmd)
	Cmd.AddCommand(daemon.UninstallCmd)
}

func main() {
	err := Cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
