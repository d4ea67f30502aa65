package daemon

import (
	"github.com/asnowfix/switchbot-mqtt/hlog"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

var InstallCmd = &cobra.Command{
	Use:                "install [flags]",
	Short:              "Install " + hlog.Program + " as a " + service.Platform() + " service, started with the given flags",
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := service.New(newProgram(cmd.Context(), nil), serviceConfig(args))
		if err != nil {
			return err
		}
		hlog.Logger.Info("Installing service", "platform", service.Platform(), "arguments", args)
		return s.Install()
	},
}

var UninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the " + hlog.Program + " " + service.Platform() + " service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := service.New(newProgram(cmd.Context(), nil), serviceConfig(nil))
		if err != nil {
			return err
		}
		hlog.Logger.Info("Uninstalling service", "platform", service.Platform())
		return s.Uninstall()
	},
}
