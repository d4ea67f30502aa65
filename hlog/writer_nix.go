//go:build !windows

package hlog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
)

func debugInit(msg string) {
	if os.Getenv("SWITCHBOT_MQTT_LOG_INIT") != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
}

func IsTerminal() bool {
	return isatty.IsTerminal(os.Stderr.Fd())
}

func getLogDir() string {
	if os.Geteuid() == 0 {
		return filepath.Join("/var/log", Program)
	}

	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		stateDir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateDir, Program, "logs")
}
