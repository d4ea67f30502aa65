//go:build windows

package hlog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/windows/svc"
)

func debugInit(msg string) {
	if os.Getenv("SWITCHBOT_MQTT_LOG_INIT") != "" {
		fmt.Fprintf(os.Stderr, "%s#Init: %s\n", Program, msg)
	}
}

func IsTerminal() bool {
	// a Windows service never has a console
	if isService, err := svc.IsWindowsService(); err == nil && isService {
		return false
	}
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

func getLogDir() string {
	if isService, err := svc.IsWindowsService(); err == nil && isService {
		return filepath.Join(filepath.VolumeName(os.Getenv("SystemDrive")), "ProgramData", Program, "logs")
	}

	appData := os.Getenv("LOCALAPPDATA")
	if appData == "" {
		appData = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
	}
	return filepath.Join(appData, Program, "logs")
}
